// Package app wires configuration into the long-lived components shared by
// the daemon and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph-ayodele/exams-tracker/internal/cache"
	"github.com/joseph-ayodele/exams-tracker/internal/catalog"
	"github.com/joseph-ayodele/exams-tracker/internal/common"
	"github.com/joseph-ayodele/exams-tracker/internal/core/artifact"
	"github.com/joseph-ayodele/exams-tracker/internal/core/deadline"
	"github.com/joseph-ayodele/exams-tracker/internal/core/exams"
	"github.com/joseph-ayodele/exams-tracker/internal/core/ocr"
	"github.com/joseph-ayodele/exams-tracker/internal/core/pipeline"
	"github.com/joseph-ayodele/exams-tracker/internal/export"
	"github.com/joseph-ayodele/exams-tracker/internal/metrics"
	"github.com/joseph-ayodele/exams-tracker/internal/repository"
	"github.com/joseph-ayodele/exams-tracker/internal/services/intake"
)

// App holds the assembled components. Close releases the database and cache.
type App struct {
	Config        *common.Config
	Logger        *slog.Logger
	DB            *repository.DB
	Cache         cache.Client
	Procedures    repository.ProcedureRepository
	Consultations repository.ConsultationRepository
	Metrics       *metrics.Metrics
	Registry      *prometheus.Registry
	Pipeline      *pipeline.Pipeline
	Intake        *intake.Service
	Export        *export.Service
}

// OpenDB opens and migrates the configured database.
func OpenDB(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*repository.DB, error) {
	db, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := repository.HealthCheck(ctx, db, cfg.Database.DialTimeout, logger); err != nil {
		repository.Close(db, logger)
		return nil, fmt.Errorf("database ping: %w", err)
	}
	if err := repository.Migrate(ctx, db, logger); err != nil {
		repository.Close(db, logger)
		return nil, err
	}
	return db, nil
}

// NewCache builds the configured lookup cache; it returns nil for backend "none".
func NewCache(ctx context.Context, cfg common.CacheConfig) (cache.Client, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return cache.NewMemoryClient(10000), nil
	case "redis":
		c, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
}

// NewPipeline assembles the document pipeline around catalog.
func NewPipeline(cfg *common.Config, cat deadline.Catalog, m *metrics.Metrics, logger *slog.Logger) (*pipeline.Pipeline, error) {
	runner := ocr.NewExecRunner(cfg.OCR.ProcessTimeout)
	rasterizer := ocr.NewPdftoppm(ocr.PdftoppmConfig{Bin: cfg.OCR.PdftoppmBin, DPI: cfg.OCR.DPI}, runner, logger)
	recognizer, err := ocr.NewRecognizer(cfg.OCR.Engine, ocr.RecognizerConfig{
		Bin:         cfg.OCR.TesseractBin,
		Lang:        cfg.OCR.Lang,
		OEM:         cfg.OCR.OEM,
		PSM:         cfg.OCR.PSM,
		TessdataDir: cfg.OCR.TessdataDir,
	}, runner, logger)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", err.Error(), common.ErrInvalidInput)
	}
	parser, err := exams.NewParser(exams.Config{
		Anchor:        cfg.Parser.Anchor,
		Boundary:      cfg.Parser.Boundary,
		Greedy:        cfg.Parser.Greedy,
		MinLineLength: cfg.Parser.MinLineLength,
	})
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "invalid parser pattern", err)
	}
	resolver := deadline.NewResolver(cat, deadline.Config{
		Separator:      cfg.Resolver.Separator,
		MaxConcurrency: cfg.Resolver.MaxConcurrency,
		LookupTimeout:  cfg.Resolver.LookupTimeout,
	}, logger).WithObserver(m)

	return pipeline.New(pipeline.NewNormalizer(rasterizer, logger), recognizer, parser, resolver, logger).WithObserver(m), nil
}

// New builds every component from cfg. The caller must Close the result.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Metrics = metrics.New(a.Registry)

	db, err := OpenDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.Procedures = repository.NewProcedureRepository(db, logger)
	a.Consultations = repository.NewConsultationRepository(db, logger)

	if a.Cache, err = NewCache(ctx, cfg.Cache); err != nil {
		a.Close()
		return nil, err
	}
	var cat deadline.Catalog = a.Procedures
	if a.Cache != nil {
		cat = deadline.NewCachedCatalog(a.Procedures, a.Cache, cfg.Cache.TTL, logger)
	}

	if a.Pipeline, err = NewPipeline(cfg, cat, a.Metrics, logger); err != nil {
		a.Close()
		return nil, err
	}
	store, err := artifact.NewStore(cfg.Upload.Dir, cfg.Upload.MaxBytes, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Intake = intake.NewService(store, a.Pipeline, pipeline.NewProtocolGenerator(cfg.Protocol.Prefix), a.Consultations, logger)
	a.Export = export.NewService(a.Consultations, logger)

	logger.Info("application assembled",
		"db_driver", cfg.Database.Driver,
		"ocr_engine", cfg.OCR.Engine,
		"cache", cfg.Cache.Backend,
	)
	return a, nil
}

// Importer returns a catalog importer that invalidates this app's cache.
func (a *App) Importer() (*catalog.Importer, error) {
	return catalog.NewImporter(a.Procedures, a.Cache, a.Logger)
}

// HealthCheck pings the database.
func (a *App) HealthCheck(ctx context.Context) error {
	return repository.HealthCheck(ctx, a.DB, 0, a.Logger)
}

func (a *App) Close() {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.DB != nil {
		repository.Close(a.DB, a.Logger)
	}
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("error while closing cache", "error", err)
	}
}
