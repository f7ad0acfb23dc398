// Package deadline resolves exam lines against the procedure catalog and
// classifies their signature requirement.
package deadline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/exams-tracker/internal/common"
	"github.com/joseph-ayodele/exams-tracker/internal/entity"
)

const DefaultSeparator = " - "

// Catalog finds the procedure whose terminology contains name, case-insensitively.
// Implementations return an error wrapping common.ErrNotFound when nothing matches.
type Catalog interface {
	FindByTerminology(ctx context.Context, name string) (*entity.Procedure, error)
}

// LookupObserver is notified of every lookup outcome.
type LookupObserver interface {
	ObserveLookup(outcome string)
}

type Config struct {
	Separator      string        // text after the first separator is ignored when matching
	MaxConcurrency int           // 0 = one goroutine per exam
	LookupTimeout  time.Duration // 0 = bounded only by the caller's context
}

type Resolver struct {
	catalog  Catalog
	cfg      Config
	logger   *slog.Logger
	observer LookupObserver
}

func NewResolver(catalog Catalog, cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Separator == "" {
		cfg.Separator = DefaultSeparator
	}
	return &Resolver{catalog: catalog, cfg: cfg, logger: logger}
}

func (r *Resolver) WithObserver(o LookupObserver) *Resolver {
	r.observer = o
	return r
}

// CoreName is the part of exam before the first sep, trimmed.
func CoreName(exam, sep string) string {
	if i := strings.Index(exam, sep); i >= 0 {
		exam = exam[:i]
	}
	return strings.TrimSpace(exam)
}

// Resolve looks every exam up concurrently. The result has one entry per exam,
// in input order; individual failures never fail the batch.
func (r *Resolver) Resolve(ctx context.Context, exams []string) []Resolution {
	results := make([]Resolution, len(exams))
	var g errgroup.Group
	if r.cfg.MaxConcurrency > 0 {
		g.SetLimit(r.cfg.MaxConcurrency)
	}
	for i, exam := range exams {
		g.Go(func() error {
			results[i] = r.lookup(ctx, exam)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Resolver) lookup(ctx context.Context, exam string) Resolution {
	res := Resolution{ExamName: exam, CoreName: CoreName(exam, r.cfg.Separator)}
	defer func() {
		if r.observer != nil {
			r.observer.ObserveLookup(res.Outcome.String())
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Outcome, res.Err = LookupFailed, err
		return res
	}
	if res.CoreName == "" {
		res.Outcome = NotFound
		return res
	}
	if r.cfg.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.LookupTimeout)
		defer cancel()
	}

	proc, err := r.catalog.FindByTerminology(ctx, res.CoreName)
	switch {
	case err == nil && proc != nil:
		res.Outcome, res.Procedure = Found, proc
	case err == nil, errors.Is(err, common.ErrNotFound):
		res.Outcome = NotFound
	default:
		res.Outcome, res.Err = LookupFailed, err
		r.logger.Warn("catalog lookup failed", "exam", exam, "core_name", res.CoreName, "error", err)
	}
	return res
}
