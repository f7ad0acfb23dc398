package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/exams-tracker/internal/common"
	"github.com/joseph-ayodele/exams-tracker/internal/entity"
	"github.com/joseph-ayodele/exams-tracker/internal/metrics"
	"github.com/joseph-ayodele/exams-tracker/internal/services/intake"
)

// UploadField is the multipart field carrying the document.
const UploadField = "documento"

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Intake defines the behavior consumed by the HTTP and gRPC handlers.
type Intake interface {
	ProcessUpload(ctx context.Context, r io.Reader, originalName, declaredType string) (*intake.Outcome, error)
	ProcessPath(ctx context.Context, path, declaredType, originalName string) (*intake.Outcome, error)
	GetConsultation(ctx context.Context, protocol string) (*entity.Consultation, error)
}

type Exporter interface {
	ExportConsultationsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error)
}

// RouterConfig carries everything NewRouter wires into the engine.
type RouterConfig struct {
	APIKey         string
	MaxUploadBytes int64
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer         // nil disables /metrics
	Health         func(context.Context) error // nil reports healthy
	Logger         *slog.Logger
}

type handlers struct {
	intake   Intake
	exporter Exporter
	cfg      RouterConfig
}

// NewRouter wires up handlers to the Gin engine.
func NewRouter(cfg RouterConfig, in Intake, ex Exporter) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &handlers{intake: in, exporter: ex, cfg: cfg}

	r := gin.New()
	r.Use(gin.Recovery(), WithRequestContext(cfg.Logger), WithMetrics(cfg.Metrics))

	r.GET("/healthz", h.health)
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	v1.Use(WithAPIKey(cfg.APIKey))
	{
		v1.POST("/exams/upload", h.upload)
		v1.GET("/consultations/export", h.export)
		v1.GET("/consultations/:protocol", h.consultation)
	}
	return r
}

func (h *handlers) health(c *gin.Context) {
	if h.cfg.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.cfg.Health(ctx); err != nil {
			h.logger(c).Warn("health check failed", "error", err)
			c.String(http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	c.String(http.StatusOK, "ok")
}

func (h *handlers) upload(c *gin.Context) {
	if h.cfg.MaxUploadBytes > 0 {
		// Leave room for the multipart envelope; the store enforces the exact limit.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes+1<<20)
	}
	header, err := c.FormFile(UploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "uploaded document is too large"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing file field " + UploadField})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid multipart payload"})
		return
	}
	defer file.Close()

	out, err := h.intake.ProcessUpload(c.Request.Context(), file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) consultation(c *gin.Context) {
	cons, err := h.intake.GetConsultation(c.Request.Context(), c.Param("protocol"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cons)
}

func (h *handlers) export(c *gin.Context) {
	from, err := parseDateParam(c.Query("from"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
		return
	}
	to, err := parseDateParam(c.Query("to"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
		return
	}
	if from != nil && to != nil && to.Before(*from) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must not be before from"})
		return
	}

	b, err := h.exporter.ExportConsultationsXLSX(c.Request.Context(), from, to)
	if err != nil {
		h.logger(c).Error("export.xlsx.failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="consultations.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, b)
}

// fail writes the client-safe view of err. Paths and tool output stay in the logs.
func (h *handlers) fail(c *gin.Context, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger(c).Error("request failed", "error", err)
	} else {
		h.logger(c).Warn("request rejected", "status", status, "code", common.ErrorCode(err), "error", err)
	}
	body := gin.H{"error": common.PublicMessage(err)}
	if code := common.ErrorCode(err); code != "" {
		body["code"] = code
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *handlers) logger(c *gin.Context) *slog.Logger {
	return common.LoggerFromContext(c.Request.Context(), h.cfg.Logger)
}

func httpStatus(err error) int {
	switch {
	case common.ErrorCode(err) == "UPLOAD_TOO_LARGE":
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrConversion), errors.Is(err, common.ErrOCR):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func parseDateParam(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
