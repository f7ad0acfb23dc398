package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/exams-tracker/internal/common"
	"github.com/joseph-ayodele/exams-tracker/internal/metrics"
)

const (
	requestIDHeader = "X-Request-ID"
	apiKeyHeader    = "x-api-key"
)

func validAPIKey(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// WithAPIKey enforces the x-api-key header when key is non-empty.
func WithAPIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		if !validAPIKey(c.GetHeader(apiKeyHeader), key) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": common.ErrUnauthorized.Error(),
			})
			return
		}
		c.Next()
	}
}

// WithRequestContext stores a request ID and a request-scoped logger in the
// request context, then logs the request once it completes.
func WithRequestContext(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		ctx := common.WithRequestID(c.Request.Context(), id)
		ctx = common.WithLogger(ctx, logger.With("request_id", id))
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		common.LoggerFromContext(ctx, logger).Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

// WithMetrics counts requests by matched route so path parameters do not
// explode label cardinality.
func WithMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, route, strconv.Itoa(c.Writer.Status()))
	}
}
