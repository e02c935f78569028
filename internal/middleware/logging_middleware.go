package middleware

import (
	"time"

	"github.com/annel0/voxel-server/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// RequestLogger снабжает каждый HTTP-запрос trace-ID и пишет краткие логи.
// Пробы /health и /metrics пишутся только на уровне Debug.
type RequestLogger struct {
	quiet map[string]bool
}

func NewRequestLogger(quietPaths ...string) *RequestLogger {
	rl := &RequestLogger{quiet: make(map[string]bool, len(quietPaths))}
	for _, p := range quietPaths {
		rl.quiet[p] = true
	}
	return rl
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Пытаемся извлечь trace-id из OpenTelemetry, если уже создан.
		span := trace.SpanFromContext(c.Request.Context())
		var traceID string
		if span.SpanContext().IsValid() {
			traceID = span.SpanContext().TraceID().String()
		} else {
			traceID = uuid.NewString()
		}
		c.Set("trace_id", traceID)
		c.Header("X-Trace-ID", traceID)

		start := time.Now()
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logf := logging.Info
		if rl.quiet[path] {
			logf = logging.Debug
		}

		logf("[HTTP] ▶ %s %s ip=%s trace=%s", method, path, c.ClientIP(), traceID)

		c.Next()

		logf("[HTTP] ◀ %s %s %d %s trace=%s", method, path, c.Writer.Status(), time.Since(start), traceID)
	}
}
