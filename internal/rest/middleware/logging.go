package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/revuo/revuo/internal/logger"
)

// LoggingMiddleware writes one structured line per request. Client errors log at warn and
// server errors at error.
func LoggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"bytes", c.Writer.Size(),
		}
		if businessID := c.Param("id"); businessID != "" {
			fields = append(fields, "business_id", businessID)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		reqLog := log.WithContext(c.Request.Context())
		switch {
		case status >= http.StatusInternalServerError:
			reqLog.Errorw("request failed", fields...)
		case status >= http.StatusBadRequest:
			reqLog.Warnw("request rejected", fields...)
		default:
			reqLog.Infow("request served", fields...)
		}
	}
}
