// README: Request logging middleware on slog.
package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

func Logging(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if id := c.Param("id"); id != "" {
			attrs = append(attrs, "id", id)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "err", c.Errors.String())
			log.ErrorContext(c.Request.Context(), "request failed", attrs...)
			return
		}
		log.InfoContext(c.Request.Context(), "request", attrs...)
	}
}
