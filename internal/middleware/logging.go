package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mugisham37/product-management-interview-project/internal/logging"
)

// RequestLogger logs one line per request once the handler chain returns.
func RequestLogger(log *logging.Logger) gin.HandlerFunc {
	if log == nil {
		log = logging.Nop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		kv := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "errors", c.Errors.String())
		}
		if status >= 500 {
			log.With(kv...).Errorf("request failed")
			return
		}
		log.Infow("request", kv...)
	}
}
