package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mugisham37/product-management-interview-project/internal/metrics"
)

// Metrics records request counts and latency by matched route template, so
// ids in paths do not explode label cardinality.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveHTTP(c.FullPath(), c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
