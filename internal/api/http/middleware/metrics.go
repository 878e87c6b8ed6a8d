package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kvdb/kvdb/internal/metrics"
)

// Metrics records request counts and latencies per route
func Metrics(m *metrics.APIMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RecordAPIRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}
