package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kvdb/kvdb/internal/metrics"
	"github.com/kvdb/kvdb/internal/ratelimit"
)

// RateLimit rejects requests with 429 once the shared bucket is empty. The
// Retry-After header carries whole seconds until the next token.
func RateLimit(limiter *ratelimit.Limiter, m *metrics.APIMetrics, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := limiter.Acquire()
		if err == nil {
			c.Next()
			return
		}

		var limitErr ratelimit.LimitExceededError
		retryAfter := 1
		if errors.As(err, &limitErr) {
			retryAfter = int(math.Ceil(limitErr.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
		}

		m.RecordRateLimited()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("retry_after_s", retryAfter).
			Msg("Request rate limited")

		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   err.Error(),
			"success": false,
		})
	}
}
