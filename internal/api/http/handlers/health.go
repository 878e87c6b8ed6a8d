package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Success bool   `json:"success"`
}

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck handles liveness requests
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Success: true})
}

// ReadinessCheck returns a handler that reports 503 while the store is
// unreachable. The ping error is attached to the context for the access log
// and never sent to the client.
func ReadinessCheck(store Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if store == nil {
			c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "not ready", Message: "no store", Success: false})
			return
		}
		if err := store.Ping(ctx); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "not ready", Message: "storage unavailable", Success: false})
			return
		}
		c.JSON(http.StatusOK, HealthResponse{Status: "ready", Success: true})
	}
}
