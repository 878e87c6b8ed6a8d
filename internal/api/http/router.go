package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kvdb/kvdb/internal/api/http/handlers"
	"github.com/kvdb/kvdb/internal/api/http/middleware"
	"github.com/kvdb/kvdb/internal/logger"
	"github.com/kvdb/kvdb/internal/metrics"
	"github.com/kvdb/kvdb/internal/ratelimit"
)

// KeyService is the key store plus the readiness probe the router needs
type KeyService interface {
	handlers.KeyStore
	handlers.Pinger
}

// Dependencies are the collaborators wired into the router
type Dependencies struct {
	Keys        KeyService
	Limiter     *ratelimit.Limiter
	Metrics     *metrics.APIMetrics
	CORSOrigins []string
}

// NewRouter builds the gin engine serving the key API. Every request,
// including health probes and unmatched routes, draws from the shared bucket.
func NewRouter(deps Dependencies) *gin.Engine {
	log := logger.WithComponent("http.middleware")

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	engine.Use(
		middleware.Recovery(log),
		middleware.Tracing(),
		middleware.Logging(log),
		middleware.Metrics(deps.Metrics),
	)
	if cors := middleware.CORS(deps.CORSOrigins); cors != nil {
		engine.Use(cors)
	}
	engine.Use(middleware.RateLimit(deps.Limiter, deps.Metrics, log))

	engine.GET("/health", handlers.HealthCheck)
	engine.GET("/ready", handlers.ReadinessCheck(deps.Keys))

	keys := handlers.NewKeyHandlers(deps.Keys)
	group := engine.Group("/key")
	group.POST("", keys.Create)
	group.GET("", keys.Get)
	group.PATCH("", keys.Update)
	group.DELETE("", keys.Delete)
	group.HEAD("", keys.Head)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{Error: "not found", Success: false})
	})
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, handlers.ErrorResponse{Error: "method not allowed", Success: false})
	})

	return engine
}
