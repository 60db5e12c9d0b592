package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/denisAlshanov/audioworker/internal/api/handlers"
	"github.com/denisAlshanov/audioworker/internal/api/middleware"
	"github.com/denisAlshanov/audioworker/internal/config"
	"github.com/denisAlshanov/audioworker/internal/metrics"
	"github.com/denisAlshanov/audioworker/internal/services/auth"
)

type Router struct {
	engine *gin.Engine
	config *config.Config
}

// Handlers groups everything the router mounts. Runs is nil when run
// history is disabled.
type Handlers struct {
	Extract *handlers.ExtractHandler
	Health  *handlers.HealthHandler
	Runs    *handlers.RunsHandler
}

func NewRouter(cfg *config.Config, h Handlers, jwtService *auth.JWTService, m *metrics.Metrics, gatherer prometheus.Gatherer) *Router {
	// Set Gin mode
	if cfg.Server.Host == "0.0.0.0" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Add middleware
	engine.Use(gin.Recovery())
	engine.Use(middleware.CorrelationIDMiddleware())
	engine.Use(middleware.SecurityHeaders())
	if m != nil {
		engine.Use(m.Middleware())
	}
	// One budget for every route, /health included
	engine.Use(middleware.RateLimitMiddleware(&cfg.API))
	engine.Use(middleware.BodyLimit(cfg.API.MaxBodyBytes))

	// Health endpoints (no auth required)
	health := engine.Group("/")
	{
		health.GET("/health", h.Health.Health)
		health.GET("/ready", h.Health.Readiness)
		health.GET("/live", h.Health.Liveness)
	}

	// Metrics and documentation (no auth required)
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Extraction endpoints with bearer authentication
	api := engine.Group("/")
	api.Use(middleware.AuthMiddleware(&cfg.API, jwtService))
	{
		api.POST("/video-info", h.Extract.VideoInfo)
		api.POST("/extract-audio", h.Extract.ExtractAudio)
		if h.Runs != nil {
			api.GET("/runs", h.Runs.ListRuns)
		}
	}

	return &Router{
		engine: engine,
		config: cfg,
	}
}

func (r *Router) Addr() string {
	return r.config.Server.Host + ":" + r.config.Server.Port
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
