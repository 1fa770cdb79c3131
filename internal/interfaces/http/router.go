// Package http wires the sigparse REST API onto gin.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/sigparse/internal/interfaces/http/handlers"
	"github.com/turtacn/sigparse/internal/interfaces/http/middleware"
)

// RouterConfig collects everything the router mounts. Nil handlers are
// skipped.
type RouterConfig struct {
	ParseHandler       *handlers.ParseHandler
	InstructionHandler *handlers.InstructionHandler
	HealthHandler      *handlers.HealthHandler

	Logger           logging.Logger
	Logging          middleware.LoggingConfig
	MetricsCollector prometheus.MetricsCollector
	Metrics          *prometheus.AppMetrics
	RateLimiter      middleware.RateLimiter
	MaxBodySize      int64
}

// NewRouter builds the gin engine. Probes and /metrics sit outside the
// rate limiter.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger, cfg.Logging))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.MetricsCollector != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	api := r.Group("/api/v1")
	if cfg.RateLimiter != nil {
		api.Use(middleware.RateLimit(cfg.RateLimiter, middleware.DefaultRateLimitConfig()))
	}
	api.Use(middleware.MaxBodySize(cfg.MaxBodySize))

	if cfg.ParseHandler != nil {
		cfg.ParseHandler.RegisterRoutes(api)
	}
	if cfg.InstructionHandler != nil {
		cfg.InstructionHandler.RegisterRoutes(api)
	}
	return r
}
