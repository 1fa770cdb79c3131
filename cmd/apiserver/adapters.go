package main

import (
	"time"

	"github.com/turtacn/sigparse/internal/app"
	"github.com/turtacn/sigparse/internal/application/parsing"
	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/sigparse/internal/interfaces/http"
	"github.com/turtacn/sigparse/internal/interfaces/http/handlers"
	"github.com/turtacn/sigparse/internal/interfaces/http/middleware"
)

// newRateLimiter returns nil when rate limiting is disabled.
func newRateLimiter(cfg config.ServerConfig) *middleware.TokenBucketLimiter {
	if cfg.RateLimitRPS <= 0 {
		return nil
	}
	return middleware.NewTokenBucketLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, time.Minute)
}

func routerConfig(
	cfg *config.Config,
	parser *parsing.Parser,
	infra *app.Infrastructure,
	metrics *app.Metrics,
	limiter *middleware.TokenBucketLimiter,
	logger logging.Logger,
) httpserver.RouterConfig {
	var checkers []handlers.HealthChecker
	for _, c := range infra.HealthChecks() {
		checkers = append(checkers, c)
	}
	health := handlers.NewHealthHandler(version, checkers...)
	if metrics.App != nil {
		health.WithObserver(metrics.App.SetHealth)
	}

	rc := httpserver.RouterConfig{
		ParseHandler:     handlers.NewParseHandler(parser, logger),
		HealthHandler:    health,
		Logger:           logger,
		Logging:          middleware.DefaultLoggingConfig(),
		MetricsCollector: metrics.Collector,
		Metrics:          metrics.App,
		MaxBodySize:      cfg.Server.MaxBodySize,
	}
	if limiter != nil {
		rc.RateLimiter = limiter
	}
	if repo := infra.Repository(); repo != nil {
		var searcher handlers.InstructionSearcher
		if s := infra.Searcher(); s != nil {
			searcher = s
		}
		rc.InstructionHandler = handlers.NewInstructionHandler(repo, searcher, logger)
	}
	return rc
}
