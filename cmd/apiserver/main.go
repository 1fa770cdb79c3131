// Command apiserver serves the parsing API over HTTP and gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/sigparse/internal/app"
	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	grpcserver "github.com/turtacn/sigparse/internal/interfaces/grpc"
	"github.com/turtacn/sigparse/internal/interfaces/grpc/services"
	httpserver "github.com/turtacn/sigparse/internal/interfaces/http"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment and built-in defaults)")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	grpcPort := flag.Int("grpc-port", -1, "gRPC server port (overrides config, 0 disables)")
	flag.Parse()

	if err := run(*configPath, *httpPort, *grpcPort); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, httpPort, grpcPort int) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if httpPort > 0 {
		cfg.Server.Port = httpPort
	}
	if grpcPort >= 0 {
		cfg.GRPC.Port = grpcPort
	}

	logger, level, err := app.NewLogger(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		config.Watch(configPath, func(next *config.Config) {
			level.SetLevel(logging.Level(next.Log.Level))
			logger.Info("configuration reloaded", logging.String("log_level", next.Log.Level))
		}, func(err error) {
			logger.Warn("ignoring invalid configuration change", logging.Err(err))
		})
	}

	logger.Info("starting sigparse API server",
		logging.String("version", version),
		logging.String("commit", commit),
		logging.Int("http_port", cfg.Server.Port),
		logging.Int("grpc_port", cfg.GRPC.Port),
	)

	infra, err := app.NewInfrastructure(ctx, cfg, app.Components{Database: true, Redis: true, OpenSearch: true}, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	metrics, err := app.NewMetrics(cfg.Metrics, logger)
	if err != nil {
		return err
	}

	parser, closeParser, err := app.BuildParser(ctx, cfg, logger, infra, metrics)
	if err != nil {
		return err
	}
	defer func() { _ = closeParser() }()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	limiter := newRateLimiter(cfg.Server)
	if limiter != nil {
		defer limiter.Stop()
	}
	router := httpserver.NewRouter(routerConfig(cfg, parser, infra, metrics, limiter, logger))
	httpSrv := httpserver.NewServer(cfg.Server, router, logger)

	var grpcSrv *grpcserver.Server
	if cfg.GRPC.Port > 0 {
		opts := []grpcserver.Option{grpcserver.WithLogger(logger), grpcserver.WithReflection(true)}
		if metrics.App != nil {
			opts = append(opts, grpcserver.WithMetrics(metrics.App))
		}
		grpcSrv, err = grpcserver.NewServer(cfg.GRPC, opts...)
		if err != nil {
			return err
		}
		grpcSrv.RegisterService(&services.ParserServiceDesc, services.NewParserService(parser, logger))
	}

	errCh := make(chan error, 2)
	go func() { errCh <- httpSrv.Start() }()
	if grpcSrv != nil {
		go func() { errCh <- grpcSrv.Start() }()
		grpcSrv.SetServing(true)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-errCh:
		if err != nil {
			logger.Error("server failed", logging.Err(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if grpcSrv != nil {
		grpcSrv.SetServing(false)
		if stopErr := grpcSrv.Stop(shutdownCtx); stopErr != nil {
			logger.Error("gRPC server shutdown error", logging.Err(stopErr))
		}
	}
	if stopErr := httpSrv.Stop(shutdownCtx); stopErr != nil {
		logger.Error("HTTP server shutdown error", logging.Err(stopErr))
	}
	logger.Info("servers stopped")
	return err
}
