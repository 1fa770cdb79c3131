// Command worker consumes parse requests from Kafka and publishes the
// structured results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/sigparse/internal/app"
	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/sigparse/internal/interfaces/http"
	"github.com/turtacn/sigparse/internal/interfaces/http/handlers"
)

const (
	defaultHealthPort = 8081
	shutdownTimeout   = 30 * time.Second
)

// Build-time variables injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment and built-in defaults)")
	healthPort := flag.Int("health-port", defaultHealthPort, "port of the health and metrics endpoint")
	ensureTopics := flag.Bool("ensure-topics", false, "create the request, result and dead-letter topics before consuming")
	flag.Parse()

	if err := run(*configPath, *healthPort, *ensureTopics); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, healthPort int, ensureTopics bool) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	logger, _, err := app.NewLogger(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting sigparse worker",
		logging.String("version", version),
		logging.Strings("brokers", cfg.Kafka.Brokers),
		logging.String("request_topic", cfg.Kafka.RequestTopic),
		logging.String("result_topic", cfg.Kafka.ResultTopic),
	)

	if ensureTopics {
		if err := createTopics(ctx, cfg.Kafka, logger); err != nil {
			return err
		}
	}

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

	worker, err := kafka.NewWorker(cfg.Kafka, parser, logger)
	if err != nil {
		return err
	}
	if metrics.Collector != nil {
		if err := registerConsumerMetrics(metrics.Collector.Registerer(), worker.Metrics()); err != nil {
			return err
		}
	}

	healthSrv := httpserver.NewServer(
		config.ServerConfig{Port: healthPort, ShutdownTimeout: 5 * time.Second},
		healthRouter(infra, metrics, logger),
		logger,
	)
	go func() {
		if err := healthSrv.Start(); err != nil {
			logger.Error("health server error", logging.Err(err))
		}
	}()

	runErr := worker.Run(ctx)
	logger.Info("worker stopped consuming")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := healthSrv.Stop(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", logging.Err(err))
	}

	m := worker.Metrics()
	logger.Info("sigparse worker stopped",
		logging.Int64("processed", m.MessagesProcessed.Load()),
		logging.Int64("failed", m.MessagesFailed.Load()),
		logging.Int64("dead_lettered", m.MessagesDeadLettered.Load()),
	)
	return runErr
}

func createTopics(ctx context.Context, cfg config.KafkaConfig, logger logging.Logger) error {
	tm, err := kafka.NewTopicManager(cfg.Brokers, logger)
	if err != nil {
		return err
	}
	defer tm.Close()
	return tm.EnsureTopics(ctx, kafka.DefaultTopics(cfg))
}

func healthRouter(infra *app.Infrastructure, metrics *app.Metrics, logger logging.Logger) *gin.Engine {
	var checkers []handlers.HealthChecker
	for _, c := range infra.HealthChecks() {
		checkers = append(checkers, c)
	}
	health := handlers.NewHealthHandler(version, checkers...)
	if metrics.App != nil {
		health.WithObserver(metrics.App.SetHealth)
	}
	return httpserver.NewRouter(httpserver.RouterConfig{
		HealthHandler:    health,
		Logger:           logger,
		MetricsCollector: metrics.Collector,
	})
}
