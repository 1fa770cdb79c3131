//go:build integration

// Package integration runs the parse pipeline against a real PostgreSQL
// started with testcontainers. Tests require Docker and are gated behind
// the "integration" build tag.
package integration

import (
	"context"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/sigparse/internal/app"
	"github.com/turtacn/sigparse/internal/application/parsing"
	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/infrastructure/database/postgres"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/sigparse/internal/interfaces/http"
	"github.com/turtacn/sigparse/internal/interfaces/http/handlers"
	"github.com/turtacn/sigparse/internal/interfaces/http/middleware"
	"github.com/turtacn/sigparse/pkg/client"
)

// startPostgres launches a PostgreSQL 16 container and returns its settings.
func startPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "sigparse_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	return config.DatabaseConfig{
		Enabled:  true,
		Host:     host,
		Port:     portNum,
		User:     "test",
		Password: "test",
		DBName:   "sigparse_test",
		SSLMode:  "disable",
	}
}

// stack is a fully wired server backed by PostgreSQL.
type stack struct {
	cfg    *config.Config
	infra  *app.Infrastructure
	parser *parsing.Parser
	client *client.Client
}

// newStack migrates db, builds a persisting parser and serves the HTTP API
// on an httptest server.
func newStack(t *testing.T, db config.DatabaseConfig) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	logger := logging.NewNopLogger()

	cfg := config.NewDefaultConfig()
	cfg.Database = db
	cfg.Redis.Enabled = false
	cfg.OpenSearch.Enabled = false
	cfg.Parser.Persist = true
	cfg.Parser.Index = false
	cfg.Parser.EnableCache = false
	cfg.Metrics.Enabled = false

	infra, err := app.NewInfrastructure(ctx, cfg, app.Components{Database: true}, logger)
	require.NoError(t, err)
	t.Cleanup(infra.Close)
	require.NotNil(t, infra.DB)

	require.NoError(t, postgres.NewMigrator(infra.DB, "", logger).Up())

	metrics, err := app.NewMetrics(cfg.Metrics, logger)
	require.NoError(t, err)
	parser, closeFn, err := app.BuildParser(ctx, cfg, logger, infra, metrics)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	router := httpserver.NewRouter(httpserver.RouterConfig{
		ParseHandler:       handlers.NewParseHandler(parser, logger),
		InstructionHandler: handlers.NewInstructionHandler(infra.Repository(), nil, logger),
		HealthHandler:      handlers.NewHealthHandler("test"),
		Logger:             logger,
		Logging:            middleware.DefaultLoggingConfig(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	c, err := client.NewClient(srv.URL, "", client.WithRetryMax(0))
	require.NoError(t, err)

	return &stack{cfg: cfg, infra: infra, parser: parser, client: c}
}
