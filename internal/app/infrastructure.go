// Package app assembles sigparse components from configuration. The
// binaries under cmd/ and the CLI share it.
package app

import (
	"context"
	"fmt"

	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/database/postgres"
	"github.com/turtacn/sigparse/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/sigparse/internal/infrastructure/database/redis"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/internal/infrastructure/search/opensearch"
	"github.com/turtacn/sigparse/internal/infrastructure/storage/minio"
)

// Infrastructure holds the clients of every enabled backing service. A nil
// field means the service is disabled.
type Infrastructure struct {
	DB         *postgres.Connection
	Redis      *redis.Client
	OpenSearch *opensearch.Client
	MinIO      *minio.Client

	cfg    *config.Config
	logger logging.Logger
}

// Components selects which services NewInfrastructure connects to, on top
// of their Enabled flags.
type Components struct {
	Database   bool
	Redis      bool
	OpenSearch bool
	MinIO      bool
}

// AllComponents connects every enabled service.
var AllComponents = Components{Database: true, Redis: true, OpenSearch: true, MinIO: true}

// NewInfrastructure connects the requested and enabled services. On error
// everything already opened is closed.
func NewInfrastructure(ctx context.Context, cfg *config.Config, want Components, logger logging.Logger) (*Infrastructure, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	infra := &Infrastructure{cfg: cfg, logger: logger}

	if want.Database && cfg.Database.Enabled {
		conn, err := postgres.NewConnection(ctx, cfg.Database, logger.Named("postgres"))
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		infra.DB = conn
	}

	if want.Redis && cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, cfg.Redis, logger.Named("redis"))
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		infra.Redis = client
	}

	if want.OpenSearch && cfg.OpenSearch.Enabled {
		client, err := opensearch.NewClient(ctx, cfg.OpenSearch, logger.Named("opensearch"))
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("opensearch: %w", err)
		}
		infra.OpenSearch = client
	}

	if want.MinIO && cfg.MinIO.Endpoint != "" {
		client, err := minio.NewClient(ctx, cfg.MinIO, logger.Named("minio"))
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("minio: %w", err)
		}
		infra.MinIO = client
	}

	logger.Info("infrastructure initialized",
		logging.Bool("postgres", infra.DB != nil),
		logging.Bool("redis", infra.Redis != nil),
		logging.Bool("opensearch", infra.OpenSearch != nil),
		logging.Bool("minio", infra.MinIO != nil),
	)
	return infra, nil
}

// Close releases every open client.
func (i *Infrastructure) Close() {
	if i.OpenSearch != nil {
		_ = i.OpenSearch.Close()
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.MinIO != nil {
		_ = i.MinIO.Close()
	}
	if i.DB != nil {
		_ = i.DB.Close()
	}
}

// Repository returns the instruction store, or nil without a database.
func (i *Infrastructure) Repository() instruction.Repository {
	if i.DB == nil {
		return nil
	}
	return repositories.NewPostgresInstructionRepo(i.DB, i.logger.Named("instruction_repo"))
}

// Indexer returns the instruction index writer, or nil without OpenSearch.
func (i *Infrastructure) Indexer() *opensearch.Indexer {
	if i.OpenSearch == nil {
		return nil
	}
	return opensearch.NewIndexer(i.OpenSearch, i.cfg.OpenSearch.Index, i.cfg.OpenSearch.BulkBatchSize, i.logger.Named("indexer"))
}

// Searcher returns the instruction search client, or nil without OpenSearch.
func (i *Infrastructure) Searcher() *opensearch.Searcher {
	if i.OpenSearch == nil {
		return nil
	}
	return opensearch.NewSearcher(i.OpenSearch, i.cfg.OpenSearch.Index, i.logger.Named("searcher"))
}

// ResultCache returns the parse result cache, or nil without Redis.
func (i *Infrastructure) ResultCache() *redis.ResultCache {
	if i.Redis == nil {
		return nil
	}
	return redis.NewResultCache(i.Redis, i.logger.Named("cache"),
		redis.WithPrefix(i.cfg.Redis.KeyPrefix),
		redis.WithDefaultTTL(i.cfg.Parser.CacheTTL))
}

// Check is a named health probe.
type Check struct {
	name string
	fn   func(ctx context.Context) error
}

// Name returns the component name.
func (c Check) Name() string { return c.name }

// Check runs the probe.
func (c Check) Check(ctx context.Context) error { return c.fn(ctx) }

// HealthChecks returns one probe per open client.
func (i *Infrastructure) HealthChecks() []Check {
	var checks []Check
	if i.DB != nil {
		checks = append(checks, Check{name: "postgres", fn: i.DB.HealthCheck})
	}
	if i.Redis != nil {
		checks = append(checks, Check{name: "redis", fn: i.Redis.Ping})
	}
	if i.OpenSearch != nil {
		checks = append(checks, Check{name: "opensearch", fn: i.OpenSearch.Ping})
	}
	if i.MinIO != nil {
		checks = append(checks, Check{name: "minio", fn: i.MinIO.HealthCheck})
	}
	return checks
}
