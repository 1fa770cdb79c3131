package cli

import (
	"context"

	"github.com/turtacn/sigparse/internal/app"
	"github.com/turtacn/sigparse/internal/application/parsing"
	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/database/postgres"
	"github.com/turtacn/sigparse/internal/infrastructure/database/redis"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/internal/infrastructure/storage/minio"
	"github.com/turtacn/sigparse/pkg/errors"
)

// Parser is the part of parsing.Parser the parse command uses.
type Parser interface {
	ParseWithID(ctx context.Context, id *string, text string) []*instruction.StructuredInstruction
	ParseMany(ctx context.Context, inputs []parsing.Input, mode parsing.Mode) ([]*instruction.StructuredInstruction, error)
}

// BatchRunner runs one object-storage batch job.
type BatchRunner interface {
	Run(ctx context.Context, req parsing.BatchJobRequest) (*parsing.BatchJobResult, error)
}

// Migrator manages the database schema.
type Migrator interface {
	Up() error
	Down(steps int) error
	Status() (postgres.MigrationStatus, error)
	Force(version int) error
}

// CachePurger drops cached parse results.
type CachePurger interface {
	Purge(ctx context.Context) (int64, error)
}

// Dependencies builds the collaborators of each command. Every factory
// returns a release function that is always safe to call. Tests replace
// individual factories.
type Dependencies struct {
	LoadConfig     func(path string) (*config.Config, error)
	NewParser      func(ctx context.Context, cfg *config.Config, logger logging.Logger) (Parser, func(), error)
	NewBatchRunner func(ctx context.Context, cfg *config.Config, logger logging.Logger) (BatchRunner, string, func(), error)
	NewMigrator    func(ctx context.Context, cfg *config.Config, logger logging.Logger) (Migrator, func(), error)
	NewCachePurger func(ctx context.Context, cfg *config.Config, logger logging.Logger) (CachePurger, func(), error)
}

// DefaultDependencies connects to the services named in configuration.
func DefaultDependencies() Dependencies {
	return Dependencies{
		LoadConfig:     config.LoadOrDefault,
		NewParser:      newParser,
		NewBatchRunner: newBatchRunner,
		NewMigrator:    newMigrator,
		NewCachePurger: newCachePurger,
	}
}

func (d Dependencies) withDefaults() Dependencies {
	def := DefaultDependencies()
	if d.LoadConfig == nil {
		d.LoadConfig = def.LoadConfig
	}
	if d.NewParser == nil {
		d.NewParser = def.NewParser
	}
	if d.NewBatchRunner == nil {
		d.NewBatchRunner = def.NewBatchRunner
	}
	if d.NewMigrator == nil {
		d.NewMigrator = def.NewMigrator
	}
	if d.NewCachePurger == nil {
		d.NewCachePurger = def.NewCachePurger
	}
	return d
}

func noop() {}

// buildParser connects the cache and store backends the parser options ask
// for and assembles the parser on top of them.
func buildParser(ctx context.Context, cfg *config.Config, logger logging.Logger, want app.Components) (*parsing.Parser, *app.Infrastructure, func(), error) {
	want.Redis = want.Redis || cfg.Parser.EnableCache
	want.Database = want.Database || cfg.Parser.Persist
	want.OpenSearch = want.OpenSearch || cfg.Parser.Index

	infra, err := app.NewInfrastructure(ctx, cfg, want, logger)
	if err != nil {
		return nil, nil, noop, err
	}
	p, closeParser, err := app.BuildParser(ctx, cfg, logger, infra, nil)
	if err != nil {
		infra.Close()
		return nil, nil, noop, err
	}
	release := func() {
		_ = closeParser()
		infra.Close()
	}
	return p, infra, release, nil
}

func newParser(ctx context.Context, cfg *config.Config, logger logging.Logger) (Parser, func(), error) {
	p, _, release, err := buildParser(ctx, cfg, logger, app.Components{})
	if err != nil {
		return nil, noop, err
	}
	return p, release, nil
}

// newBatchRunner also returns the default bucket.
func newBatchRunner(ctx context.Context, cfg *config.Config, logger logging.Logger) (BatchRunner, string, func(), error) {
	p, infra, release, err := buildParser(ctx, cfg, logger, app.Components{MinIO: true, Redis: true})
	if err != nil {
		return nil, "", noop, err
	}
	if infra.MinIO == nil {
		release()
		return nil, "", noop, errors.InvalidParam("batch: minio.endpoint is not configured")
	}

	opts := []parsing.BatchJobOption{parsing.WithOutputPrefix(infra.MinIO.ResultPrefix())}
	if infra.Redis != nil {
		opts = append(opts, parsing.WithLocker(redis.NewLocker(infra.Redis, logger), 0))
	}
	job, err := parsing.NewBatchJob(p, minio.NewStore(infra.MinIO, logger), logger, opts...)
	if err != nil {
		release()
		return nil, "", noop, err
	}
	return job, infra.MinIO.DefaultBucket(), release, nil
}

func newMigrator(ctx context.Context, cfg *config.Config, logger logging.Logger) (Migrator, func(), error) {
	dbCfg := cfg.Database
	dbCfg.Enabled = true
	conn, err := postgres.NewConnection(ctx, dbCfg, logger)
	if err != nil {
		return nil, noop, err
	}
	return postgres.NewMigrator(conn, dbCfg.MigrationPath, logger), func() { _ = conn.Close() }, nil
}

func newCachePurger(ctx context.Context, cfg *config.Config, logger logging.Logger) (CachePurger, func(), error) {
	client, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, noop, err
	}
	cache := redis.NewResultCache(client, logger, redis.WithPrefix(cfg.Redis.KeyPrefix))
	return cache, func() { _ = client.Close() }, nil
}
