package app

import (
	"context"

	"github.com/turtacn/sigparse/internal/application/parsing"
	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/internal/intelligence/common"
)

// BuildParser assembles a Parser with the cache, recorder and metrics that
// cfg enables and infra can back. Features whose backend is missing are
// skipped with a warning. The returned function releases the tagger.
func BuildParser(ctx context.Context, cfg *config.Config, logger logging.Logger, infra *Infrastructure, metrics *Metrics) (*parsing.Parser, func() error, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if infra == nil {
		infra = &Infrastructure{cfg: cfg, logger: logger}
	}
	if metrics == nil {
		metrics = &Metrics{}
	}

	var opts []parsing.Option
	opts = append(opts, parserOptions(cfg, logger, infra)...)
	if metrics.App != nil {
		opts = append(opts, parsing.WithMetrics(metrics.App.ParserMetrics()))
	}

	intel := metrics.Intelligence
	if intel == nil {
		intel = common.NewNoopIntelligenceMetrics()
	}
	return parsing.NewFromConfig(ctx, cfg, logger, intel, opts...)
}

func parserOptions(cfg *config.Config, logger logging.Logger, infra *Infrastructure) []parsing.Option {
	var opts []parsing.Option

	if cfg.Parser.EnableCache {
		if cache := infra.ResultCache(); cache != nil {
			opts = append(opts, parsing.WithCache(cache, cfg.Parser.CacheTTL))
		} else {
			logger.Warn("parser.enable_cache is set but redis is not connected; caching disabled")
		}
	}

	if cfg.Parser.Persist {
		repo := infra.Repository()
		if repo == nil {
			logger.Warn("parser.persist is set but postgres is not connected; results will not be stored")
			return opts
		}
		var index instruction.Index
		if cfg.Parser.Index {
			if ix := infra.Indexer(); ix != nil {
				index = ix
			} else {
				logger.Warn("parser.index is set but opensearch is not connected; results will not be indexed")
			}
		}
		rec, err := parsing.NewStoreRecorder(repo, index, logger)
		if err == nil {
			opts = append(opts, parsing.WithRecorder(rec))
		}
	}
	return opts
}
