package parsing

import (
	"context"

	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/internal/intelligence/common"
	"github.com/turtacn/sigparse/internal/intelligence/sig_normalizer"
	"github.com/turtacn/sigparse/internal/intelligence/sig_tagger"
)

// NewNormalizer builds the text normalizer described by cfg. When
// cfg.WatchAssets is set and asset paths are configured, the returned
// normalizer reloads itself until ctx is done.
func NewNormalizer(ctx context.Context, cfg config.NormalizerConfig, logger logging.Logger) (TextNormalizer, error) {
	var opts []sig_normalizer.Option
	if !cfg.SpellCheck {
		opts = append(opts, sig_normalizer.WithCorrector(sig_normalizer.NopCorrector{}))
	}
	paths := sig_normalizer.AssetPaths{
		ReplaceWords: cfg.ReplaceWordsPath,
		KeepWords:    cfg.KeepWordsPath,
	}

	if !cfg.WatchAssets {
		assets, err := sig_normalizer.LoadAssets(paths)
		if err != nil {
			return nil, err
		}
		return sig_normalizer.New(assets, opts...), nil
	}

	r, err := sig_normalizer.NewReloadable(paths, opts...)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := r.Watch(ctx, logger); err != nil {
			logger.Error("normalizer asset watcher stopped", logging.Err(err))
		}
	}()
	return r, nil
}

// NewFromConfig assembles a Parser from configuration. opts are applied
// after the configured ones. The returned close function releases the
// tagger backend.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger logging.Logger, metrics common.IntelligenceMetrics, opts ...Option) (*Parser, func() error, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	mode, err := ParseMode(cfg.Parser.BatchMode)
	if err != nil {
		return nil, nil, err
	}

	normalizer, err := NewNormalizer(ctx, cfg.Normalizer, logger)
	if err != nil {
		return nil, nil, err
	}
	extractor, closeFn, err := sig_tagger.Build(ctx, cfg.Tagger, logger, metrics)
	if err != nil {
		return nil, nil, err
	}

	base := []Option{
		WithDefaultMode(mode),
		WithWorkers(cfg.Parser.Workers),
		WithInputTimeout(cfg.Parser.InputTimeout),
		WithMaxBatchSize(cfg.Parser.MaxBatchSize),
		WithBatchMetrics(metrics),
	}
	p, err := NewParser(normalizer, extractor, logger, append(base, opts...)...)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return p, closeFn, nil
}
