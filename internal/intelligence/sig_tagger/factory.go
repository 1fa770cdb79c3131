package sig_tagger

import (
	"context"
	"time"

	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/internal/intelligence/common"
	"github.com/turtacn/sigparse/pkg/errors"
)

// Build constructs the extractor selected by cfg. The returned function
// releases the model connection, if any.
func Build(ctx context.Context, cfg config.TaggerConfig, logger logging.Logger, metrics common.IntelligenceMetrics) (Extractor, func() error, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = common.NewNoopIntelligenceMetrics()
	}
	noop := func() error { return nil }

	kind, err := common.ParseBackendType(cfg.Backend)
	if err != nil {
		return nil, noop, errors.Wrap(err, errors.ErrCodeBackendUnsupported, "tagger backend")
	}
	rules := NewRuleExtractor(logger)
	if kind == common.BackendRule {
		return rules, noop, nil
	}

	backendOpts := []common.BackendOption{
		common.WithBackendTimeout(cfg.Timeout),
		common.WithBackendMetrics(metrics),
	}
	var backend common.ModelBackend
	switch kind {
	case common.BackendHTTP:
		backend, err = common.NewHTTPBackend(cfg.Endpoint, logger, backendOpts...)
	case common.BackendGRPC:
		backend, err = common.NewGRPCBackend(ctx, cfg.Endpoint, logger, backendOpts...)
	}
	if err != nil {
		return nil, noop, errors.Wrap(err, errors.ErrCodeModelUnavailable, "connect tagger backend")
	}

	model, err := NewModelExtractor(backend, logger, WithModelName(cfg.ModelName))
	if err != nil {
		_ = backend.Close()
		return nil, noop, err
	}

	var ext Extractor = model
	if cfg.MaxRetries > 0 {
		ext = WithRetry(ext, cfg.MaxRetries, 50*time.Millisecond)
	}
	if cfg.Fallback {
		ext, err = NewFallbackExtractor(ext, rules, logger)
		if err != nil {
			_ = backend.Close()
			return nil, noop, err
		}
	}
	logger.Info("tagger ready",
		logging.String("backend", string(kind)),
		logging.String("endpoint", cfg.Endpoint),
		logging.Bool("fallback", cfg.Fallback),
	)
	return ext, model.Close, nil
}

// WithRetry retries next on transient backend failures, doubling the wait
// after every attempt.
func WithRetry(next Extractor, maxRetries int, backoff time.Duration) Extractor {
	return ExtractorFunc(func(ctx context.Context, normalized string) ([]instruction.Entity, error) {
		wait := backoff
		for attempt := 0; ; attempt++ {
			entities, err := next.Extract(ctx, normalized)
			if err == nil || attempt >= maxRetries || !isTransient(err) {
				return entities, err
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}
	})
}

func isTransient(err error) bool {
	return errors.Is(err, common.ErrServingUnavailable) || errors.Is(err, common.ErrInferenceTimeout)
}
