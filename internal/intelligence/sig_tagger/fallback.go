package sig_tagger

import (
	"context"

	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

// FallbackExtractor tries primary first and uses secondary when primary
// fails. A cancelled context is returned as is.
type FallbackExtractor struct {
	primary   Extractor
	secondary Extractor
	logger    logging.Logger
}

// NewFallbackExtractor chains primary and secondary.
func NewFallbackExtractor(primary, secondary Extractor, logger logging.Logger) (*FallbackExtractor, error) {
	if primary == nil || secondary == nil {
		return nil, errors.InvalidParam("fallback extractor needs a primary and a secondary")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FallbackExtractor{primary: primary, secondary: secondary, logger: logger.Named("fallback_extractor")}, nil
}

// Extract implements Extractor.
func (f *FallbackExtractor) Extract(ctx context.Context, normalized string) ([]instruction.Entity, error) {
	entities, err := f.primary.Extract(ctx, normalized)
	if err == nil {
		return entities, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	f.logger.Warn("primary extractor failed, using fallback",
		logging.String("code", string(errors.GetCode(err))),
		logging.Err(err),
	)
	return f.secondary.Extract(ctx, normalized)
}
