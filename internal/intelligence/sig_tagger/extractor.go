// Package sig_tagger finds labelled entity spans in a normalized dose
// instruction. A ModelExtractor delegates to a remote sequence-labelling
// model; a RuleExtractor tags tokens from a fixed lexicon and needs no
// model at all. Both report spans in input order without overlap.
package sig_tagger

import (
	"context"

	"github.com/turtacn/sigparse/internal/domain/instruction"
)

// Extractor labels the spans of one normalized instruction. Implementations
// are safe for concurrent use and never mutate shared state while
// extracting.
type Extractor interface {
	Extract(ctx context.Context, normalized string) ([]instruction.Entity, error)
}

// ExtractorFunc adapts a plain function to Extractor.
type ExtractorFunc func(ctx context.Context, normalized string) ([]instruction.Entity, error)

func (f ExtractorFunc) Extract(ctx context.Context, normalized string) ([]instruction.Entity, error) {
	return f(ctx, normalized)
}
