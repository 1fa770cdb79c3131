package parsing

import (
	"context"
	"time"

	"github.com/turtacn/sigparse/internal/domain/instruction"
)

// TextNormalizer rewrites raw text into the tagger's token stream.
type TextNormalizer interface {
	Normalize(text string) string
}

// Cache stores parse results keyed by normalized instruction text. A miss is
// reported as found == false with a nil error.
type Cache interface {
	Get(ctx context.Context, text string) (results []*instruction.StructuredInstruction, found bool, err error)
	Set(ctx context.Context, text string, results []*instruction.StructuredInstruction, ttl time.Duration) error
}

// Recorder persists the results of one call. batchID is empty for single
// parses.
type Recorder interface {
	Record(ctx context.Context, batchID string, results []*instruction.StructuredInstruction) error
}

// Metrics observes parser activity.
type Metrics interface {
	ObserveParse(outcome Outcome, records int, d time.Duration)
	ObserveBatch(mode Mode, inputs, records int, d time.Duration)
	ObserveCache(hit bool)
	ObserveDiagnostics(rule string)
}

// Outcome classifies one parse.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
	OutcomeCached Outcome = "cached"
)

type noopMetrics struct{}

func (noopMetrics) ObserveParse(Outcome, int, time.Duration) {}

func (noopMetrics) ObserveBatch(Mode, int, int, time.Duration) {}

func (noopMetrics) ObserveCache(bool) {}

func (noopMetrics) ObserveDiagnostics(string) {}
