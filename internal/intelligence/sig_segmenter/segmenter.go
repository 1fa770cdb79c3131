package sig_segmenter

import "github.com/turtacn/sigparse/internal/domain/instruction"

// Segmenter splits and recombines entity sequences. It is stateless and
// safe for concurrent use.
type Segmenter struct {
	typeOf FrequencyTyper
}

// New returns a Segmenter that classifies FREQUENCY spans with typeOf.
func New(typeOf FrequencyTyper) *Segmenter {
	return &Segmenter{typeOf: typeOf}
}

// Segment returns one segment per logical instruction in entities.
func (s *Segmenter) Segment(entities []instruction.Entity) []Segment {
	return Combine(Split(entities), s.typeOf)
}
