// Package sig_segmenter groups the entity sequence of one dose instruction
// into logical instructions. A repeated label starts a new instruction;
// two recombination passes then fold back segments that describe a single
// regimen in compound language.
package sig_segmenter

import (
	"fmt"
	"strings"

	"github.com/turtacn/sigparse/internal/domain/instruction"
)

// Segment is one logical instruction's worth of entity text, at most one
// value per label.
type Segment struct {
	Dosage     *string `json:"DOSAGE"`
	Frequency  *string `json:"FREQUENCY"`
	Form       *string `json:"FORM"`
	Duration   *string `json:"DURATION"`
	AsRequired *string `json:"AS_REQUIRED"`
	AsDirected *string `json:"AS_DIRECTED"`
}

// slot returns the field holding label, or nil for labels a Segment does
// not carry.
func (s *Segment) slot(label instruction.Label) **string {
	switch label {
	case instruction.LabelDosage:
		return &s.Dosage
	case instruction.LabelFrequency:
		return &s.Frequency
	case instruction.LabelForm:
		return &s.Form
	case instruction.LabelDuration:
		return &s.Duration
	case instruction.LabelAsRequired:
		return &s.AsRequired
	case instruction.LabelAsDirected:
		return &s.AsDirected
	}
	return nil
}

// Set stores text under label. It reports false for labels a Segment does
// not carry.
func (s *Segment) Set(label instruction.Label, text string) bool {
	p := s.slot(label)
	if p == nil {
		return false
	}
	*p = &text
	return true
}

// Get returns the text stored under label, or nil.
func (s Segment) Get(label instruction.Label) *string {
	p := s.slot(label)
	if p == nil {
		return nil
	}
	return *p
}

// Has reports whether label has a value.
func (s Segment) Has(label instruction.Label) bool {
	return s.Get(label) != nil
}

// IsEmpty reports whether no label has a value.
func (s Segment) IsEmpty() bool {
	for _, l := range instruction.KnownLabels {
		if s.Has(l) {
			return false
		}
	}
	return true
}

// Entities returns the populated labels as entities, in builder order.
func (s Segment) Entities() []instruction.Entity {
	var out []instruction.Entity
	for _, l := range instruction.KnownLabels {
		if v := s.Get(l); v != nil {
			out = append(out, instruction.NewEntity(l, *v))
		}
	}
	return out
}

func (s Segment) String() string {
	parts := make([]string, 0, len(instruction.KnownLabels))
	for _, l := range instruction.KnownLabels {
		if v := s.Get(l); v != nil {
			parts = append(parts, fmt.Sprintf("%s=%q", l, *v))
		} else {
			parts = append(parts, fmt.Sprintf("%s=None", l))
		}
	}
	return "Segment(" + strings.Join(parts, ", ") + ")"
}

func sameText(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func str(s string) *string { return &s }
