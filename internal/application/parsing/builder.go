package parsing

import (
	"github.com/turtacn/sigparse/internal/domain/instruction"
	interp "github.com/turtacn/sigparse/internal/intelligence/sig_interpreter"
	"github.com/turtacn/sigparse/internal/intelligence/sig_segmenter"
)

// Builder turns segments into structured records.
type Builder struct {
	interp *interp.Interpreter
}

// NewBuilder returns a Builder over in. A nil in selects the default
// vocabulary.
func NewBuilder(in *interp.Interpreter) *Builder {
	if in == nil {
		in = interp.New(nil)
	}
	return &Builder{interp: in}
}

// Build returns one record per segment, at least one. Records after the
// first inherit form and the administration flags from the first record
// unless their own segment names them.
func (b *Builder) Build(segments []sig_segmenter.Segment, inputID *string, text string, diags *interp.Diagnostics) []*instruction.StructuredInstruction {
	if len(segments) == 0 {
		segments = []sig_segmenter.Segment{{}}
	}

	out := make([]*instruction.StructuredInstruction, 0, len(segments))
	first := b.buildOne(segments[0], inputID, text, diags)
	out = append(out, first)

	for _, seg := range segments[1:] {
		rec := b.buildOne(seg, inputID, text, diags)
		if rec.Form == nil && !seg.Has(instruction.LabelForm) {
			rec.Form = copyStr(first.Form)
		}
		if !seg.Has(instruction.LabelAsRequired) {
			rec.AsRequired = first.AsRequired
		}
		if !seg.Has(instruction.LabelAsDirected) {
			rec.AsDirected = first.AsDirected
		}
		out = append(out, rec)
	}
	return out
}

// buildOne applies each populated label in builder order. A form read from
// the dosage wins over a FORM entity.
func (b *Builder) buildOne(seg sig_segmenter.Segment, inputID *string, text string, diags *interp.Diagnostics) *instruction.StructuredInstruction {
	rec := &instruction.StructuredInstruction{InputID: copyStr(inputID), Text: text}

	for _, e := range seg.Entities() {
		switch e.Label {
		case instruction.LabelDosage:
			r := b.interp.Dosage(e.Text, diags)
			rec.DosageMin, rec.DosageMax = r.Min, r.Max
			if r.Type != nil {
				rec.Form = r.Type
			}
		case instruction.LabelFrequency:
			r := b.interp.Frequency(e.Text, diags)
			rec.FrequencyMin, rec.FrequencyMax = r.Min, r.Max
			if r.Type != nil {
				rec.FrequencyType = r.Type
			}
		case instruction.LabelForm:
			if rec.Form == nil {
				if form := interp.Singular(e.Text); form != "" {
					rec.Form = &form
				}
			}
		case instruction.LabelDuration:
			r := b.interp.Duration(e.Text, diags)
			rec.DurationMin, rec.DurationMax, rec.DurationType = r.Min, r.Max, r.Type
		case instruction.LabelAsRequired:
			rec.AsRequired = true
		case instruction.LabelAsDirected:
			rec.AsDirected = true
		}
	}
	return rec
}

func copyStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
