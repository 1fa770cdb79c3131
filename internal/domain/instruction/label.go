// Package instruction holds the domain types of a parsed dose instruction:
// the tagger's labels and entities, the structured output record and the
// persistence contract for it.
package instruction

import "strings"

// Label is the tag attached to an entity span by the extractor.
type Label string

const (
	LabelDosage     Label = "DOSAGE"
	LabelFrequency  Label = "FREQUENCY"
	LabelForm       Label = "FORM"
	LabelDuration   Label = "DURATION"
	LabelAsRequired Label = "AS_REQUIRED"
	LabelAsDirected Label = "AS_DIRECTED"

	// Tagged by the model but never used to build a record.
	LabelDrug     Label = "DRUG"
	LabelStrength Label = "STRENGTH"
	LabelRoute    Label = "ROUTE"
)

// KnownLabels lists the labels that contribute to a StructuredInstruction,
// in the order the builder applies them.
var KnownLabels = []Label{
	LabelDosage,
	LabelFrequency,
	LabelForm,
	LabelDuration,
	LabelAsRequired,
	LabelAsDirected,
}

// ParseLabel maps raw tagger output onto a Label. Matching ignores case and
// accepts "-" or " " in place of "_". Anything else is returned upper-cased
// and will report IsKnown() == false.
func ParseLabel(s string) Label {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	return Label(s)
}

// IsKnown reports whether l contributes to a structured record.
func (l Label) IsKnown() bool {
	switch l {
	case LabelDosage, LabelFrequency, LabelForm, LabelDuration, LabelAsRequired, LabelAsDirected:
		return true
	}
	return false
}

// IsIgnored reports whether l is a recognised label that is always dropped.
func (l Label) IsIgnored() bool {
	switch l {
	case LabelDrug, LabelStrength, LabelRoute:
		return true
	}
	return false
}

func (l Label) String() string { return string(l) }
