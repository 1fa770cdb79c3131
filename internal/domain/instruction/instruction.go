package instruction

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StructuredInstruction is the parsed form of one logical dose instruction.
// A nil pointer field means "unspecified"; a zero value means an explicit
// zero or an open lower bound.
type StructuredInstruction struct {
	InputID       *string  `json:"inputId"`
	Text          string   `json:"text"`
	Form          *string  `json:"form"`
	DosageMin     *float64 `json:"dosageMin"`
	DosageMax     *float64 `json:"dosageMax"`
	FrequencyMin  *float64 `json:"frequencyMin"`
	FrequencyMax  *float64 `json:"frequencyMax"`
	FrequencyType *string  `json:"frequencyType"`
	DurationMin   *float64 `json:"durationMin"`
	DurationMax   *float64 `json:"durationMax"`
	DurationType  *string  `json:"durationType"`
	AsRequired    bool     `json:"asRequired"`
	AsDirected    bool     `json:"asDirected"`
}

// NewEmpty returns the record emitted when parsing an input fails: only the
// id and text are carried over.
func NewEmpty(inputID *string, text string) *StructuredInstruction {
	return &StructuredInstruction{InputID: inputID, Text: text}
}

// IsEmpty reports whether no field beyond id and text was populated.
func (s *StructuredInstruction) IsEmpty() bool {
	return s.Form == nil &&
		s.DosageMin == nil && s.DosageMax == nil &&
		s.FrequencyMin == nil && s.FrequencyMax == nil && s.FrequencyType == nil &&
		s.DurationMin == nil && s.DurationMax == nil && s.DurationType == nil &&
		!s.AsRequired && !s.AsDirected
}

// String renders the record the way the text output format prints it.
func (s *StructuredInstruction) String() string {
	return fmt.Sprintf(
		"StructuredInstruction(inputId=%s, text=%q, form=%s, dosageMin=%s, dosageMax=%s, "+
			"frequencyMin=%s, frequencyMax=%s, frequencyType=%s, durationMin=%s, durationMax=%s, "+
			"durationType=%s, asRequired=%t, asDirected=%t)",
		strOrNone(s.InputID), s.Text, strOrNone(s.Form),
		floatOrNone(s.DosageMin), floatOrNone(s.DosageMax),
		floatOrNone(s.FrequencyMin), floatOrNone(s.FrequencyMax), strOrNone(s.FrequencyType),
		floatOrNone(s.DurationMin), floatOrNone(s.DurationMax), strOrNone(s.DurationType),
		s.AsRequired, s.AsDirected,
	)
}

// CSVHeader is the column order used by CSVRecord.
func CSVHeader() []string {
	return []string{
		"inputId", "text", "form", "dosageMin", "dosageMax",
		"frequencyMin", "frequencyMax", "frequencyType",
		"durationMin", "durationMax", "durationType",
		"asRequired", "asDirected",
	}
}

// CSVRecord renders the record as one CSV row. Nil fields become empty cells.
func (s *StructuredInstruction) CSVRecord() []string {
	return []string{
		strOrEmpty(s.InputID), s.Text, strOrEmpty(s.Form),
		floatOrEmpty(s.DosageMin), floatOrEmpty(s.DosageMax),
		floatOrEmpty(s.FrequencyMin), floatOrEmpty(s.FrequencyMax), strOrEmpty(s.FrequencyType),
		floatOrEmpty(s.DurationMin), floatOrEmpty(s.DurationMax), strOrEmpty(s.DurationType),
		strconv.FormatBool(s.AsRequired), strconv.FormatBool(s.AsDirected),
	}
}

// Record is a persisted StructuredInstruction.
type Record struct {
	ID        string                 `json:"id"`
	BatchID   string                 `json:"batchId,omitempty"`
	Seq       int                    `json:"seq"`
	CreatedAt time.Time              `json:"createdAt"`
	Result    *StructuredInstruction `json:"result"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Str returns a pointer to v.
func Str(v string) *string { return &v }

func strOrNone(p *string) string {
	if p == nil {
		return "None"
	}
	return strconv.Quote(*p)
}

func floatOrNone(p *float64) string {
	if p == nil {
		return "None"
	}
	return formatFloat(*p)
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func floatOrEmpty(p *float64) string {
	if p == nil {
		return ""
	}
	return formatFloat(*p)
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
