// Package sig_interpreter turns the raw text of a single DOSAGE, FREQUENCY
// or DURATION span into numeric bounds and a category.
//
// All rules are deterministic and side-effect free. Ambiguities are reported
// through a *Diagnostics collector rather than logged.
package sig_interpreter

// Result is the interpretation of one span. Nil bounds mean unspecified.
// Type holds the frequency or duration unit, or the dosage form.
type Result struct {
	Min  *float64 `json:"min"`
	Max  *float64 `json:"max"`
	Type *string  `json:"type"`
}

// Interpreter applies the field rules against a fixed Vocabulary.
type Interpreter struct {
	vocab *Vocabulary
}

// New returns an Interpreter bound to vocab. A nil vocab selects
// DefaultVocabulary().
func New(vocab *Vocabulary) *Interpreter {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Interpreter{vocab: vocab}
}

// Vocabulary returns the lookup tables in use.
func (in *Interpreter) Vocabulary() *Vocabulary {
	return in.vocab
}
