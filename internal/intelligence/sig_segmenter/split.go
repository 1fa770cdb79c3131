package sig_segmenter

import (
	"strings"

	"github.com/turtacn/sigparse/internal/domain/instruction"
)

// scanState is the one-entity lookahead of the split scan.
type scanState int

const (
	// stateNormal keeps entities according to the repeat rules.
	stateNormal scanState = iota
	// stateSuppressNextFrequency drops the next entity if it is a
	// FREQUENCY. Entered after a DOSAGE is discarded, left after any entity.
	stateSuppressNextFrequency
)

func (s scanState) String() string {
	switch s {
	case stateNormal:
		return "NORMAL"
	case stateSuppressNextFrequency:
		return "SUPPRESS_NEXT_FREQUENCY"
	}
	return "UNKNOWN"
}

// Words that mark a repeated span as a ceiling statement such as
// "max 8 in 24 hours" rather than a new instruction.
var (
	dosageCeilingWords    = []string{"max", "maximum", "up", "upto", "8"}
	frequencyCeilingWords = []string{"24", "maximum"}
)

// scanner accumulates segments while walking the entity sequence.
type scanner struct {
	state   scanState
	current Segment
	seen    map[instruction.Label]bool
	out     []Segment
}

func newScanner() *scanner {
	return &scanner{seen: make(map[instruction.Label]bool)}
}

// keep applies the repeat rules to e given the labels already seen in the
// open segment.
func (sc *scanner) keep(e instruction.Entity) bool {
	if e.Label.IsIgnored() {
		return false
	}
	if !sc.seen[e.Label] {
		return true
	}
	switch e.Label {
	case instruction.LabelForm:
		return false
	case instruction.LabelDosage:
		return !hasWord(e.Text, dosageCeilingWords)
	case instruction.LabelFrequency:
		return !hasWord(e.Text, frequencyCeilingWords)
	}
	return true
}

// step consumes one entity.
func (sc *scanner) step(e instruction.Entity) {
	kept := sc.keep(e)
	if e.Label == instruction.LabelFrequency && sc.state == stateSuppressNextFrequency {
		kept = false
	}
	if e.Label == instruction.LabelDosage && !kept {
		sc.state = stateSuppressNextFrequency
	} else {
		sc.state = stateNormal
	}

	if !kept || !e.Label.IsKnown() {
		return
	}
	if sc.seen[e.Label] {
		sc.flush()
	}
	sc.current.Set(e.Label, e.Text)
	sc.seen[e.Label] = true
}

func (sc *scanner) flush() {
	sc.out = append(sc.out, sc.current)
	sc.current = Segment{}
	for k := range sc.seen {
		delete(sc.seen, k)
	}
}

// Split walks entities in order and closes a segment whenever a kept label
// repeats. The result always holds at least one segment, possibly empty.
func Split(entities []instruction.Entity) []Segment {
	sc := newScanner()
	for _, e := range entities {
		sc.step(e)
	}
	sc.flush()
	return sc.out
}

func hasWord(text string, words []string) bool {
	for _, f := range strings.Fields(text) {
		for _, w := range words {
			if f == w {
				return true
			}
		}
	}
	return false
}
