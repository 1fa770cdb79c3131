package instruction

import "fmt"

// Entity is one labelled span over normalized text. Start and End are byte
// offsets into the normalized text, or -1 when the extractor does not
// report them.
type Entity struct {
	Label Label   `json:"label"`
	Text  string  `json:"text"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score,omitempty"`
}

// NewEntity builds an Entity without offsets.
func NewEntity(label Label, text string) Entity {
	return Entity{Label: label, Text: text, Start: -1, End: -1}
}

func (e Entity) String() string {
	return fmt.Sprintf("%s(%q)", e.Label, e.Text)
}
