package instruction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		in   string
		want Label
	}{
		{"DOSAGE", LabelDosage},
		{"frequency", LabelFrequency},
		{" as-required ", LabelAsRequired},
		{"as directed", LabelAsDirected},
		{"Drug", LabelDrug},
		{"DOSE_UNIT", Label("DOSE_UNIT")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLabel(tt.in), tt.in)
	}
}

func TestLabel_Classification(t *testing.T) {
	for _, l := range KnownLabels {
		assert.True(t, l.IsKnown(), l)
		assert.False(t, l.IsIgnored(), l)
	}
	for _, l := range []Label{LabelDrug, LabelStrength, LabelRoute} {
		assert.False(t, l.IsKnown(), l)
		assert.True(t, l.IsIgnored(), l)
	}
	unknown := Label("QUANTITY")
	assert.False(t, unknown.IsKnown())
	assert.False(t, unknown.IsIgnored())
}

func TestNewEntity(t *testing.T) {
	e := NewEntity(LabelForm, "tablets")
	assert.Equal(t, -1, e.Start)
	assert.Equal(t, -1, e.End)
	assert.Equal(t, `FORM("tablets")`, e.String())
}
