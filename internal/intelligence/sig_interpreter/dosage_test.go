package sig_interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsStrFloat(t *testing.T) {
	assert.True(t, isStrFloat("3"))
	assert.True(t, isStrFloat("2.012"))
	assert.False(t, isStrFloat("1 puff"))
	assert.False(t, isStrFloat("tablets"))
}

func TestFormFromDosageTag(t *testing.T) {
	tests := map[string]string{
		"2 tablets":     "tablets",
		"30ml spoonful": "spoonful",
		"1 puff":        "puff",
		"1 8 tablets":   "",
		"2 5":           "",
		"single":        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, formFromDosageTag(in), in)
	}
}

func TestSingular(t *testing.T) {
	tests := map[string]string{
		"tablets":   "tablet",
		"pill":      "pill",
		"puffs":     "puff",
		"capsules":  "capsule",
		"patches":   "patch",
		"spoonfuls": "spoonful",
		"":          "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Singular(in), in)
	}
}

func TestContinuousDose(t *testing.T) {
	in := New(nil)
	tests := []struct {
		text string
		want Result
	}{
		{"3 5 ml spoonfuls", Result{f(15), f(15), s("ml")}},
		{"1 tablet", Result{}},
		{"10 - 20 mg", Result{f(10), f(20), s("mg")}},
		{"3 mg something ml", Result{f(3), f(3), s("mg")}},
		{"ml spoonfuls", Result{nil, nil, s("ml")}},
	}
	for _, tt := range tests {
		lo, hi, form := in.continuousDose(tt.text, nil)
		assertResult(t, tt.want, Result{lo, hi, form}, tt.text)
	}
}

func TestContinuousDose_WarnsOnMixedUnits(t *testing.T) {
	d := NewDiagnostics()
	New(nil).continuousDose("3 mg something ml", d)
	if assert.Equal(t, 1, d.Len()) {
		assert.Equal(t, "continuous-dose", d.Entries()[0].Rule)
	}
}

func TestDosage(t *testing.T) {
	in := New(nil)
	tests := []struct {
		text string
		want Result
	}{
		{"2 x 10 ml", Result{f(20), f(20), s("ml")}},
		{"2 - 3", Result{f(2), f(3), nil}},
		{"max 4", Result{f(0), f(4), nil}},
		{"2", Result{f(2), f(2), nil}},
		{"8 something 1", Result{f(1), f(8), nil}},
		{"no number", Result{}},
		{"2 tablets", Result{f(2), f(2), s("tablet")}},
		{"1 puff", Result{f(1), f(1), s("puff")}},
		{"0.5", Result{f(0.5), f(0.5), nil}},
		{"1 and 3", Result{f(4), f(4), nil}},
		{"take 2", Result{f(2), f(2), nil}},
		{"", Result{}},
	}
	for _, tt := range tests {
		assertResult(t, tt.want, in.Dosage(tt.text, nil), tt.text)
	}
}
