package sig_interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func s(v string) *string { return &v }

func assertBounds(t *testing.T, wantMin, wantMax, gotMin, gotMax *float64, msg string) {
	t.Helper()
	assert.Equal(t, wantMin, gotMin, "min: "+msg)
	assert.Equal(t, wantMax, gotMax, "max: "+msg)
}

func assertResult(t *testing.T, want, got Result, msg string) {
	t.Helper()
	assertBounds(t, want.Min, want.Max, got.Min, got.Max, msg)
	assert.Equal(t, want.Type, got.Type, "type: "+msg)
}
