package sig_interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVocabulary_LatinOrder(t *testing.T) {
	v := DefaultVocabulary()

	l, ok := v.LatinIn("qds")
	assert.True(t, ok)
	assert.Equal(t, "qd", l.Abbreviation)

	l, ok = v.LatinIn("1 tds")
	assert.True(t, ok)
	assert.Equal(t, 3.0, l.Multiplier)

	_, ok = v.LatinIn("daily")
	assert.False(t, ok)
}

func TestVocabulary_LatinWordIsExact(t *testing.T) {
	v := DefaultVocabulary()
	_, ok := v.LatinWord("bds")
	assert.False(t, ok)
	l, ok := v.LatinWord("bid")
	assert.True(t, ok)
	assert.Equal(t, 2.0, l.Multiplier)
}

func TestVocabulary_IsACopy(t *testing.T) {
	latin := []LatinFrequency{{"od", "Day", 1}}
	collapse := map[string]string{"60 Minute": "Hour"}
	v := NewVocabulary(latin, collapse, nil)

	latin[0].Multiplier = 9
	collapse["60 Minute"] = "Day"

	l, _ := v.LatinIn("od")
	assert.Equal(t, 1.0, l.Multiplier)
	assert.Equal(t, "Hour", v.Collapse("60 Minute"))
	assert.Equal(t, "3 Day", v.Collapse("3 Day"))
}

func TestNew_NilVocabularyUsesDefault(t *testing.T) {
	assert.Same(t, DefaultVocabulary(), New(nil).Vocabulary())
}
