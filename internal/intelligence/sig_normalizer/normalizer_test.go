package sig_normalizer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapCorrector corrects from a fixed table and treats everything else as
// known.
type mapCorrector map[string]string

func (m mapCorrector) Known(w string) bool { _, ok := m[w]; return !ok }

func (m mapCorrector) Correct(w string) string {
	if c, ok := m[w]; ok {
		return c
	}
	return w
}

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	assets, err := DefaultAssets()
	require.NoError(t, err)
	return New(assets, WithCorrector(NopCorrector{}))
}

func TestNormalize_Pipeline(t *testing.T) {
	n := newTestNormalizer(t)
	cases := map[string]string{
		"take two tabs MORNING and nghit": "take 2 tablets morning and night",
		"half cap qh":                     "0.5 capsule every hour",
		"two puff(s)":                     "2 puff",
		"one/two with meals":              "1 / 2 with meals",
		"four-six":                        "4 - 6",
		"1/3":                             "0.333",
		"1/2 tab at night":                "0.5 tablet at night",
		"4/2":                             "2.0",
		"3/0":                             "3 / 0",
		"10ml bd":                         "10 ml bd",
		"take 2 tablets twice daily":      "take 2 tablets 2 times daily",
		"quarter tablet prn":              "0.25 tablet as required",
		"every third day":                 "every 3 day",
		"  lots   of \t space  ":          "lots of space",
		"tablets (with food)":             "tablets with food",
		"2\\3":                            "2 \\ 3",
		"":                                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, n.Normalize(in), in)
	}
}

func TestNormalize_UnicodeFractionSlash(t *testing.T) {
	n := newTestNormalizer(t)
	assert.Equal(t, "0.5 tablet", n.Normalize("1⁄2 tablet"))
	// NFKC folds the vulgar fraction into 1⁄2 first.
	assert.Equal(t, "0.5 tablet", n.Normalize("½ tablet"))
}

func TestNormalize_SubstitutionBeforeNumberWords(t *testing.T) {
	assets := &Assets{Replacements: map[string]string{"one": "single"}}
	n := New(assets, WithCorrector(NopCorrector{}))
	assert.Equal(t, "single dose", n.Normalize("ONE dose"))
}

func TestNormalize_Autocorrect(t *testing.T) {
	assets := &Assets{Replacements: map[string]string{}}
	n := New(assets, WithCorrector(mapCorrector{"tabelts": "tablets", "dialy": "daily"}))

	assert.Equal(t, "2 tablets daily", n.Normalize("2 Tabelts dialy"))
	// Tokens with digits or punctuation bypass correction.
	assert.Equal(t, "tabelts 2", n.Normalize("tabelts2"))
}

func TestNormalize_Idempotent(t *testing.T) {
	n := newTestNormalizer(t)
	samples := []string{
		"take two tabs MORNING and nghit",
		"half cap qh",
		"1-2 tablets every 4-6 hours prn max 8 in 24 hours",
		"one puff morning and night",
		"take half after meals and at night time for three weeks",
		"2 - 3 5 ml spoonfuls with meals and at bedtime for 3 weeks as dir",
		"1/3 sachet od",
		"3/0",
		"10mg b.d. for 2 wks",
	}
	for _, s := range samples {
		once := n.Normalize(s)
		assert.Equal(t, once, n.Normalize(once), s)
	}
}

func TestNormalize_WithFuzzyCorrector(t *testing.T) {
	n, err := NewDefault()
	require.NoError(t, err)
	assert.Equal(t, "take 1 tablets daily", n.Normalize("take one tabletts daily"))
}

func TestNormalize_FuzzyCorrectorIsDeterministic(t *testing.T) {
	n, err := NewDefault()
	require.NoError(t, err)

	seen := map[string]int{}
	for i := 0; i < 200; i++ {
		seen[n.Normalize("2 tabletts twice a dya")]++
	}
	assert.Len(t, seen, 1, seen)
	assert.Contains(t, seen, "2 tablets 2 times a day")

	once := n.Normalize("2 tabletts twice a dya")
	assert.Equal(t, once, n.Normalize(once))
}

func TestFuzzyCorrector_TiesResolveTheSameWay(t *testing.T) {
	c := NewFuzzyCorrector([]string{"tablet", "tablets", "daily", "morning", "day", "dab", "dew"})
	for i := 0; i < 100; i++ {
		require.Equal(t, "day", c.Correct("dya"))
		require.Equal(t, "tablets", c.Correct("tabletts"))
	}
}

func TestFuzzyCorrector(t *testing.T) {
	c := NewFuzzyCorrector([]string{"tablet", "tablets", "daily", "morning", "day"})

	assert.True(t, c.Known("daily"))
	assert.False(t, c.Known("dialy"))
	assert.Equal(t, "tablets", c.Correct("tabletts"))
	assert.Equal(t, "morning", c.Correct("mornin"))
	assert.Equal(t, "day", c.Correct("dya"))
	assert.Equal(t, "xy", c.Correct("xy"))
	assert.Equal(t, "zzzzzz", c.Correct("zzzzzz"))
}

func TestNopCorrector(t *testing.T) {
	var c NopCorrector
	assert.True(t, c.Known("anything"))
	assert.Equal(t, "abc", c.Correct("abc"))
}

func TestFractionToDecimal(t *testing.T) {
	cases := map[string]string{
		"half":    "0.5",
		"quarter": "0.25",
		"1/3":     "0.333",
		"2/3":     "0.667",
		"1/4":     "0.25",
		"6/3":     "2.0",
		"1/0":     "1/0",
		"a/2":     "a/2",
		"1/2/3":   "1/2/3",
		"tablet":  "tablet",
	}
	for in, want := range cases {
		assert.Equal(t, want, fractionToDecimal(in), in)
	}
}

func TestWordToNumber(t *testing.T) {
	v, ok := wordToNumber("seven")
	assert.True(t, ok)
	assert.Equal(t, "7", v)

	v, ok = wordToNumber("ninth")
	assert.True(t, ok)
	assert.Equal(t, "9", v)

	v, ok = wordToNumber("tablet")
	assert.False(t, ok)
	assert.Equal(t, "tablet", v)
}

func TestNormalize_CompoundNumberWordsStaySeparate(t *testing.T) {
	n := newTestNormalizer(t)
	assert.Equal(t, "20 5 ml daily", n.Normalize("twenty five ml daily"))
}

func TestParseReplacements(t *testing.T) {
	m, err := ParseReplacements(strings.NewReader("After,Before\nTablet,TAB\n,\nx,\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"tab": "Tablet"}, m)

	_, err = ParseReplacements(strings.NewReader("from,to\na,b\n"))
	assert.Error(t, err)

	_, err = ParseReplacements(strings.NewReader(""))
	assert.Error(t, err)
}

func TestParseKeepWords(t *testing.T) {
	words, err := ParseKeepWords(strings.NewReader("Tablet daily\ntablet\n  night "))
	require.NoError(t, err)
	assert.Equal(t, []string{"tablet", "daily", "night"}, words)
}

func TestLoadAssets_FromFiles(t *testing.T) {
	dir := t.TempDir()
	repl := filepath.Join(dir, "replace.csv")
	require.NoError(t, os.WriteFile(repl, []byte("Before,After\nfoo,bar\n"), 0o644))

	assets, err := LoadAssets(AssetPaths{ReplaceWords: repl})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"foo": "bar"}, assets.Replacements)
	assert.Contains(t, assets.KeepWords, "tablet")

	_, err = LoadAssets(AssetPaths{KeepWords: filepath.Join(dir, "missing.txt")})
	assert.Error(t, err)
}

func TestReloadable_WatchPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	repl := filepath.Join(dir, "replace.csv")
	require.NoError(t, os.WriteFile(repl, []byte("Before,After\nfoo,bar\n"), 0o644))

	r, err := NewReloadable(AssetPaths{ReplaceWords: repl}, WithCorrector(NopCorrector{}))
	require.NoError(t, err)
	assert.Equal(t, "bar", r.Normalize("foo"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, nil) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(repl, []byte("Before,After\nfoo,baz\n"), 0o644))

	assert.Eventually(t, func() bool { return r.Normalize("foo") == "baz" }, 5*time.Second, 20*time.Millisecond)
}

func TestReloadable_WatchWithoutPathsReturns(t *testing.T) {
	r, err := NewReloadable(AssetPaths{}, WithCorrector(NopCorrector{}))
	require.NoError(t, err)
	assert.NoError(t, r.Watch(context.Background(), nil))
}
