package sig_interpreter

import "strings"

// ---------------------------------------------------------------------------
// Frequency descriptors
// ---------------------------------------------------------------------------

// LatinFrequency is a fixed medical shorthand such as "bid" with the
// frequency type and the number of administrations it implies.
type LatinFrequency struct {
	Abbreviation  string
	FrequencyType string
	Multiplier    float64
}

// DefaultLatinFrequencies is checked in order; the first abbreviation that
// occurs as a substring of a span wins.
var DefaultLatinFrequencies = []LatinFrequency{
	{"qd", "Day", 4},
	{"qds", "Day", 4},
	{"bid", "Day", 2},
	{"b/d", "Day", 2},
	{"bd", "Day", 2},
	{"tid", "Day", 3},
	{"qid", "Day", 4},
	{"tds", "Day", 3},
}

// DefaultTypeCollapse maps compound unit strings onto canonical types.
var DefaultTypeCollapse = map[string]string{
	"7 Day":   "Week",
	"24 Hour": "Day",
	"48 Hour": "2 Day",
	"14 Day":  "2 Week",
	"4 Week":  "Month",
}

// DefaultQuantityWords are ordinal words read as unit multiples in phrases
// like "every third day".
var DefaultQuantityWords = map[string]int{
	"second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9,
}

// ---------------------------------------------------------------------------
// Keyword classes
// ---------------------------------------------------------------------------

var (
	hourMarkers = []string{"hour", "hr"}
	weekMarkers = []string{
		"week", "wk", "monday", "tuesday", "wednesday", "thursday", "friday",
		"saturday", "sunday", "tue", "wed", "thu", "fri", "sat", "sun",
	}
	monthMarkers = []string{"month", "mnth", "mon "}
	yearMarkers  = []string{"year", "yr"}
	dayMarkers   = []string{
		"day", "daily", "b/d", "bd", "night", "morning", "evening", "noon", "bedtime", "bed",
		"breakfast", "tea", "lunch", "dinner", "meal", "nocte", "mane", "feed", "am", "pm",
		"tds", "qds",
	}

	// Markers that imply one administration per day in NumberOfTimes.
	oncePerDayMarkers = []string{
		"bed", "morning", "daily", "night", "evening", "noon", "breakfast", "tea",
		"lunch", "dinner", "mane", "nocte", "day",
	}
	mealMarkers = []string{"meals", "feed", "food"}

	multiplePrefixMarkers = []string{"every", "hrly", "hourly"}
	alternateMarkers      = []string{"alternate", "every other"}
)

// ---------------------------------------------------------------------------
// Vocabulary
// ---------------------------------------------------------------------------

// Vocabulary is the read-only lookup data shared by every interpreter. It is
// built once and never mutated, so one instance can serve any number of
// goroutines.
type Vocabulary struct {
	latin    []LatinFrequency
	latinIdx map[string]LatinFrequency
	collapse map[string]string
	ordinals map[string]int
}

// NewVocabulary copies the given tables into an immutable Vocabulary.
func NewVocabulary(latin []LatinFrequency, collapse map[string]string, ordinals map[string]int) *Vocabulary {
	v := &Vocabulary{
		latin:    make([]LatinFrequency, len(latin)),
		latinIdx: make(map[string]LatinFrequency, len(latin)),
		collapse: make(map[string]string, len(collapse)),
		ordinals: make(map[string]int, len(ordinals)),
	}
	copy(v.latin, latin)
	for _, l := range latin {
		if _, dup := v.latinIdx[l.Abbreviation]; !dup {
			v.latinIdx[l.Abbreviation] = l
		}
	}
	for k, val := range collapse {
		v.collapse[k] = val
	}
	for k, val := range ordinals {
		v.ordinals[k] = val
	}
	return v
}

var defaultVocabulary = NewVocabulary(DefaultLatinFrequencies, DefaultTypeCollapse, DefaultQuantityWords)

// DefaultVocabulary returns the shared built-in Vocabulary.
func DefaultVocabulary() *Vocabulary {
	return defaultVocabulary
}

// LatinIn returns the first shorthand that occurs anywhere in text.
func (v *Vocabulary) LatinIn(text string) (LatinFrequency, bool) {
	for _, l := range v.latin {
		if strings.Contains(text, l.Abbreviation) {
			return l, true
		}
	}
	return LatinFrequency{}, false
}

// LatinWord returns the shorthand whose abbreviation equals word exactly.
func (v *Vocabulary) LatinWord(word string) (LatinFrequency, bool) {
	l, ok := v.latinIdx[word]
	return l, ok
}

// Collapse maps a compound type onto its canonical form, or returns it
// unchanged.
func (v *Vocabulary) Collapse(freqType string) string {
	if c, ok := v.collapse[freqType]; ok {
		return c
	}
	return freqType
}

// Ordinal returns the multiple denoted by a quantity word such as "third".
func (v *Vocabulary) Ordinal(word string) (int, bool) {
	n, ok := v.ordinals[word]
	return n, ok
}

func containsAny(text string, subs []string) bool {
	for _, s := range subs {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}
