package sig_interpreter

import (
	"regexp"
	"strings"
	"unicode"
)

var reHourly = regexp.MustCompile(`hourly|hrly`)

// hourlySeparators are skipped together with the numbers in front of an
// "hourly" token.
var hourlySeparators = map[string]bool{"/": true, "-": true, `\`: true, ";": true, "times": true}

// Frequency interprets a FREQUENCY span as administrations per unit.
//
//	"2 to 5 times a week"        → 2, 5, "Week"
//	"1 or 2 times every 4 weeks" → 1, 2, "Month"
//	"6 hrly"                     → 1, 1, "6 Hour"
//
// A span that yields no count defaults to once.
func (in *Interpreter) Frequency(text string, diags *Diagnostics) Result {
	var (
		lo, hi   *float64
		freqType *string
	)
	switch {
	case strings.Contains(text, "every"):
		// The count comes from before "every", the unit from after it.
		idx := strings.Index(text, "every")
		before, after := text[:idx], text[idx+len("every"):]
		freqType = in.FrequencyType("every"+after, diags)
		lo, hi = in.ExtractRange(before, nil, diags)
		text = before
	case strings.Contains(text, "hrly") || strings.Contains(text, "hourly"):
		lo, hi, freqType = in.hourlyAdjusted(text, diags)
	default:
		freqType = in.FrequencyType(text, diags)
		lo, hi = in.ExtractRange(text, nil, diags)
	}

	if lo == nil {
		n := in.NumberOfTimes(text, nil)
		lo, hi = n, copyPtr(n)
	}
	if lo == nil {
		lo, hi = oneOrTwoNumbers(text)
	}
	if lo == nil {
		lo, hi = ptr(1), ptr(1)
	}
	return Result{Min: lo, Max: hi, Type: freqType}
}

// hourlyAdjusted handles "x hourly" so the interval is not read as a count:
// the numbers in front of the hourly token are removed before the range
// rules run, with a default of once.
func (in *Interpreter) hourlyAdjusted(text string, diags *Diagnostics) (*float64, *float64, *string) {
	matches := reHourly.FindAllString(text, -1)
	if len(matches) != 1 {
		diags.Warnf("hourly", "more than one use of hourly/hrly in %q, taking first instance", text)
	}
	match := matches[0]
	freqType := in.FrequencyType(text, diags)

	words := strings.Fields(text)
	keep := make([]bool, len(words))
	for i := range keep {
		keep[i] = true
	}
	at := indexOf(words, match)
	if at < 0 {
		diags.Warnf("hourly", "%q is not a separate token in %q", match, text)
	}
	for i := at; i >= 0; i-- {
		w := words[i]
		if isNumeric(strings.ReplaceAll(w, ".", "")) || hourlySeparators[w] || w == match {
			keep[i] = false
			continue
		}
		break
	}

	rest := make([]string, 0, len(words))
	for i, w := range words {
		if keep[i] {
			rest = append(rest, w)
		}
	}
	lo, hi := in.ExtractRange(strings.Join(rest, " "), ptr(1), diags)
	return lo, hi, freqType
}

// NumberOfTimes reads a single administration count from a span. A clock
// time such as "8 am" is not a count. Explicit digits win, then "other"
// (every other unit, 0.5), Latin shorthand, meal words (3) and once-daily
// words (1). Otherwise def is returned.
func (in *Interpreter) NumberOfTimes(text string, def *float64) *float64 {
	words := strings.Fields(text)
	if containsAny(text, clockMarkers) {
		words = dropClockHours(words)
	}
	for _, w := range words {
		if isDigits(w) {
			if f, ok := parseToken(w); ok {
				return ptr(f)
			}
		}
	}
	if strings.Contains(text, "other") {
		return ptr(0.5)
	}
	if latin, ok := in.vocab.LatinIn(text); ok {
		return ptr(latin.Multiplier)
	}
	if containsAny(text, mealMarkers) {
		return ptr(3)
	}
	if containsAny(text, oncePerDayMarkers) {
		return ptr(1)
	}
	return copyPtr(def)
}

// dropClockHours removes the number in front of each "am"/"pm" token.
func dropClockHours(words []string) []string {
	out := make([]string, 0, len(words))
	for i, w := range words {
		if i+1 < len(words) && (words[i+1] == "am" || words[i+1] == "pm") && isLeadingNumber(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// oneOrTwoNumbers reads one number as (n, n) and two as (first, second).
func oneOrTwoNumbers(text string) (*float64, *float64) {
	nums := findNumbersNoCommas(text)
	switch len(nums) {
	case 1:
		return ptr(nums[0]), ptr(nums[0])
	case 2:
		return ptr(nums[0]), ptr(nums[1])
	}
	return nil, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}

func indexOf(words []string, w string) int {
	for i, x := range words {
		if x == w {
			return i
		}
	}
	return -1
}
