package sig_interpreter

import (
	"regexp"
	"strings"
)

var (
	reLatinWordSplit = regexp.MustCompile(`[ :;\-,]`)
	reListSplit      = regexp.MustCompile(`and|,|/|;`)
)

var (
	boundMaxMarkers      = []string{"max", "upto", "up to", "Maximum"}
	boundMinMarkers      = []string{"at least", "min"}
	explicitRangeMarkers = []string{" to ", "-", " or "}
	listMarkers          = []string{"and", " / ", " ; "}
	clockMarkers         = []string{"am", "pm"}
	nonRangeMarkers      = []string{" x ", " ml ", " mg "}
)

// ExtractRange infers (min, max) from a span by trying, in order: bounded
// phrasing ("max 4", "at least 2"), an explicit connector ("2 to 4",
// "3 - 4", "1 or 2"), list phrasing ("morning and night") and finally the
// spread of two or more bare numbers. When nothing applies both bounds are
// def.
func (in *Interpreter) ExtractRange(text string, def *float64, diags *Diagnostics) (*float64, *float64) {
	nums := findNumbers(text)
	for _, word := range reLatinWordSplit.Split(text, -1) {
		if latin, ok := in.vocab.LatinWord(word); ok {
			nums = append(nums, latin.Multiplier)
		}
	}

	if lo, hi, ok := in.checkMinMaxAmount(text, nums, diags); ok {
		return lo, hi
	}
	if lo, hi, ok := in.checkExplicitRange(text, nums, diags); ok {
		return lo, hi
	}
	if lo, hi, ok := in.checkRangeFromList(text, diags); ok {
		return lo, hi
	}
	if len(nums) >= 2 && !containsAny(text, nonRangeMarkers) {
		lo, hi := minMax(nums)
		return ptr(lo), ptr(hi)
	}
	return copyPtr(def), copyPtr(def)
}

// checkMinMaxAmount handles "up to x" and "at least x".
func (in *Interpreter) checkMinMaxAmount(text string, nums []float64, diags *Diagnostics) (*float64, *float64, bool) {
	switch {
	case containsAny(text, boundMaxMarkers):
		lo, hi := boundingNumbers(nums, BoundMax, diags)
		if hi != nil {
			return lo, hi, true
		}
		if strings.Contains(text, " a ") {
			return ptr(0), ptr(1), true
		}
		return nil, nil, false
	case containsAny(text, boundMinMarkers):
		if len(nums) == 0 {
			if strings.Contains(text, " a ") || strings.HasSuffix(text, " a") {
				return ptr(1), nil, true
			}
			return nil, nil, true
		}
		lo, hi := boundingNumbers(nums, BoundMin, diags)
		return lo, hi, true
	}
	return nil, nil, false
}

// checkExplicitRange handles "to", "-" and "or" connectors. A third number
// directly before "ml"/"mg" multiplies both bounds, so "2 to 4 5 ml
// spoonfuls" reads as 10 to 20.
func (in *Interpreter) checkExplicitRange(text string, nums []float64, diags *Diagnostics) (*float64, *float64, bool) {
	if !containsAny(text, explicitRangeMarkers) {
		return nil, nil, false
	}
	words := strings.Fields(text)
	var connectors []int
	for i, w := range words {
		if w == "to" || w == "-" || w == "or" {
			connectors = append(connectors, i)
		}
	}

	var lo, hi *float64
	parsed := false
	if len(connectors) == 1 {
		i := connectors[0]
		if i > 0 && i+1 < len(words) {
			a, okA := parseToken(words[i-1])
			b, okB := parseToken(words[i+1])
			if okA && okB {
				if a > b {
					a, b = b, a
				}
				lo, hi, parsed = ptr(a), ptr(b), true
			}
		}
	} else if len(connectors) > 1 {
		diags.Warnf("explicit-range", "more than one range connector in %q, using overall min and max", text)
	}
	if !parsed && len(nums) > 0 {
		a, b := minMax(nums)
		lo, hi = ptr(a), ptr(b)
	}

	if len(nums) > 2 && len(connectors) == 1 && lo != nil {
		var units []int
		for i, w := range words {
			if w == "ml" || w == "mg" {
				units = append(units, i)
			}
		}
		if len(units) > 1 {
			diags.Warnf("unit-multiplier", "more than one ml/mg unit in %q, using first", text)
		}
		if len(units) > 0 && units[0] > 0 {
			if m, ok := parseToken(words[units[0]-1]); ok {
				*lo *= m
				*hi *= m
			}
		}
	}
	return lo, hi, true
}

// checkRangeFromList handles lists of administration times. Named clock
// times count one each ("8 am and 6 pm" → 2); otherwise each item
// contributes its NumberOfTimes ("with meals and at bedtime" → 4).
func (in *Interpreter) checkRangeFromList(text string, diags *Diagnostics) (*float64, *float64, bool) {
	if !containsAny(text, listMarkers) {
		return nil, nil, false
	}
	text = strings.ReplaceAll(text, "/ day", " ")
	text = strings.ReplaceAll(text, "/ d", " ")
	parts := reListSplit.Split(text, -1)

	if containsAny(text, clockMarkers) {
		n := float64(len(parts))
		return ptr(n), ptr(n), true
	}
	var sum float64
	zero := 0.0
	for _, p := range parts {
		if n := in.NumberOfTimes(p, &zero); n != nil {
			sum += *n
		}
	}
	return ptr(sum), ptr(sum), true
}

func copyPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
