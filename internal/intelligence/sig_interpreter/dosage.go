package sig_interpreter

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// continuousUnits are checked in order; the first one present wins.
var continuousUnits = []string{"mg", "ml"}

// Dosage interprets a DOSAGE span. Type carries the dosage form when one
// can be read from the span.
//
//	"2 x 10 ml" → 20, 20, "ml"
//	"2 - 3"     → 2, 3, nil
//	"max 4"     → 0, 4, nil
//	"2 tablets" → 2, 2, "tablet"
func (in *Interpreter) Dosage(text string, diags *Diagnostics) Result {
	lo, hi, form := in.continuousDose(text, diags)
	if lo == nil {
		lo, hi = in.ExtractRange(text, nil, diags)
	}
	if lo != nil {
		return Result{Min: lo, Max: hi, Type: form}
	}

	fields := strings.Fields(text)
	if len(fields) > 0 && isLeadingNumber(fields[0]) {
		if f, ok := parseToken(fields[0]); ok {
			if tag := formFromDosageTag(text); tag != "" {
				form = strPtr(Singular(tag))
			}
			return Result{Min: ptr(f), Max: ptr(f), Type: form}
		}
	}

	if nums := findNumbersNoCommas(text); len(nums) > 0 {
		return Result{Min: ptr(nums[0]), Max: ptr(nums[0]), Type: form}
	}
	return Result{Type: form}
}

// continuousDose handles measured doses in mg or ml. Without a range, all
// numbers multiply together so "3 5 ml spoonfuls" reads as 15 ml.
func (in *Interpreter) continuousDose(text string, diags *Diagnostics) (*float64, *float64, *string) {
	var found []string
	for _, u := range continuousUnits {
		if strings.Contains(text, u) {
			found = append(found, u)
		}
	}
	if len(found) == 0 {
		return nil, nil, nil
	}
	if len(found) > 1 {
		diags.Warnf("continuous-dose", "more than one continuous measure %v in %q, using %s", found, text, found[0])
	}
	form := strPtr(found[0])

	lo, hi := in.ExtractRange(text, nil, diags)
	if lo != nil {
		return lo, hi, form
	}
	nums := findNumbersNoCommas(text)
	if len(nums) == 0 {
		return nil, nil, form
	}
	dose := 1.0
	for _, n := range nums {
		dose *= n
	}
	return ptr(dose), ptr(dose), form
}

// formFromDosageTag returns the second word of a two-word span such as
// "2 tablets", unless it is itself a number.
func formFromDosageTag(text string) string {
	parts := strings.Split(text, " ")
	if len(parts) != 2 || isStrFloat(parts[1]) {
		return ""
	}
	return parts[1]
}

// Singular reduces a plural noun to its singular form; unknown words are
// returned unchanged.
func Singular(word string) string {
	if word == "" {
		return word
	}
	if s := inflection.Singular(word); s != "" {
		return s
	}
	return word
}
