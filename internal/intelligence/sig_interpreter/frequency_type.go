package sig_interpreter

import (
	"regexp"
	"strconv"
	"strings"
)

var reTrailingDigitH = regexp.MustCompile(`\dh$`)

// FrequencyType classifies the unit of a frequency or duration span, e.g.
// "daily" → "Day", "every 6 hours" → "6 Hour", "fortnightly" → "2 Week".
// It returns nil when no unit keyword is present.
func (in *Interpreter) FrequencyType(text string, diags *Diagnostics) *string {
	var freqType *string
	switch {
	case containsAny(text, hourMarkers) || reTrailingDigitH.MatchString(text):
		freqType = strPtr("Hour")
	case containsAny(text, weekMarkers):
		freqType = strPtr("Week")
	case strings.Contains(text, "fortnight"):
		freqType = strPtr("2 Week")
	case containsAny(text, monthMarkers):
		freqType = strPtr("Month")
	case containsAny(text, yearMarkers):
		freqType = strPtr("Year")
	case containsAny(text, dayMarkers):
		freqType = strPtr("Day")
	}
	if latin, ok := in.vocab.LatinIn(text); ok {
		freqType = strPtr(latin.FrequencyType)
	}

	freqType = in.addMultipleUnits(text, freqType, diags)
	if freqType == nil {
		return nil
	}
	collapsed := in.vocab.Collapse(*freqType)
	return &collapsed
}

// addMultipleUnits prefixes a unit multiple: "alternate days" → "2 Day",
// "every 3 weeks" → "3 Week". Several candidate numbers select the smallest.
func (in *Interpreter) addMultipleUnits(text string, freqType *string, diags *Diagnostics) *string {
	if freqType == nil {
		return nil
	}
	unit := *freqType
	if containsAny(text, alternateMarkers) {
		unit = "2 " + unit
	}
	if containsAny(text, multiplePrefixMarkers) {
		cands := numberStrings(text)
		for _, word := range strings.Fields(text) {
			if n, ok := in.vocab.Ordinal(word); ok {
				cands = append(cands, strconv.Itoa(n))
			}
		}
		if len(cands) == 0 {
			return &unit
		}
		if len(cands) != 1 {
			diags.Warnf("multiple-units", "more than one number for every x time unit in %q, using lowest", text)
		}
		unit = smallestNumberString(cands) + " " + unit
	}
	return &unit
}
