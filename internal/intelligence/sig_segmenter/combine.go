package sig_segmenter

import "strings"

// FrequencyTyper returns the frequency type of a FREQUENCY span, or nil.
type FrequencyTyper func(text string) *string

// Combine applies both recombination passes: segments with the same dosage
// are merged by joining their frequencies and durations, then segments
// with the same frequency type and no duration are merged by joining their
// dosages.
func Combine(segments []Segment, typeOf FrequencyTyper) []Segment {
	return mergeSameFrequencyType(mergeSameDosage(segments), typeOf)
}

// mergeSameDosage folds each segment into the previous kept one when both
// have the same DOSAGE text (both absent counts as the same).
func mergeSameDosage(segs []Segment) []Segment {
	if len(segs) < 2 {
		return segs
	}
	out := []Segment{segs[0]}
	for i := 1; i < len(segs); i++ {
		if !sameText(segs[i-1].Dosage, segs[i].Dosage) {
			out = append(out, segs[i])
			continue
		}
		anchor := &out[len(out)-1]
		anchor.Frequency = joinDistinct(anchor.Frequency, segs[i].Frequency)
		anchor.Duration = joinDistinct(anchor.Duration, segs[i].Duration)
		absorbShared(anchor, segs[i])
	}
	return out
}

// mergeSameFrequencyType folds each segment into the previous kept one when
// both FREQUENCY spans have the same type and neither has a DURATION. The
// merged FREQUENCY becomes the lower-cased type, so "day" and "daily" read
// as one administration per day after the dosages are summed.
func mergeSameFrequencyType(segs []Segment, typeOf FrequencyTyper) []Segment {
	if len(segs) < 2 {
		return segs
	}
	types := make([]*string, len(segs))
	for i, s := range segs {
		if s.Frequency != nil && typeOf != nil {
			types[i] = typeOf(*s.Frequency)
		}
	}

	out := []Segment{segs[0]}
	for i := 1; i < len(segs); i++ {
		if !sameText(types[i-1], types[i]) || segs[i-1].Duration != nil || segs[i].Duration != nil {
			out = append(out, segs[i])
			continue
		}
		anchor := &out[len(out)-1]
		if segs[i].Dosage != nil {
			anchor.Dosage = join(anchor.Dosage, segs[i].Dosage)
			if types[i-1] != nil {
				anchor.Frequency = str(strings.ToLower(*types[i-1]))
			}
		}
		absorbShared(anchor, segs[i])
	}
	return out
}

// absorbShared copies FORM and the administration flags of a dropped
// segment onto the anchor where the anchor has none.
func absorbShared(anchor *Segment, dropped Segment) {
	if anchor.Form == nil {
		anchor.Form = dropped.Form
	}
	if anchor.AsRequired == nil {
		anchor.AsRequired = dropped.AsRequired
	}
	if anchor.AsDirected == nil {
		anchor.AsDirected = dropped.AsDirected
	}
}

// joinDistinct joins two spans with " and " unless they are equal or one is
// absent.
func joinDistinct(a, b *string) *string {
	if b == nil || sameText(a, b) {
		return a
	}
	return join(a, b)
}

func join(a, b *string) *string {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return str(*a + " and " + *b)
}
