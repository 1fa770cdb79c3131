package sig_segmenter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/intelligence/sig_interpreter"
)

func ent(label instruction.Label, text string) instruction.Entity {
	return instruction.NewEntity(label, text)
}

func seg(dosage, frequency, form, duration *string) Segment {
	return Segment{Dosage: dosage, Frequency: frequency, Form: form, Duration: duration}
}

func stubTyper(types map[string]string) FrequencyTyper {
	return func(text string) *string {
		if t, ok := types[text]; ok {
			return &t
		}
		return nil
	}
}

func interpreterTyper() FrequencyTyper {
	in := sig_interpreter.New(nil)
	return func(text string) *string { return in.FrequencyType(text, nil) }
}

// ---------------------------------------------------------------------------
// Segment
// ---------------------------------------------------------------------------

func TestSegment_SetGet(t *testing.T) {
	var s Segment
	assert.True(t, s.IsEmpty())
	assert.True(t, s.Set(instruction.LabelDosage, "2"))
	assert.False(t, s.Set(instruction.LabelDrug, "paracetamol"))
	assert.False(t, s.Set(instruction.Label("FOO"), "x"))

	require.True(t, s.Has(instruction.LabelDosage))
	assert.Equal(t, "2", *s.Get(instruction.LabelDosage))
	assert.Nil(t, s.Get(instruction.LabelRoute))
	assert.False(t, s.IsEmpty())
}

func TestSegment_EntitiesAndString(t *testing.T) {
	s := Segment{Dosage: str("1"), Form: str("tablet"), AsRequired: str("as required")}
	ents := s.Entities()
	require.Len(t, ents, 3)
	assert.Equal(t, instruction.LabelDosage, ents[0].Label)
	assert.Equal(t, instruction.LabelForm, ents[1].Label)
	assert.Equal(t, instruction.LabelAsRequired, ents[2].Label)

	assert.Equal(t,
		`Segment(DOSAGE="1", FREQUENCY=None, FORM="tablet", DURATION=None, AS_REQUIRED="as required", AS_DIRECTED=None)`,
		s.String())
}

// ---------------------------------------------------------------------------
// Split
// ---------------------------------------------------------------------------

func TestSplit_EmptyInputYieldsOneSegment(t *testing.T) {
	segs := Split(nil)
	require.Len(t, segs, 1)
	assert.True(t, segs[0].IsEmpty())
}

func TestSplit_RepeatedLabelStartsNewSegment(t *testing.T) {
	segs := Split([]instruction.Entity{
		ent(instruction.LabelDosage, "1"),
		ent(instruction.LabelForm, "tablet"),
		ent(instruction.LabelFrequency, "daily"),
		ent(instruction.LabelDuration, "for 3 days"),
		ent(instruction.LabelDosage, "2"),
		ent(instruction.LabelFrequency, "daily"),
		ent(instruction.LabelDuration, "for 4 weeks"),
	})
	require.Len(t, segs, 2)
	assert.Equal(t, seg(str("1"), str("daily"), str("tablet"), str("for 3 days")), segs[0])
	assert.Equal(t, seg(str("2"), str("daily"), nil, str("for 4 weeks")), segs[1])
}

func TestSplit_IgnoredAndUnknownLabels(t *testing.T) {
	segs := Split([]instruction.Entity{
		ent(instruction.LabelDrug, "paracetamol"),
		ent(instruction.LabelDosage, "2"),
		ent(instruction.LabelStrength, "500 mg"),
		ent(instruction.LabelStrength, "500 mg"),
		ent(instruction.LabelRoute, "by mouth"),
		ent(instruction.Label("FOO"), "x"),
		ent(instruction.Label("FOO"), "y"),
		ent(instruction.LabelDrug, "paracetamol"),
	})
	require.Len(t, segs, 1)
	assert.Equal(t, seg(str("2"), nil, nil, nil), segs[0])
}

func TestSplit_RepeatedFormDropped(t *testing.T) {
	segs := Split([]instruction.Entity{
		ent(instruction.LabelDosage, "1"),
		ent(instruction.LabelForm, "tablet"),
		ent(instruction.LabelForm, "capsules"),
	})
	require.Len(t, segs, 1)
	assert.Equal(t, "tablet", *segs[0].Form)
}

func TestSplit_CeilingStatementsDropped(t *testing.T) {
	segs := Split([]instruction.Entity{
		ent(instruction.LabelFrequency, "morning , noon and night ,"),
		ent(instruction.LabelDosage, "max 8"),
		ent(instruction.LabelFrequency, "in 24 hours"),
	})
	require.Len(t, segs, 1)
	assert.Equal(t, seg(str("max 8"), str("morning , noon and night ,"), nil, nil), segs[0])
}

func TestSplit_DiscardedDosageSuppressesNextFrequency(t *testing.T) {
	segs := Split([]instruction.Entity{
		ent(instruction.LabelDosage, "2"),
		ent(instruction.LabelFrequency, "bd"),
		ent(instruction.LabelDosage, "up to 8"),
		ent(instruction.LabelFrequency, "a day"),
	})
	require.Len(t, segs, 1)
	assert.Equal(t, seg(str("2"), str("bd"), nil, nil), segs[0])
}

func TestSplit_SuppressionLastsOneEntity(t *testing.T) {
	segs := Split([]instruction.Entity{
		ent(instruction.LabelDosage, "2"),
		ent(instruction.LabelFrequency, "bd"),
		ent(instruction.LabelDosage, "maximum 6"),
		ent(instruction.LabelForm, "tablets"),
		ent(instruction.LabelFrequency, "daily"),
	})
	require.Len(t, segs, 2)
	assert.Equal(t, seg(str("2"), str("bd"), str("tablets"), nil), segs[0])
	assert.Equal(t, seg(nil, str("daily"), nil, nil), segs[1])
}

func TestSplit_RepeatedDosageWithoutCeilingKept(t *testing.T) {
	segs := Split([]instruction.Entity{
		ent(instruction.LabelDosage, "3 puffs"),
		ent(instruction.LabelFrequency, "bd"),
		ent(instruction.LabelDuration, "for 1 week"),
		ent(instruction.LabelDosage, "2 puffs"),
		ent(instruction.LabelDuration, "for 2 weeks"),
		ent(instruction.LabelDosage, "1 puff"),
	})
	assert.Len(t, segs, 3)
}

func TestScanner_StateTransitions(t *testing.T) {
	sc := newScanner()
	assert.Equal(t, stateNormal, sc.state)

	sc.step(ent(instruction.LabelDosage, "1"))
	assert.Equal(t, stateNormal, sc.state)

	sc.step(ent(instruction.LabelDosage, "max 4"))
	assert.Equal(t, stateSuppressNextFrequency, sc.state)
	assert.Equal(t, "SUPPRESS_NEXT_FREQUENCY", sc.state.String())

	sc.step(ent(instruction.LabelRoute, "oral"))
	assert.Equal(t, stateNormal, sc.state)
	assert.Equal(t, "NORMAL", sc.state.String())
}

// ---------------------------------------------------------------------------
// Combine
// ---------------------------------------------------------------------------

func TestCombine_SameDosageJoinsFrequencies(t *testing.T) {
	in := []Segment{
		seg(str("1"), str("in the morning"), str("tablet"), nil),
		seg(str("1"), str("in the evening"), nil, str("for 3 weeks")),
	}
	out := Combine(in, interpreterTyper())
	require.Len(t, out, 1)
	assert.Equal(t, seg(str("1"), str("in the morning and in the evening"), str("tablet"), str("for 3 weeks")), out[0])
}

func TestCombine_SameDosageChainMergesIntoFirst(t *testing.T) {
	in := []Segment{
		seg(str("1"), str("morning"), nil, nil),
		seg(str("1"), str("noon"), nil, nil),
		seg(str("1"), str("night"), nil, nil),
	}
	out := mergeSameDosage(in)
	require.Len(t, out, 1)
	assert.Equal(t, "morning and noon and night", *out[0].Frequency)
}

func TestCombine_SameDosageIdenticalTextNotDuplicated(t *testing.T) {
	out := mergeSameDosage([]Segment{
		seg(str("1"), str("daily"), nil, str("for 1 week")),
		seg(str("1"), str("daily"), nil, str("for 1 week")),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "daily", *out[0].Frequency)
	assert.Equal(t, "for 1 week", *out[0].Duration)
}

func TestCombine_SameDosageAbsorbsFlags(t *testing.T) {
	second := seg(str("1"), str("at night"), nil, nil)
	second.AsRequired = str("as required")
	out := mergeSameDosage([]Segment{seg(str("1"), str("in the morning"), nil, nil), second})
	require.Len(t, out, 1)
	require.NotNil(t, out[0].AsRequired)
	assert.Equal(t, "as required", *out[0].AsRequired)
}

func TestCombine_SameFrequencyTypeJoinsDosages(t *testing.T) {
	in := []Segment{
		seg(str("1"), str("day"), str("tablet"), nil),
		seg(str("3"), str("day"), nil, nil),
	}
	out := Combine(in, interpreterTyper())
	require.Len(t, out, 1)
	assert.Equal(t, seg(str("1 and 3"), str("day"), str("tablet"), nil), out[0])
}

func TestCombine_SameFrequencyTypeLowerCasesType(t *testing.T) {
	typer := stubTyper(map[string]string{"in the morning": "Day", "at night": "Day"})
	out := mergeSameFrequencyType([]Segment{
		seg(str("1"), str("in the morning"), nil, nil),
		seg(str("2"), str("at night"), nil, nil),
	}, typer)
	require.Len(t, out, 1)
	assert.Equal(t, "1 and 2", *out[0].Dosage)
	assert.Equal(t, "day", *out[0].Frequency)
}

func TestCombine_DurationBlocksFrequencyMerge(t *testing.T) {
	in := []Segment{
		seg(str("1"), str("daily"), nil, str("for 3 days")),
		seg(str("2"), str("daily"), nil, str("for 4 weeks")),
	}
	assert.Len(t, Combine(in, interpreterTyper()), 2)
}

func TestCombine_DifferentTypesKept(t *testing.T) {
	typer := stubTyper(map[string]string{"daily": "Day", "weekly": "Week"})
	out := Combine([]Segment{
		seg(str("1"), str("daily"), nil, nil),
		seg(str("2"), str("weekly"), nil, nil),
	}, typer)
	assert.Len(t, out, 2)
}

func TestCombine_NilTypesMergeKeepingFrequency(t *testing.T) {
	typer := stubTyper(nil)
	out := mergeSameFrequencyType([]Segment{
		seg(str("1"), str("2 times"), nil, nil),
		seg(str("2"), nil, nil, nil),
	}, typer)
	require.Len(t, out, 1)
	assert.Equal(t, "1 and 2", *out[0].Dosage)
	assert.Equal(t, "2 times", *out[0].Frequency)
}

func TestCombine_MissingSecondDosageLeavesAnchor(t *testing.T) {
	typer := stubTyper(map[string]string{"daily": "Day", "at night": "Day"})
	out := mergeSameFrequencyType([]Segment{
		seg(str("1"), str("daily"), nil, nil),
		seg(nil, str("at night"), nil, nil),
	}, typer)
	require.Len(t, out, 1)
	assert.Equal(t, "1", *out[0].Dosage)
	assert.Equal(t, "daily", *out[0].Frequency)
}

func TestCombine_SingleSegmentUnchanged(t *testing.T) {
	in := []Segment{seg(str("1"), nil, nil, nil)}
	assert.Equal(t, in, Combine(in, nil))
}

// ---------------------------------------------------------------------------
// Segmenter
// ---------------------------------------------------------------------------

func TestSegmenter_Segment(t *testing.T) {
	s := New(interpreterTyper())
	cases := []struct {
		name     string
		entities []instruction.Entity
		want     int
	}{
		{
			name: "dose change over time",
			entities: []instruction.Entity{
				ent(instruction.LabelDosage, "1 tablet"),
				ent(instruction.LabelFrequency, "daily"),
				ent(instruction.LabelDuration, "for 3 days"),
				ent(instruction.LabelDosage, "2"),
				ent(instruction.LabelFrequency, "daily"),
				ent(instruction.LabelDuration, "for 4 weeks"),
			},
			want: 2,
		},
		{
			name: "same dose morning and evening",
			entities: []instruction.Entity{
				ent(instruction.LabelDosage, "1"),
				ent(instruction.LabelFrequency, "in the morning"),
				ent(instruction.LabelDosage, "1"),
				ent(instruction.LabelFrequency, "in the evening"),
			},
			want: 1,
		},
		{
			name: "ceiling statement",
			entities: []instruction.Entity{
				ent(instruction.LabelFrequency, "morning , noon and night ,"),
				ent(instruction.LabelDosage, "max 8"),
				ent(instruction.LabelFrequency, "in 24 h"),
			},
			want: 1,
		},
		{
			name:     "no entities",
			entities: nil,
			want:     1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Len(t, s.Segment(tc.entities), tc.want)
		})
	}
}
