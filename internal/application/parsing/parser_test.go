package parsing

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/internal/intelligence/sig_normalizer"
	"github.com/turtacn/sigparse/internal/intelligence/sig_tagger"
	"github.com/turtacn/sigparse/pkg/errors"
)

// ---------------------------------------------------------------------------
// Doubles
// ---------------------------------------------------------------------------

type identityNormalizer struct{}

func (identityNormalizer) Normalize(text string) string { return text }

type lowerNormalizer struct{}

func (lowerNormalizer) Normalize(text string) string { return strings.ToLower(text) }

type memCache struct {
	mu   sync.Mutex
	data map[string][]*instruction.StructuredInstruction
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]*instruction.StructuredInstruction{}}
}

func (c *memCache) Get(_ context.Context, text string) ([]*instruction.StructuredInstruction, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[text]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, text string, results []*instruction.StructuredInstruction, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[text] = results
	return nil
}

type recorderFunc func(ctx context.Context, batchID string, results []*instruction.StructuredInstruction) error

func (f recorderFunc) Record(ctx context.Context, batchID string, results []*instruction.StructuredInstruction) error {
	return f(ctx, batchID, results)
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[Outcome]int
	batches  []Mode
	hits     int
	misses   int
	rules    []string
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{outcomes: map[Outcome]int{}}
}

func (m *countingMetrics) ObserveParse(o Outcome, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[o]++
}

func (m *countingMetrics) ObserveBatch(mode Mode, _, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, mode)
}

func (m *countingMetrics) ObserveCache(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *countingMetrics) ObserveDiagnostics(rule string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule)
}

func ent(label instruction.Label, text string) instruction.Entity {
	return instruction.NewEntity(label, text)
}

// scripted returns canned entities per normalized text.
func scripted(script map[string][]instruction.Entity) sig_tagger.Extractor {
	return sig_tagger.ExtractorFunc(func(ctx context.Context, normalized string) ([]instruction.Entity, error) {
		if strings.HasPrefix(normalized, "fail") {
			return nil, errors.New(errors.ErrCodeModelUnavailable, "model down")
		}
		if strings.HasPrefix(normalized, "panic") {
			panic("tagger exploded")
		}
		return script[normalized], nil
	})
}

func newRuleParser(t *testing.T, opts ...Option) *Parser {
	t.Helper()
	norm, err := sig_normalizer.NewDefault(sig_normalizer.WithCorrector(sig_normalizer.NopCorrector{}))
	require.NoError(t, err)
	p, err := NewParser(norm, sig_tagger.NewRuleExtractor(nil), nil, opts...)
	require.NoError(t, err)
	return p
}

func f(v float64) *float64 { return &v }

func s(v string) *string { return &v }

// ---------------------------------------------------------------------------
// Construction & modes
// ---------------------------------------------------------------------------

func TestNewParser_RequiresCollaborators(t *testing.T) {
	_, err := NewParser(nil, sig_tagger.NewRuleExtractor(nil), nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	_, err = NewParser(identityNormalizer{}, nil, nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"":            ModeSequential,
		"sequential":  ModeSequential,
		"Parallel":    ModeParallel,
		" concurrent": ModeConcurrent,
	}
	for in, want := range tests {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("async")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBatchModeInvalid))
}

func TestNewInputs(t *testing.T) {
	in, err := NewInputs([]string{"a", "b"}, []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, "y", *in[1].ID)

	in, err = NewInputs([]string{"a"}, nil)
	require.NoError(t, err)
	assert.Nil(t, in[0].ID)

	_, err = NewInputs([]string{"a"}, []string{"x", "y"})
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// End to end with the rule tagger
// ---------------------------------------------------------------------------

func TestParser_TwiceDaily(t *testing.T) {
	p := newRuleParser(t)
	got := p.Parse(context.Background(), "take 2 tablets twice daily")
	require.Len(t, got, 1)

	r := got[0]
	assert.Nil(t, r.InputID)
	assert.Equal(t, "take 2 tablets twice daily", r.Text)
	assert.Equal(t, s("tablet"), r.Form)
	assert.Equal(t, f(2), r.DosageMin)
	assert.Equal(t, f(2), r.DosageMax)
	assert.Equal(t, f(2), r.FrequencyMin)
	assert.Equal(t, f(2), r.FrequencyMax)
	assert.Equal(t, s("Day"), r.FrequencyType)
	assert.Nil(t, r.DurationMin)
	assert.Nil(t, r.DurationType)
	assert.False(t, r.AsRequired)
	assert.False(t, r.AsDirected)
}

func TestParser_AsRequired(t *testing.T) {
	p := newRuleParser(t)
	got := p.ParseWithID(context.Background(), s("rx-1"), "1 bd as required")
	require.Len(t, got, 1)
	assert.Equal(t, s("rx-1"), got[0].InputID)
	assert.Equal(t, f(1), got[0].DosageMin)
	assert.Equal(t, f(2), got[0].FrequencyMax)
	assert.True(t, got[0].AsRequired)
}

func TestParser_RegimenChangeSplits(t *testing.T) {
	p := newRuleParser(t)
	got := p.Parse(context.Background(), "take 1 tablet daily for 3 days then 2 daily for 4 weeks")
	require.Len(t, got, 2)

	assert.Equal(t, f(1), got[0].DosageMin)
	assert.Equal(t, s("tablet"), got[0].Form)
	assert.Equal(t, f(3), got[0].DurationMax)
	assert.Equal(t, s("Day"), got[0].DurationType)

	assert.Equal(t, f(2), got[1].DosageMax)
	assert.Equal(t, s("tablet"), got[1].Form)
	assert.Equal(t, f(1), got[1].FrequencyMin)
	assert.Equal(t, s("Day"), got[1].FrequencyType)
	assert.Equal(t, f(4), got[1].DurationMin)
	assert.Equal(t, s("Week"), got[1].DurationType)
}

func TestParser_PuffMorningAndNight(t *testing.T) {
	p := newRuleParser(t)
	got := p.Parse(context.Background(), "one puff morning and night")
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, "one puff morning and night", r.Text)
	assert.Equal(t, s("puff"), r.Form)
	assert.Equal(t, f(1), r.DosageMin)
	assert.Equal(t, f(1), r.DosageMax)
	assert.Equal(t, f(2), r.FrequencyMin)
	assert.Equal(t, f(2), r.FrequencyMax)
	assert.Equal(t, s("Day"), r.FrequencyType)
	assert.Nil(t, r.DurationMin)
	assert.Nil(t, r.DurationMax)
	assert.Nil(t, r.DurationType)
	assert.False(t, r.AsRequired)
	assert.False(t, r.AsDirected)
}

func TestParser_HalfAfterMealsAndAtNight(t *testing.T) {
	p := newRuleParser(t)
	got := p.Parse(context.Background(), "take half after meals and at night time for three weeks")
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, f(0.5), r.DosageMin)
	assert.Equal(t, f(0.5), r.DosageMax)
	assert.Equal(t, f(4), r.FrequencyMin)
	assert.Equal(t, f(4), r.FrequencyMax)
	assert.Equal(t, s("Day"), r.FrequencyType)
	assert.Equal(t, f(3), r.DurationMin)
	assert.Equal(t, f(3), r.DurationMax)
	assert.Equal(t, s("Week"), r.DurationType)
	assert.False(t, r.AsRequired)
	assert.False(t, r.AsDirected)
}

func TestParser_SpoonfulsWithSharedFlags(t *testing.T) {
	p, err := NewParser(identityNormalizer{}, sig_tagger.NewRuleExtractor(nil), nil)
	require.NoError(t, err)

	text := "2 - 3 5 ml spoonfuls with meals and at bedtime for 3 weeks as dir, then reduce down to 1 5 ml spoonful bd"
	got := p.Parse(context.Background(), text)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, s("ml"), first.Form)
	assert.Equal(t, f(10), first.DosageMin)
	assert.Equal(t, f(15), first.DosageMax)
	assert.Equal(t, f(4), first.FrequencyMin)
	assert.Equal(t, s("Day"), first.FrequencyType)
	assert.Equal(t, f(3), first.DurationMin)
	assert.Equal(t, s("Week"), first.DurationType)
	assert.True(t, first.AsDirected)

	second := got[1]
	assert.Equal(t, s("ml"), second.Form)
	assert.Equal(t, f(5), second.DosageMin)
	assert.Equal(t, f(5), second.DosageMax)
	assert.Equal(t, f(2), second.FrequencyMin)
	assert.Nil(t, second.DurationMin)
	assert.True(t, second.AsDirected)
}

func TestParser_EmptyTextYieldsOneEmptyRecord(t *testing.T) {
	p := newRuleParser(t)
	got := p.Parse(context.Background(), "")
	require.Len(t, got, 1)
	assert.True(t, got[0].IsEmpty())
}

// ---------------------------------------------------------------------------
// Failure recovery & diagnostics
// ---------------------------------------------------------------------------

func TestParser_ExtractorErrorYieldsEmptyRecord(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m := newCountingMetrics()
	p, err := NewParser(identityNormalizer{}, scripted(nil), logging.NewLoggerFromCore(core), WithMetrics(m))
	require.NoError(t, err)

	got := p.ParseWithID(context.Background(), s("7"), "fail me")
	require.Len(t, got, 1)
	assert.Equal(t, instruction.NewEmpty(s("7"), "fail me"), got[0])
	assert.Equal(t, 1, logs.FilterMessage("parse failed").Len())
	assert.Equal(t, 1, m.outcomes[OutcomeFailed])
}

func TestParser_PanicYieldsEmptyRecord(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	p, err := NewParser(identityNormalizer{}, scripted(nil), logging.NewLoggerFromCore(core))
	require.NoError(t, err)

	got := p.Parse(context.Background(), "panic now")
	require.Len(t, got, 1)
	assert.True(t, got[0].IsEmpty())
	assert.Equal(t, "panic now", got[0].Text)
	assert.Equal(t, 1, logs.FilterMessage("parse panicked").Len())
}

func TestParser_DiagnosticsAreLoggedWithInputID(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m := newCountingMetrics()
	ext := scripted(map[string][]instruction.Entity{
		"x": {ent(instruction.LabelDosage, "3 mg something ml")},
	})
	p, err := NewParser(identityNormalizer{}, ext, logging.NewLoggerFromCore(core), WithMetrics(m))
	require.NoError(t, err)

	got := p.ParseWithID(context.Background(), s("row-9"), "x")
	require.Len(t, got, 1)
	assert.Equal(t, s("mg"), got[0].Form)

	entries := logs.FilterMessage("ambiguous instruction").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "row-9", entries[0].ContextMap()["input_id"])
	assert.Equal(t, "continuous-dose", entries[0].ContextMap()["rule"])
	assert.Equal(t, []string{"continuous-dose"}, m.rules)
}

// ---------------------------------------------------------------------------
// Batches
// ---------------------------------------------------------------------------

func batchParser(t *testing.T, opts ...Option) *Parser {
	t.Helper()
	ext := scripted(map[string][]instruction.Entity{
		"two regimens": {
			ent(instruction.LabelDosage, "1"),
			ent(instruction.LabelFrequency, "daily"),
			ent(instruction.LabelDuration, "for 3 days"),
			ent(instruction.LabelDosage, "2"),
			ent(instruction.LabelFrequency, "daily"),
			ent(instruction.LabelDuration, "for 4 weeks"),
		},
		"one": {ent(instruction.LabelDosage, "1"), ent(instruction.LabelFrequency, "bd")},
		"three": {
			ent(instruction.LabelDosage, "3 puffs"),
			ent(instruction.LabelFrequency, "bd"),
			ent(instruction.LabelDuration, "for 1 week"),
			ent(instruction.LabelDosage, "2 puffs"),
			ent(instruction.LabelDuration, "for 2 weeks"),
			ent(instruction.LabelDosage, "1 puff"),
		},
	})
	p, err := NewParser(identityNormalizer{}, ext, nil, opts...)
	require.NoError(t, err)
	return p
}

func TestParser_ParseManyModesAgree(t *testing.T) {
	inputs := []Input{
		{Text: "two regimens"},
		{ID: s("custom"), Text: "fail"},
		{Text: "three"},
		{Text: "one"},
	}
	var want []*instruction.StructuredInstruction
	for _, mode := range []Mode{ModeSequential, ModeParallel, ModeConcurrent} {
		t.Run(string(mode), func(t *testing.T) {
			m := newCountingMetrics()
			p := batchParser(t, WithWorkers(2), WithMetrics(m))
			got, err := p.ParseMany(context.Background(), inputs, mode)
			require.NoError(t, err)
			require.Len(t, got, 2+1+3+1)

			ids := make([]string, len(got))
			for i, r := range got {
				ids[i] = *r.InputID
			}
			assert.Equal(t, []string{"0", "0", "custom", "2", "2", "2", "3"}, ids)
			assert.True(t, got[2].IsEmpty())
			assert.Equal(t, []Mode{mode}, m.batches)

			if want == nil {
				want = got
				return
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestParser_ParseManyDefaultMode(t *testing.T) {
	m := newCountingMetrics()
	p := batchParser(t, WithDefaultMode(ModeConcurrent), WithMetrics(m))
	_, err := p.ParseMany(context.Background(), []Input{{Text: "one"}}, "")
	require.NoError(t, err)
	assert.Equal(t, []Mode{ModeConcurrent}, m.batches)
}

func TestParser_ParseManyRejects(t *testing.T) {
	p := batchParser(t, WithMaxBatchSize(1))

	_, err := p.ParseMany(context.Background(), []Input{{Text: "one"}, {Text: "one"}}, ModeSequential)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBatchTooLarge))

	_, err = p.ParseMany(context.Background(), []Input{{Text: "one"}}, Mode("async"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeBatchModeInvalid))
}

func TestParser_ParseManyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := batchParser(t)
	_, err := p.ParseMany(ctx, []Input{{Text: "one"}}, ModeSequential)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParser_ParseManyEmpty(t *testing.T) {
	p := batchParser(t)
	got, err := p.ParseMany(context.Background(), nil, ModeParallel)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// ---------------------------------------------------------------------------
// Decorators
// ---------------------------------------------------------------------------

func TestParser_CacheRestampsInputID(t *testing.T) {
	cache := newMemCache()
	m := newCountingMetrics()
	p := batchParser(t, WithCache(cache, time.Minute), WithMetrics(m))

	first := p.ParseWithID(context.Background(), s("a"), "one")
	second := p.ParseWithID(context.Background(), s("b"), "one")

	require.Len(t, second, 1)
	assert.Equal(t, s("a"), first[0].InputID)
	assert.Equal(t, s("b"), second[0].InputID)
	assert.Equal(t, first[0].FrequencyMax, second[0].FrequencyMax)
	assert.Equal(t, 1, m.hits)
	assert.Equal(t, 1, m.misses)
	assert.Equal(t, 1, m.outcomes[OutcomeCached])
}

func TestParser_CacheIsKeyedByNormalizedText(t *testing.T) {
	cache := newMemCache()
	m := newCountingMetrics()
	base := batchParser(t)
	p, err := NewParser(lowerNormalizer{}, base.extractor, nil, WithCache(cache, time.Minute), WithMetrics(m))
	require.NoError(t, err)

	first := p.ParseWithID(context.Background(), s("a"), "ONE")
	second := p.ParseWithID(context.Background(), s("b"), "one")

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, "ONE", first[0].Text)
	assert.Equal(t, "one", second[0].Text)
	assert.Equal(t, s("b"), second[0].InputID)
	assert.Equal(t, f(2), second[0].FrequencyMax)
	assert.Equal(t, 1, m.hits)

	_, found, _ := cache.Get(context.Background(), "one")
	assert.True(t, found)
	_, found, _ = cache.Get(context.Background(), "ONE")
	assert.False(t, found)
}

func TestParser_FailuresAreNotCached(t *testing.T) {
	cache := newMemCache()
	p := batchParser(t, WithCache(cache, time.Minute))
	p.Parse(context.Background(), "fail")
	_, found, _ := cache.Get(context.Background(), "fail")
	assert.False(t, found)
}

func TestParser_RecorderReceivesBatch(t *testing.T) {
	var (
		gotBatch string
		gotCount int
		calls    int
	)
	rec := recorderFunc(func(ctx context.Context, batchID string, results []*instruction.StructuredInstruction) error {
		calls++
		gotBatch, gotCount = batchID, len(results)
		return nil
	})
	p := batchParser(t, WithRecorder(rec))

	_, err := p.ParseBatch(context.Background(), "batch-1", []Input{{Text: "two regimens"}, {Text: "one"}}, ModeSequential)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "batch-1", gotBatch)
	assert.Equal(t, 3, gotCount)

	p.Parse(context.Background(), "one")
	assert.Equal(t, 2, calls)
	assert.Equal(t, "", gotBatch)
}

func TestParser_RecorderErrorDoesNotFailParse(t *testing.T) {
	rec := recorderFunc(func(context.Context, string, []*instruction.StructuredInstruction) error {
		return errors.New(errors.ErrCodeDatabaseError, "db down")
	})
	p := batchParser(t, WithRecorder(rec))
	got, err := p.ParseMany(context.Background(), []Input{{Text: "one"}}, ModeSequential)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestParser_InputTimeout(t *testing.T) {
	slow := sig_tagger.ExtractorFunc(func(ctx context.Context, normalized string) ([]instruction.Entity, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p, err := NewParser(identityNormalizer{}, slow, nil, WithInputTimeout(10*time.Millisecond))
	require.NoError(t, err)

	got := p.Parse(context.Background(), "1 bd")
	require.Len(t, got, 1)
	assert.True(t, got[0].IsEmpty())
}
