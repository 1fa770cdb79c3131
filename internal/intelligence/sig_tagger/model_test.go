package sig_tagger

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/intelligence/common"
	"github.com/turtacn/sigparse/pkg/errors"
)

func newModel(t *testing.T, fn func(ctx context.Context, req *common.PredictRequest) (*common.PredictResponse, error), opts ...ModelOption) (*ModelExtractor, *common.MockBackend) {
	t.Helper()
	backend := &common.MockBackend{PredictFn: fn}
	m, err := NewModelExtractor(backend, nil, opts...)
	require.NoError(t, err)
	return m, backend
}

func TestModelExtractor_Labels(t *testing.T) {
	var got *common.PredictRequest
	m, _ := newModel(t, func(ctx context.Context, req *common.PredictRequest) (*common.PredictResponse, error) {
		got = req
		return &common.PredictResponse{Labels: []string{"O", "B-DOSAGE", "FORM", "b-frequency"}}, nil
	}, WithModelName("sig-ner-v2"))

	entities, err := m.Extract(context.Background(), "take 2 tablets daily")
	require.NoError(t, err)
	assert.Equal(t, "sig-ner-v2", got.ModelName)
	assert.Equal(t, []string{"take", "2", "tablets", "daily"}, got.Tokens)

	require.Len(t, entities, 3)
	assert.Equal(t, instruction.LabelDosage, entities[0].Label)
	assert.Equal(t, instruction.LabelForm, entities[1].Label)
	assert.Equal(t, "tablets", entities[1].Text)
	assert.Equal(t, instruction.LabelFrequency, entities[2].Label)
}

func TestModelExtractor_LabelCountMismatch(t *testing.T) {
	m, _ := newModel(t, func(ctx context.Context, req *common.PredictRequest) (*common.PredictResponse, error) {
		return &common.PredictResponse{Labels: []string{"O"}}, nil
	})
	_, err := m.Extract(context.Background(), "1 bd")
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelResponseBad))
}

func TestModelExtractor_Spans(t *testing.T) {
	m, _ := newModel(t, func(ctx context.Context, req *common.PredictRequest) (*common.PredictResponse, error) {
		return &common.PredictResponse{Spans: []common.PredictSpan{
			{Label: "FREQUENCY", Start: 2, End: 4, Score: 0.9},
			{Label: "dosage", Text: "1", Start: 0, End: 1, Score: 0.95},
		}}, nil
	})

	entities, err := m.Extract(context.Background(), "1 bd")
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, instruction.Entity{Label: instruction.LabelDosage, Text: "1", Start: 0, End: 1, Score: 0.95}, entities[0])
	assert.Equal(t, instruction.Entity{Label: instruction.LabelFrequency, Text: "bd", Start: 2, End: 4, Score: 0.9}, entities[1])
}

func TestModelExtractor_SpansWithoutOffsetsKeepOrder(t *testing.T) {
	m, _ := newModel(t, func(ctx context.Context, req *common.PredictRequest) (*common.PredictResponse, error) {
		return &common.PredictResponse{Spans: []common.PredictSpan{
			{Label: "DOSAGE", Text: "1", Start: -1, End: -1},
			{Label: "FREQUENCY", Text: "bd", Start: -1, End: -1},
		}}, nil
	})
	entities, err := m.Extract(context.Background(), "1 bd")
	require.NoError(t, err)
	assert.Equal(t, []instruction.Entity{
		{Label: instruction.LabelDosage, Text: "1", Start: -1, End: -1},
		{Label: instruction.LabelFrequency, Text: "bd", Start: -1, End: -1},
	}, entities)
}

func TestModelExtractor_OverlappingSpans(t *testing.T) {
	m, _ := newModel(t, func(ctx context.Context, req *common.PredictRequest) (*common.PredictResponse, error) {
		return &common.PredictResponse{Spans: []common.PredictSpan{
			{Label: "DOSAGE", Start: 0, End: 3},
			{Label: "FREQUENCY", Start: 2, End: 4},
		}}, nil
	})
	_, err := m.Extract(context.Background(), "1 bd")
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelResponseBad))
}

func TestModelExtractor_Emissions(t *testing.T) {
	resp := &common.PredictResponse{
		LabelSet: []string{"O", "B-DOSAGE", "I-DOSAGE", "B-FREQUENCY"},
		Emissions: [][]float64{
			{0.1, 0.2, 0.6, 0.1},
			{0.1, 0.1, 0.7, 0.1},
			{0.1, 0.1, 0.1, 0.7},
		},
	}
	fn := func(ctx context.Context, req *common.PredictRequest) (*common.PredictResponse, error) {
		return resp, nil
	}

	m, _ := newModel(t, fn)
	entities, err := m.Extract(context.Background(), "1 - bd")
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "1 -", entities[0].Text)
	assert.Equal(t, instruction.LabelFrequency, entities[1].Label)

	argmax, _ := newModel(t, fn, WithConstrainedDecoding(false))
	entities, err = argmax.Extract(context.Background(), "1 - bd")
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "1 -", entities[0].Text)
}

func TestModelExtractor_BadEmissions(t *testing.T) {
	tests := []*common.PredictResponse{
		{Emissions: [][]float64{{1}, {1}}},
		{Emissions: [][]float64{{1, 0}}, LabelSet: []string{"O", "B-DOSAGE"}},
		{Emissions: [][]float64{{1}, {1, 0}}, LabelSet: []string{"O", "B-DOSAGE"}},
	}
	for i, resp := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			m, _ := newModel(t, func(ctx context.Context, req *common.PredictRequest) (*common.PredictResponse, error) {
				return resp, nil
			})
			_, err := m.Extract(context.Background(), "1 bd")
			assert.True(t, errors.IsCode(err, errors.ErrCodeModelResponseBad))
		})
	}
}

func TestModelExtractor_BackendError(t *testing.T) {
	m, _ := newModel(t, func(ctx context.Context, req *common.PredictRequest) (*common.PredictResponse, error) {
		return nil, common.ErrServingUnavailable
	})
	_, err := m.Extract(context.Background(), "1 bd")
	assert.True(t, errors.IsCode(err, errors.ErrCodeExtractionFailed))
	assert.ErrorIs(t, err, common.ErrServingUnavailable)
}

func TestModelExtractor_EmptyTextSkipsBackend(t *testing.T) {
	m, backend := newModel(t, nil)
	entities, err := m.Extract(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, entities)
	assert.Equal(t, int64(0), backend.Calls())
}

func TestModelExtractor_NoOutput(t *testing.T) {
	m, backend := newModel(t, nil)
	entities, err := m.Extract(context.Background(), "1 bd")
	require.NoError(t, err)
	assert.Empty(t, entities)
	assert.Equal(t, int64(1), backend.Calls())
}

func TestNewModelExtractor_NilBackend(t *testing.T) {
	_, err := NewModelExtractor(nil, nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}
