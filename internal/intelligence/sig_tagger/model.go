package sig_tagger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/internal/intelligence/common"
	"github.com/turtacn/sigparse/pkg/errors"
)

// DefaultModelName is sent when no model name is configured.
const DefaultModelName = "sig-ner"

// ModelExtractor asks a remote model to label the whitespace tokens of the
// normalized text.
type ModelExtractor struct {
	backend     common.ModelBackend
	modelName   string
	constrained bool
	logger      logging.Logger
}

// ModelOption configures a ModelExtractor.
type ModelOption func(*ModelExtractor)

// WithModelName sets the model name sent with every request.
func WithModelName(name string) ModelOption {
	return func(m *ModelExtractor) {
		if name != "" {
			m.modelName = name
		}
	}
}

// WithConstrainedDecoding selects Viterbi decoding under BIO constraints
// (the default) or per-token argmax for probability matrix responses.
func WithConstrainedDecoding(enabled bool) ModelOption {
	return func(m *ModelExtractor) { m.constrained = enabled }
}

// NewModelExtractor wraps backend.
func NewModelExtractor(backend common.ModelBackend, logger logging.Logger, opts ...ModelOption) (*ModelExtractor, error) {
	if backend == nil {
		return nil, errors.InvalidParam("model backend is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	m := &ModelExtractor{
		backend:     backend,
		modelName:   DefaultModelName,
		constrained: true,
		logger:      logger.Named("model_extractor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Extract implements Extractor.
func (m *ModelExtractor) Extract(ctx context.Context, normalized string) ([]instruction.Entity, error) {
	spans := tokenize(normalized)
	if len(spans) == 0 {
		return nil, nil
	}

	tokens := make([]string, len(spans))
	for i, s := range spans {
		tokens[i] = s.Text
	}
	resp, err := m.backend.Predict(ctx, &common.PredictRequest{
		ModelName: m.modelName,
		Text:      normalized,
		Tokens:    tokens,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExtractionFailed, "tagger prediction failed")
	}
	if resp == nil {
		return nil, errors.New(errors.ErrCodeModelResponseBad, "tagger returned no response")
	}

	entities, err := m.decode(normalized, spans, resp)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("entities extracted",
		logging.Int("tokens", len(tokens)),
		logging.Int("entities", len(entities)),
		logging.Int64("inference_ms", resp.InferenceTimeMs),
	)
	return entities, nil
}

// decode reads whichever output form the model produced. Spans take
// precedence over tags, and tags over a probability matrix.
func (m *ModelExtractor) decode(text string, spans []tokenSpan, resp *common.PredictResponse) ([]instruction.Entity, error) {
	switch {
	case len(resp.Spans) > 0:
		return decodeSpans(text, resp.Spans)

	case len(resp.Labels) > 0:
		if len(resp.Labels) != len(spans) {
			return nil, errors.Newf(errors.ErrCodeModelResponseBad,
				"tagger returned %d labels for %d tokens", len(resp.Labels), len(spans))
		}
		labels := make([]string, len(resp.Labels))
		for i, l := range resp.Labels {
			labels[i] = normalizeTag(l)
		}
		return bioToEntities(text, spans, fixBIOLegality(labels), nil), nil

	case len(resp.Emissions) > 0:
		if err := checkEmissions(resp, len(spans)); err != nil {
			return nil, err
		}
		labelSet := make([]string, len(resp.LabelSet))
		for i, l := range resp.LabelSet {
			labelSet[i] = normalizeTag(l)
		}
		var labels []string
		if m.constrained {
			labels = viterbiDecode(resp.Emissions, buildBIOTransitionMatrix(labelSet), labelSet)
		} else {
			labels = fixBIOLegality(argmaxDecode(resp.Emissions, labelSet))
		}
		return bioToEntities(text, spans, labels, resp.Emissions), nil
	}
	return nil, nil
}

func checkEmissions(resp *common.PredictResponse, numTokens int) error {
	if len(resp.LabelSet) == 0 {
		return errors.New(errors.ErrCodeModelResponseBad, "probability matrix without label set")
	}
	if len(resp.Emissions) != numTokens {
		return errors.Newf(errors.ErrCodeModelResponseBad,
			"tagger returned %d rows for %d tokens", len(resp.Emissions), numTokens)
	}
	for i, row := range resp.Emissions {
		if len(row) != len(resp.LabelSet) {
			return errors.Newf(errors.ErrCodeModelResponseBad,
				"row %d has %d columns, label set has %d", i, len(row), len(resp.LabelSet))
		}
	}
	return nil
}

// decodeSpans converts span-style output. Spans with valid offsets are
// ordered by position and must not overlap; spans without offsets keep the
// order the model reported.
func decodeSpans(text string, in []common.PredictSpan) ([]instruction.Entity, error) {
	out := make([]instruction.Entity, 0, len(in))
	withOffsets := true
	for _, s := range in {
		e := instruction.Entity{
			Label: instruction.ParseLabel(s.Label),
			Text:  strings.TrimSpace(s.Text),
			Start: -1,
			End:   -1,
			Score: s.Score,
		}
		if s.Start >= 0 && s.End > s.Start && s.End <= len(text) {
			e.Start, e.End = s.Start, s.End
			if e.Text == "" {
				e.Text = text[s.Start:s.End]
			}
		} else {
			withOffsets = false
		}
		if e.Text == "" {
			return nil, errors.New(errors.ErrCodeModelResponseBad, "span without text or offsets")
		}
		out = append(out, e)
	}

	if !withOffsets {
		return out, nil
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	for i := 1; i < len(out); i++ {
		if out[i].Start < out[i-1].End {
			return nil, errors.New(errors.ErrCodeModelResponseBad,
				fmt.Sprintf("overlapping spans %s and %s", out[i-1], out[i]))
		}
	}
	return out, nil
}

// Close releases the backend.
func (m *ModelExtractor) Close() error {
	return m.backend.Close()
}

// Healthy reports whether the backend is reachable.
func (m *ModelExtractor) Healthy(ctx context.Context) error {
	return m.backend.Healthy(ctx)
}
