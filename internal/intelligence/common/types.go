// Package common holds the plumbing shared by the model-backed parts of the
// intelligence layer: the tagging backend contract and its HTTP and gRPC
// clients, a generic batch processor and the metrics interface.
package common

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// BackendType enum
// ---------------------------------------------------------------------------

// BackendType names a tagger implementation.
type BackendType string

const (
	BackendRule BackendType = "rule"
	BackendHTTP BackendType = "http"
	BackendGRPC BackendType = "grpc"
)

// ParseBackendType maps a configuration string onto a BackendType. Empty
// means BackendRule.
func ParseBackendType(s string) (BackendType, error) {
	switch BackendType(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackendRule:
		return BackendRule, nil
	case BackendHTTP:
		return BackendHTTP, nil
	case BackendGRPC:
		return BackendGRPC, nil
	}
	return "", fmt.Errorf("%w: unknown backend %q", ErrInvalidInput, s)
}

// ---------------------------------------------------------------------------
// ModelBackend interface
// ---------------------------------------------------------------------------

// ModelBackend invokes a remote sequence-labelling model.
type ModelBackend interface {
	Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error)
	Healthy(ctx context.Context) error
	Close() error
}

// ---------------------------------------------------------------------------
// Predict types
// ---------------------------------------------------------------------------

// PredictRequest carries normalized text and its whitespace tokens.
type PredictRequest struct {
	ModelName    string            `json:"model_name"`
	ModelVersion string            `json:"model_version,omitempty"`
	Text         string            `json:"text"`
	Tokens       []string          `json:"tokens"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Validate checks the request before it is sent.
func (r *PredictRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidInput)
	}
	if r.ModelName == "" {
		return fmt.Errorf("%w: model_name is required", ErrInvalidInput)
	}
	if len(r.Tokens) == 0 {
		return fmt.Errorf("%w: tokens are required", ErrInvalidInput)
	}
	return nil
}

// PredictSpan is one labelled span as reported by span-style models.
type PredictSpan struct {
	Label string  `json:"label"`
	Text  string  `json:"text"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score,omitempty"`
}

// PredictResponse carries model output. A model reports either Spans, or
// one BIO tag per token in Labels, or a per-token probability matrix in
// Emissions whose columns are named by LabelSet.
type PredictResponse struct {
	ModelName       string        `json:"model_name"`
	ModelVersion    string        `json:"model_version,omitempty"`
	Spans           []PredictSpan `json:"spans,omitempty"`
	Labels          []string      `json:"labels,omitempty"`
	Emissions       [][]float64   `json:"emissions,omitempty"`
	LabelSet        []string      `json:"label_set,omitempty"`
	InferenceTimeMs int64         `json:"inference_time_ms"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// DecodeFloat64Matrix converts a generic decoded value (JSON bytes, or the
// []interface{} produced by encoding/json and structpb) into [][]float64.
func DecodeFloat64Matrix(input interface{}) ([][]float64, error) {
	if input == nil {
		return nil, fmt.Errorf("input is nil")
	}

	if mat, ok := input.([][]float64); ok {
		return mat, nil
	}

	if b, ok := input.([]byte); ok {
		var raw interface{}
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal json: %w", err)
		}
		return DecodeFloat64Matrix(raw)
	}

	slice, ok := input.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected []interface{}, got %T", input)
	}

	result := make([][]float64, len(slice))
	for i, rowRaw := range slice {
		rowSlice, ok := rowRaw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("row %d is not []interface{}, got %T", i, rowRaw)
		}
		row := make([]float64, len(rowSlice))
		for j, valRaw := range rowSlice {
			f, err := toFloat64(valRaw)
			if err != nil {
				return nil, fmt.Errorf("row %d col %d: %w", i, j, err)
			}
			row[j] = f
		}
		result[i] = row
	}
	return result, nil
}

func toFloat64(v interface{}) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case json.Number:
		return val.Float64()
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}

// decodeStrings converts a []interface{} of strings.
func decodeStrings(input interface{}) ([]string, error) {
	if input == nil {
		return nil, nil
	}
	slice, ok := input.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected []interface{}, got %T", input)
	}
	out := make([]string, len(slice))
	for i, v := range slice {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, not string", i, v)
		}
		out[i] = s
	}
	return out, nil
}
