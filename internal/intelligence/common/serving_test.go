package common

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

func sampleRequest() *PredictRequest {
	return &PredictRequest{
		ModelName: "sig-ner",
		Text:      "take 2 tablets daily",
		Tokens:    []string{"take", "2", "tablets", "daily"},
	}
}

func TestPredictRequest_Validate(t *testing.T) {
	assert.ErrorIs(t, (*PredictRequest)(nil).Validate(), ErrInvalidInput)
	assert.ErrorIs(t, (&PredictRequest{Tokens: []string{"x"}}).Validate(), ErrInvalidInput)
	assert.ErrorIs(t, (&PredictRequest{ModelName: "m"}).Validate(), ErrInvalidInput)
	assert.NoError(t, sampleRequest().Validate())
}

func TestParseBackendType(t *testing.T) {
	for in, want := range map[string]BackendType{"": BackendRule, "RULE": BackendRule, "http": BackendHTTP, " grpc ": BackendGRPC} {
		got, err := ParseBackendType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseBackendType("onnx")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// ─── HTTP ───────────────────────────────────────────────────────────────────

func TestNewHTTPBackend_InvalidURL(t *testing.T) {
	_, err := NewHTTPBackend("", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewHTTPBackend("not a url", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestHTTP_Predict_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/predict", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var req PredictRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"take", "2", "tablets", "daily"}, req.Tokens)

		_ = json.NewEncoder(w).Encode(PredictResponse{
			ModelName: req.ModelName,
			Labels:    []string{"O", "B-DOSAGE", "B-FORM", "B-FREQUENCY"},
		})
	}))
	defer srv.Close()

	metrics := NewInMemoryIntelligenceMetrics()
	b, err := NewHTTPBackend(srv.URL+"/", logging.NewNopLogger(), WithBackendMetrics(metrics))
	require.NoError(t, err)

	resp, err := b.Predict(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "sig-ner", resp.ModelName)
	assert.Equal(t, []string{"O", "B-DOSAGE", "B-FORM", "B-FREQUENCY"}, resp.Labels)

	require.Len(t, metrics.Inferences(), 1)
	assert.True(t, metrics.Inferences()[0].Success)
	assert.Equal(t, "http", metrics.Inferences()[0].Backend)
	assert.Equal(t, 4, metrics.Inferences()[0].Tokens)
}

func TestHTTP_Predict_StatusMapping(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
		code     errors.ErrorCode
	}{
		{http.StatusInternalServerError, ErrServingUnavailable, errors.ErrCodeModelUnavailable},
		{http.StatusServiceUnavailable, ErrServingUnavailable, errors.ErrCodeModelUnavailable},
		{http.StatusBadRequest, ErrInvalidInput, errors.ErrCodeExtractionFailed},
		{http.StatusNotFound, ErrInvalidInput, errors.ErrCodeExtractionFailed},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		b, err := NewHTTPBackend(srv.URL, nil)
		require.NoError(t, err)

		_, err = b.Predict(context.Background(), sampleRequest())
		assert.ErrorIs(t, err, tt.sentinel, tt.status)
		assert.True(t, errors.IsCode(err, tt.code), tt.status)
		srv.Close()
	}
}

func TestHTTP_Predict_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	b, err := NewHTTPBackend(srv.URL, nil)
	require.NoError(t, err)
	_, err = b.Predict(context.Background(), sampleRequest())
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelResponseBad))
}

func TestHTTP_Predict_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	b, err := NewHTTPBackend(srv.URL, nil, WithBackendTimeout(20*time.Millisecond))
	require.NoError(t, err)
	_, err = b.Predict(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrInferenceTimeout)
}

func TestHTTP_Predict_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	b, err := NewHTTPBackend(addr, nil)
	require.NoError(t, err)
	_, err = b.Predict(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrServingUnavailable)
}

func TestHTTP_HealthyAndClose(t *testing.T) {
	var unhealthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	b, err := NewHTTPBackend(srv.URL, nil)
	require.NoError(t, err)
	assert.NoError(t, b.Healthy(context.Background()))

	unhealthy.Store(true)
	assert.ErrorIs(t, b.Healthy(context.Background()), ErrServingUnavailable)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	_, err = b.Predict(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrClientClosed)
}

// ─── gRPC ───────────────────────────────────────────────────────────────────

type taggerServer interface {
	Tag(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type fakeTagger struct {
	fn func(req *PredictRequest) *PredictResponse
}

func (f *fakeTagger) Tag(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := RequestFromStruct(in)
	if err != nil {
		return nil, err
	}
	return ResponseToStruct(f.fn(req))
}

var taggerServiceDesc = grpc.ServiceDesc{
	ServiceName: "sigparse.v1.Tagger",
	HandlerType: (*taggerServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Tag",
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
			in := &structpb.Struct{}
			if err := dec(in); err != nil {
				return nil, err
			}
			return srv.(taggerServer).Tag(ctx, in)
		},
	}},
}

func startTagger(t *testing.T, fn func(req *PredictRequest) *PredictResponse) (*GRPCBackend, *health.Server) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&taggerServiceDesc, &fakeTagger{fn: fn})
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	b, err := NewGRPCBackend(context.Background(), "bufnet", logging.NewNopLogger(),
		WithDialOptions(
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, hs
}

func TestGRPC_Predict_RoundTrip(t *testing.T) {
	b, _ := startTagger(t, func(req *PredictRequest) *PredictResponse {
		return &PredictResponse{
			ModelName: req.ModelName,
			Spans: []PredictSpan{
				{Label: "DOSAGE", Text: "2", Start: 5, End: 6, Score: 0.9},
				{Label: "FREQUENCY", Text: req.Tokens[3], Start: 15, End: 20},
			},
			Emissions:       [][]float64{{0.1, 0.9}, {0.8, 0.2}},
			LabelSet:        []string{"O", "B-DOSAGE"},
			InferenceTimeMs: 7,
		}
	})

	resp, err := b.Predict(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "sig-ner", resp.ModelName)
	require.Len(t, resp.Spans, 2)
	assert.Equal(t, PredictSpan{Label: "DOSAGE", Text: "2", Start: 5, End: 6, Score: 0.9}, resp.Spans[0])
	assert.Equal(t, "daily", resp.Spans[1].Text)
	assert.Equal(t, [][]float64{{0.1, 0.9}, {0.8, 0.2}}, resp.Emissions)
	assert.Equal(t, []string{"O", "B-DOSAGE"}, resp.LabelSet)
	assert.Equal(t, int64(7), resp.InferenceTimeMs)
}

func TestGRPC_Healthy(t *testing.T) {
	b, hs := startTagger(t, func(req *PredictRequest) *PredictResponse { return &PredictResponse{} })

	assert.NoError(t, b.Healthy(context.Background()))
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	assert.ErrorIs(t, b.Healthy(context.Background()), ErrServingUnavailable)
}

func TestGRPC_ClosedAndValidation(t *testing.T) {
	b, _ := startTagger(t, func(req *PredictRequest) *PredictResponse { return &PredictResponse{} })

	_, err := b.Predict(context.Background(), &PredictRequest{ModelName: "m"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	_, err = b.Predict(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestNewGRPCBackend_EmptyTarget(t *testing.T) {
	_, err := NewGRPCBackend(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestResponseFromStruct_BadLabels(t *testing.T) {
	s, err := structpb.NewStruct(map[string]interface{}{"labels": []interface{}{"O", 3.0}})
	require.NoError(t, err)
	_, err = ResponseFromStruct(s)
	assert.Error(t, err)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func TestDecodeFloat64Matrix(t *testing.T) {
	got, err := DecodeFloat64Matrix([]byte(`[[1, 0.5], [0, 2]]`))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0.5}, {0, 2}}, got)

	_, err = DecodeFloat64Matrix(nil)
	assert.Error(t, err)
	_, err = DecodeFloat64Matrix([]interface{}{"x"})
	assert.Error(t, err)
	_, err = DecodeFloat64Matrix([]interface{}{[]interface{}{"x"}})
	assert.Error(t, err)
}

func TestMockBackend_CountsCalls(t *testing.T) {
	m := &MockBackend{}
	resp, err := m.Predict(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "sig-ner", resp.ModelName)
	assert.Equal(t, int64(1), m.Calls())
	assert.NoError(t, m.Healthy(context.Background()))
}
