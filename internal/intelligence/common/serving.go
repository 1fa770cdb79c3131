package common

import (
	"bytes"
	"context"
	"encoding/json"
	stdliberrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

var (
	ErrServingUnavailable = stdliberrors.New("serving unavailable")
	ErrInvalidInput       = stdliberrors.New("invalid input")
	ErrInferenceTimeout   = stdliberrors.New("inference timeout")
	ErrClientClosed       = stdliberrors.New("client closed")
)

// TagMethod is the full gRPC method name of the tagging RPC. Request and
// response are google.protobuf.Struct values shaped like PredictRequest and
// PredictResponse.
const TagMethod = "/sigparse.v1.Tagger/Tag"

// ─── HTTP backend ───────────────────────────────────────────────────────────

// HTTPBackend calls a JSON model server: POST {base}/v1/predict and
// GET {base}/healthz.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	logger  logging.Logger
	metrics IntelligenceMetrics
	closed  atomic.Bool
}

// BackendOption configures a model backend.
type BackendOption func(*backendOptions)

type backendOptions struct {
	timeout     time.Duration
	httpClient  *http.Client
	metrics     IntelligenceMetrics
	dialOptions []grpc.DialOption
}

// WithBackendTimeout bounds each call.
func WithBackendTimeout(d time.Duration) BackendOption {
	return func(o *backendOptions) { o.timeout = d }
}

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(c *http.Client) BackendOption {
	return func(o *backendOptions) { o.httpClient = c }
}

// WithBackendMetrics records every call.
func WithBackendMetrics(m IntelligenceMetrics) BackendOption {
	return func(o *backendOptions) { o.metrics = m }
}

// WithDialOptions appends gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) BackendOption {
	return func(o *backendOptions) { o.dialOptions = append(o.dialOptions, opts...) }
}

func applyBackendOptions(opts []BackendOption) *backendOptions {
	o := &backendOptions{timeout: 5 * time.Second}
	for _, fn := range opts {
		fn(o)
	}
	if o.metrics == nil {
		o.metrics = NewNoopIntelligenceMetrics()
	}
	return o
}

// NewHTTPBackend validates baseURL and returns a backend bound to it.
func NewHTTPBackend(baseURL string, logger logging.Logger, opts ...BackendOption) (*HTTPBackend, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base url is empty", ErrInvalidInput)
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid base url %q", ErrInvalidInput, baseURL)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	o := applyBackendOptions(opts)
	client := o.httpClient
	if client == nil {
		client = &http.Client{Timeout: o.timeout}
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
		metrics: o.metrics,
	}, nil
}

func (b *HTTPBackend) Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	if b.closed.Load() {
		return nil, ErrClientClosed
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := b.predict(ctx, req)
	b.metrics.RecordInference(ctx, &InferenceMetricParams{
		Backend:    string(BackendHTTP),
		ModelName:  req.ModelName,
		DurationMs: msSince(start),
		Tokens:     len(req.Tokens),
		Success:    err == nil,
	})
	if err != nil {
		b.logger.Warn("http predict failed", logging.String("model", req.ModelName), logging.Err(err))
	}
	return resp, err
}

func (b *HTTPBackend) predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode predict request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/predict", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExtractionFailed, "build predict request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := b.client.Do(httpReq)
	if err != nil {
		if stdliberrors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, errors.Wrap(fmt.Errorf("%w: %v", ErrInferenceTimeout, err), errors.ErrCodeTimeout, "predict timed out")
		}
		return nil, errors.Wrap(fmt.Errorf("%w: %v", ErrServingUnavailable, err), errors.ErrCodeModelUnavailable, "predict request failed")
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelResponseBad, "read predict response")
	}
	switch {
	case httpResp.StatusCode >= 500:
		return nil, errors.Wrap(fmt.Errorf("%w: status %d", ErrServingUnavailable, httpResp.StatusCode),
			errors.ErrCodeModelUnavailable, "model server error")
	case httpResp.StatusCode >= 400:
		return nil, errors.Wrap(fmt.Errorf("%w: status %d: %s", ErrInvalidInput, httpResp.StatusCode, bytes.TrimSpace(payload)),
			errors.ErrCodeExtractionFailed, "model server rejected request")
	}

	var out PredictResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelResponseBad, "decode predict response")
	}
	return &out, nil
}

// Healthy reports nil when the server answers GET /healthz with 2xx.
func (b *HTTPBackend) Healthy(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClientClosed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServingUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: health status %d", ErrServingUnavailable, resp.StatusCode)
	}
	return nil
}

// Close marks the backend closed. It is idempotent.
func (b *HTTPBackend) Close() error {
	b.closed.Store(true)
	return nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return stdliberrors.As(err, &te) && te.Timeout()
}

// ─── gRPC backend ───────────────────────────────────────────────────────────

// GRPCBackend calls TagMethod on a gRPC model server.
type GRPCBackend struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	timeout time.Duration
	logger  logging.Logger
	metrics IntelligenceMetrics

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewGRPCBackend dials target. Without WithDialOptions the connection is
// plaintext.
func NewGRPCBackend(ctx context.Context, target string, logger logging.Logger, opts ...BackendOption) (*GRPCBackend, error) {
	if target == "" {
		return nil, fmt.Errorf("%w: target is empty", ErrInvalidInput)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	o := applyBackendOptions(opts)
	dialOpts := o.dialOptions
	if len(dialOpts) == 0 {
		dialOpts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelUnavailable, "dial tagging model")
	}
	return &GRPCBackend{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		timeout: o.timeout,
		logger:  logger,
		metrics: o.metrics,
	}, nil
}

func (b *GRPCBackend) Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	if b.closed.Load() {
		return nil, ErrClientClosed
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := b.predict(ctx, req)
	b.metrics.RecordInference(ctx, &InferenceMetricParams{
		Backend:    string(BackendGRPC),
		ModelName:  req.ModelName,
		DurationMs: msSince(start),
		Tokens:     len(req.Tokens),
		Success:    err == nil,
	})
	if err != nil {
		b.logger.Warn("grpc predict failed", logging.String("model", req.ModelName), logging.Err(err))
	}
	return resp, err
}

func (b *GRPCBackend) predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	in, err := requestToStruct(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode predict request")
	}
	out := &structpb.Struct{}
	if err := b.conn.Invoke(ctx, TagMethod, in, out); err != nil {
		if stdliberrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrap(fmt.Errorf("%w: %v", ErrInferenceTimeout, err), errors.ErrCodeTimeout, "predict timed out")
		}
		return nil, errors.Wrap(fmt.Errorf("%w: %v", ErrServingUnavailable, err), errors.ErrCodeModelUnavailable, "tag rpc failed")
	}
	resp, err := ResponseFromStruct(out)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelResponseBad, "decode predict response")
	}
	return resp, nil
}

// Healthy runs the standard gRPC health check for the whole server.
func (b *GRPCBackend) Healthy(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClientClosed
	}
	res, err := b.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServingUnavailable, err)
	}
	if res.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: status %s", ErrServingUnavailable, res.GetStatus())
	}
	return nil
}

// Close releases the connection. It is idempotent.
func (b *GRPCBackend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		err = b.conn.Close()
	})
	return err
}

// requestToStruct encodes req as a google.protobuf.Struct. structpb only
// accepts JSON-shaped values, so slices and maps are widened first.
func requestToStruct(req *PredictRequest) (*structpb.Struct, error) {
	tokens := make([]interface{}, len(req.Tokens))
	for i, t := range req.Tokens {
		tokens[i] = t
	}
	meta := make(map[string]interface{}, len(req.Metadata))
	for k, v := range req.Metadata {
		meta[k] = v
	}
	return structpb.NewStruct(map[string]interface{}{
		"model_name":    req.ModelName,
		"model_version": req.ModelVersion,
		"text":          req.Text,
		"tokens":        tokens,
		"metadata":      meta,
	})
}

// RequestFromStruct is the server-side inverse of the request encoding.
func RequestFromStruct(s *structpb.Struct) (*PredictRequest, error) {
	m := s.AsMap()
	tokens, err := decodeStrings(m["tokens"])
	if err != nil {
		return nil, fmt.Errorf("tokens: %w", err)
	}
	req := &PredictRequest{Tokens: tokens}
	req.ModelName, _ = m["model_name"].(string)
	req.ModelVersion, _ = m["model_version"].(string)
	req.Text, _ = m["text"].(string)
	if meta, ok := m["metadata"].(map[string]interface{}); ok && len(meta) > 0 {
		req.Metadata = make(map[string]string, len(meta))
		for k, v := range meta {
			req.Metadata[k] = fmt.Sprint(v)
		}
	}
	return req, nil
}

// ResponseToStruct encodes resp for the wire.
func ResponseToStruct(resp *PredictResponse) (*structpb.Struct, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// ResponseFromStruct decodes a PredictResponse sent as a Struct.
func ResponseFromStruct(s *structpb.Struct) (*PredictResponse, error) {
	m := s.AsMap()
	resp := &PredictResponse{}
	resp.ModelName, _ = m["model_name"].(string)
	resp.ModelVersion, _ = m["model_version"].(string)
	if ms, ok := m["inference_time_ms"].(float64); ok {
		resp.InferenceTimeMs = int64(ms)
	}

	var err error
	if resp.Labels, err = decodeStrings(m["labels"]); err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	if resp.LabelSet, err = decodeStrings(m["label_set"]); err != nil {
		return nil, fmt.Errorf("label_set: %w", err)
	}
	if raw, ok := m["emissions"]; ok && raw != nil {
		if resp.Emissions, err = DecodeFloat64Matrix(raw); err != nil {
			return nil, fmt.Errorf("emissions: %w", err)
		}
	}
	if raw, ok := m["spans"].([]interface{}); ok {
		for i, item := range raw {
			sm, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("span %d is %T", i, item)
			}
			span := PredictSpan{Start: -1, End: -1}
			span.Label, _ = sm["label"].(string)
			span.Text, _ = sm["text"].(string)
			if v, ok := sm["start"].(float64); ok {
				span.Start = int(v)
			}
			if v, ok := sm["end"].(float64); ok {
				span.End = int(v)
			}
			span.Score, _ = sm["score"].(float64)
			resp.Spans = append(resp.Spans, span)
		}
	}
	return resp, nil
}

// ─── Mock backend ───────────────────────────────────────────────────────────

// MockBackend is a function-field ModelBackend for tests.
type MockBackend struct {
	PredictFn func(ctx context.Context, req *PredictRequest) (*PredictResponse, error)
	HealthyFn func(ctx context.Context) error
	calls     atomic.Int64
}

func (m *MockBackend) Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	m.calls.Add(1)
	if m.PredictFn == nil {
		return &PredictResponse{ModelName: req.ModelName}, nil
	}
	return m.PredictFn(ctx, req)
}

func (m *MockBackend) Healthy(ctx context.Context) error {
	if m.HealthyFn == nil {
		return nil
	}
	return m.HealthyFn(ctx)
}

func (m *MockBackend) Close() error { return nil }

// Calls returns how many times Predict ran.
func (m *MockBackend) Calls() int64 { return m.calls.Load() }

var (
	_ ModelBackend = (*HTTPBackend)(nil)
	_ ModelBackend = (*GRPCBackend)(nil)
	_ ModelBackend = (*MockBackend)(nil)
)
