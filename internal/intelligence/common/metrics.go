package common

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ---------------------------------------------------------------------------
// IntelligenceMetrics interface
// ---------------------------------------------------------------------------

// IntelligenceMetrics records observations about tagger calls and batch
// runs. Implementations must be safe for concurrent use.
type IntelligenceMetrics interface {
	RecordInference(ctx context.Context, params *InferenceMetricParams)
	RecordBatchProcessing(ctx context.Context, params *BatchMetricParams)
	RecordCacheAccess(ctx context.Context, hit bool, cacheName string)
	RecordCircuitBreakerStateChange(ctx context.Context, name, from, to string)
}

// InferenceMetricParams describes one call to a tagging backend.
type InferenceMetricParams struct {
	Backend    string
	ModelName  string
	DurationMs float64
	Tokens     int
	Success    bool
}

// BatchMetricParams describes one BatchProcessor run.
type BatchMetricParams struct {
	BatchName       string
	TotalItems      int
	SuccessItems    int
	FailedItems     int
	TimeoutItems    int
	CancelledItems  int
	TotalDurationMs float64
}

const metricsPrefix = "sigparse_intelligence_"

var defaultLatencyBuckets = []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// ---------------------------------------------------------------------------
// Prometheus implementation
// ---------------------------------------------------------------------------

// PrometheusIntelligenceMetrics exports IntelligenceMetrics as Prometheus
// collectors.
type PrometheusIntelligenceMetrics struct {
	inferenceLatency        *prometheus.HistogramVec
	inferenceTotal          *prometheus.CounterVec
	batchProcessingDuration *prometheus.HistogramVec
	batchItemsTotal         *prometheus.CounterVec
	cacheAccessTotal        *prometheus.CounterVec
	circuitBreakerState     *prometheus.GaugeVec
}

// NewPrometheusIntelligenceMetrics creates the collectors and registers them
// with registerer. A nil registerer means prometheus.DefaultRegisterer.
func NewPrometheusIntelligenceMetrics(registerer prometheus.Registerer) (*PrometheusIntelligenceMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &PrometheusIntelligenceMetrics{
		inferenceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricsPrefix + "inference_duration_milliseconds",
			Help:    "Latency of tagging backend calls in milliseconds.",
			Buckets: defaultLatencyBuckets,
		}, []string{"backend", "model_name"}),
		inferenceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricsPrefix + "inference_total",
			Help: "Total number of tagging backend calls.",
		}, []string{"backend", "model_name", "status"}),
		batchProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricsPrefix + "batch_processing_duration_milliseconds",
			Help:    "Duration of batch runs in milliseconds.",
			Buckets: defaultLatencyBuckets,
		}, []string{"batch_name"}),
		batchItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricsPrefix + "batch_items_total",
			Help: "Total number of items processed in batches.",
		}, []string{"batch_name", "status"}),
		cacheAccessTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricsPrefix + "cache_access_total",
			Help: "Total number of result cache lookups.",
		}, []string{"cache", "result"}),
		circuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricsPrefix + "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open).",
		}, []string{"name"}),
	}

	collectors := []prometheus.Collector{
		m.inferenceLatency,
		m.inferenceTotal,
		m.batchProcessingDuration,
		m.batchItemsTotal,
		m.cacheAccessTotal,
		m.circuitBreakerState,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusIntelligenceMetrics) RecordInference(_ context.Context, p *InferenceMetricParams) {
	if p == nil {
		return
	}
	status := "success"
	if !p.Success {
		status = "failure"
	}
	m.inferenceLatency.WithLabelValues(p.Backend, p.ModelName).Observe(p.DurationMs)
	m.inferenceTotal.WithLabelValues(p.Backend, p.ModelName, status).Inc()
}

func (m *PrometheusIntelligenceMetrics) RecordBatchProcessing(_ context.Context, p *BatchMetricParams) {
	if p == nil {
		return
	}
	m.batchProcessingDuration.WithLabelValues(p.BatchName).Observe(p.TotalDurationMs)
	m.batchItemsTotal.WithLabelValues(p.BatchName, "success").Add(float64(p.SuccessItems))
	m.batchItemsTotal.WithLabelValues(p.BatchName, "failed").Add(float64(p.FailedItems))
	m.batchItemsTotal.WithLabelValues(p.BatchName, "timeout").Add(float64(p.TimeoutItems))
	m.batchItemsTotal.WithLabelValues(p.BatchName, "cancelled").Add(float64(p.CancelledItems))
}

func (m *PrometheusIntelligenceMetrics) RecordCacheAccess(_ context.Context, hit bool, cacheName string) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheAccessTotal.WithLabelValues(cacheName, result).Inc()
}

func (m *PrometheusIntelligenceMetrics) RecordCircuitBreakerStateChange(_ context.Context, name, _, to string) {
	m.circuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "OPEN":
		return 1
	case "HALF_OPEN":
		return 2
	default:
		return 0
	}
}

// ---------------------------------------------------------------------------
// Noop implementation
// ---------------------------------------------------------------------------

type noopIntelligenceMetrics struct{}

// NewNoopIntelligenceMetrics returns metrics that discard every observation.
func NewNoopIntelligenceMetrics() IntelligenceMetrics { return noopIntelligenceMetrics{} }

func (noopIntelligenceMetrics) RecordInference(context.Context, *InferenceMetricParams) {}

func (noopIntelligenceMetrics) RecordBatchProcessing(context.Context, *BatchMetricParams) {}

func (noopIntelligenceMetrics) RecordCacheAccess(context.Context, bool, string) {}

func (noopIntelligenceMetrics) RecordCircuitBreakerStateChange(context.Context, string, string, string) {
}

// ---------------------------------------------------------------------------
// In-memory implementation (tests)
// ---------------------------------------------------------------------------

// InMemoryIntelligenceMetrics keeps every observation in memory.
type InMemoryIntelligenceMetrics struct {
	mu          sync.Mutex
	inferences  []InferenceMetricParams
	batches     []BatchMetricParams
	cacheHits   int
	cacheMisses int
	transitions []string
}

// NewInMemoryIntelligenceMetrics returns an empty in-memory collector.
func NewInMemoryIntelligenceMetrics() *InMemoryIntelligenceMetrics {
	return &InMemoryIntelligenceMetrics{}
}

func (m *InMemoryIntelligenceMetrics) RecordInference(_ context.Context, p *InferenceMetricParams) {
	if p == nil {
		return
	}
	m.mu.Lock()
	m.inferences = append(m.inferences, *p)
	m.mu.Unlock()
}

func (m *InMemoryIntelligenceMetrics) RecordBatchProcessing(_ context.Context, p *BatchMetricParams) {
	if p == nil {
		return
	}
	m.mu.Lock()
	m.batches = append(m.batches, *p)
	m.mu.Unlock()
}

func (m *InMemoryIntelligenceMetrics) RecordCacheAccess(_ context.Context, hit bool, _ string) {
	m.mu.Lock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
	m.mu.Unlock()
}

func (m *InMemoryIntelligenceMetrics) RecordCircuitBreakerStateChange(_ context.Context, _, from, to string) {
	m.mu.Lock()
	m.transitions = append(m.transitions, from+"->"+to)
	m.mu.Unlock()
}

// Inferences returns a copy of the recorded backend calls.
func (m *InMemoryIntelligenceMetrics) Inferences() []InferenceMetricParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]InferenceMetricParams(nil), m.inferences...)
}

// Batches returns a copy of the recorded batch runs.
func (m *InMemoryIntelligenceMetrics) Batches() []BatchMetricParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BatchMetricParams(nil), m.batches...)
}

// CacheStats returns hit and miss counts.
func (m *InMemoryIntelligenceMetrics) CacheStats() (hits, misses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cacheHits, m.cacheMisses
}

// Transitions returns the recorded breaker transitions as "FROM->TO".
func (m *InMemoryIntelligenceMetrics) Transitions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.transitions...)
}
