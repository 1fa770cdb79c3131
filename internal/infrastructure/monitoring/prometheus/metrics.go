package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/sigparse/internal/application/parsing"
)

// AppMetrics holds every sigparse metric family.
type AppMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// gRPC
	GRPCRequestsTotal CounterVec

	// Parsing
	ParsesTotal       CounterVec
	ParseDuration     HistogramVec
	ParseRecords      HistogramVec
	BatchesTotal      CounterVec
	BatchDuration     HistogramVec
	BatchInputs       HistogramVec
	CacheLookupsTotal CounterVec
	DiagnosticsTotal  CounterVec

	// Streaming worker
	MessagesTotal          CounterVec
	MessageProcessDuration HistogramVec

	// Storage
	DBQueryDuration HistogramVec
	ErrorsTotal     CounterVec

	// Health
	HealthCheckStatus GaugeVec
}

var (
	DefaultHTTPDurationBuckets  = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultParseDurationBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1}
	DefaultBatchDurationBuckets = []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900, 3600}
	DefaultCountBuckets         = []float64{1, 2, 5, 10, 50, 100, 500, 1000, 5000, 10000}
	DefaultDBDurationBuckets    = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

// NewAppMetrics registers all metric families on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method")

	m.GRPCRequestsTotal = collector.RegisterCounter("grpc_requests_total", "Total gRPC requests", "method", "code")

	m.ParsesTotal = collector.RegisterCounter("parses_total", "Instructions parsed, by outcome", "outcome")
	m.ParseDuration = collector.RegisterHistogram("parse_duration_seconds", "Single instruction parse duration", DefaultParseDurationBuckets, "outcome")
	m.ParseRecords = collector.RegisterHistogram("parse_records", "Records produced per instruction", []float64{1, 2, 3, 4, 6, 8}, "outcome")
	m.BatchesTotal = collector.RegisterCounter("batches_total", "Batch parses, by mode", "mode")
	m.BatchDuration = collector.RegisterHistogram("batch_duration_seconds", "Batch parse duration", DefaultBatchDurationBuckets, "mode")
	m.BatchInputs = collector.RegisterHistogram("batch_inputs", "Inputs per batch", DefaultCountBuckets, "mode")
	m.CacheLookupsTotal = collector.RegisterCounter("cache_lookups_total", "Result cache lookups", "result")
	m.DiagnosticsTotal = collector.RegisterCounter("diagnostics_total", "Interpretation warnings, by rule", "rule")

	m.MessagesTotal = collector.RegisterCounter("messages_total", "Stream messages handled", "topic", "status")
	m.MessageProcessDuration = collector.RegisterHistogram("message_process_duration_seconds", "Stream message handling duration", DefaultHTTPDurationBuckets, "topic")

	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "operation")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_type")

	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")

	return m
}

// RecordHTTPRequest records one served request.
func (m *AppMetrics) RecordHTTPRequest(method, path string, statusCode int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordGRPCRequest records one unary call.
func (m *AppMetrics) RecordGRPCRequest(method, code string) {
	m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
}

// RecordMessage records one stream message.
func (m *AppMetrics) RecordMessage(topic string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.MessagesTotal.WithLabelValues(topic, status).Inc()
	m.MessageProcessDuration.WithLabelValues(topic).Observe(d.Seconds())
}

// RecordDBQuery records one repository call.
func (m *AppMetrics) RecordDBQuery(operation string, d time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(operation).Observe(d.Seconds())
	if err != nil {
		m.ErrorsTotal.WithLabelValues("database", operation).Inc()
	}
}

// SetHealth sets component to up or down.
func (m *AppMetrics) SetHealth(component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}

// ParserMetrics adapts AppMetrics to parsing.Metrics.
func (m *AppMetrics) ParserMetrics() parsing.Metrics {
	return parserMetrics{m}
}

type parserMetrics struct{ m *AppMetrics }

func (p parserMetrics) ObserveParse(outcome parsing.Outcome, records int, d time.Duration) {
	p.m.ParsesTotal.WithLabelValues(string(outcome)).Inc()
	p.m.ParseDuration.WithLabelValues(string(outcome)).Observe(d.Seconds())
	p.m.ParseRecords.WithLabelValues(string(outcome)).Observe(float64(records))
}

func (p parserMetrics) ObserveBatch(mode parsing.Mode, inputs, _ int, d time.Duration) {
	p.m.BatchesTotal.WithLabelValues(string(mode)).Inc()
	p.m.BatchDuration.WithLabelValues(string(mode)).Observe(d.Seconds())
	p.m.BatchInputs.WithLabelValues(string(mode)).Observe(float64(inputs))
}

func (p parserMetrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

func (p parserMetrics) ObserveDiagnostics(rule string) {
	p.m.DiagnosticsTotal.WithLabelValues(rule).Inc()
}
