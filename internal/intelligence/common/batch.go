package common

import (
	"context"
	stdliberrors "errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

// ---------------------------------------------------------------------------
// Sentinel Errors
// ---------------------------------------------------------------------------

var (
	ErrShutdown     = stdliberrors.New("batch processor is shutting down")
	ErrBackpressure = stdliberrors.New("backpressure threshold exceeded")
	ErrCircuitOpen  = stdliberrors.New("circuit breaker is open")
)

// ---------------------------------------------------------------------------
// ItemStatus enumeration
// ---------------------------------------------------------------------------

// ItemStatus is the outcome of a single batch item.
type ItemStatus int

const (
	ItemStatusSuccess ItemStatus = iota
	ItemStatusFailed
	ItemStatusTimeout
	ItemStatusCancelled
)

func (s ItemStatus) String() string {
	switch s {
	case ItemStatusSuccess:
		return "SUCCESS"
	case ItemStatusFailed:
		return "FAILED"
	case ItemStatusTimeout:
		return "TIMEOUT"
	case ItemStatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ---------------------------------------------------------------------------
// Generic types
// ---------------------------------------------------------------------------

// ProcessFunc processes a single item.
type ProcessFunc[T, R any] func(ctx context.Context, item T) (R, error)

// ItemResult holds the outcome of one item. Results are reported in input
// order regardless of completion order.
type ItemResult[R any] struct {
	Index      int        `json:"index"`
	Result     R          `json:"result"`
	Error      error      `json:"error,omitempty"`
	DurationMs float64    `json:"duration_ms"`
	Status     ItemStatus `json:"status"`
}

// BatchResult aggregates a whole run.
type BatchResult[R any] struct {
	Results         []*ItemResult[R] `json:"results"`
	TotalCount      int              `json:"total_count"`
	SuccessCount    int              `json:"success_count"`
	FailureCount    int              `json:"failure_count"`
	TotalDurationMs float64          `json:"total_duration_ms"`
}

// ---------------------------------------------------------------------------
// BatchProcessor interface
// ---------------------------------------------------------------------------

// BatchProcessor runs a function over a slice of items on a bounded pool
// of goroutines.
type BatchProcessor[T, R any] interface {
	// Process executes fn for every item, respecting concurrency limits,
	// timeouts, the circuit breaker and back-pressure. Per-item failures
	// are reported in the result; the returned error is for the batch.
	Process(ctx context.Context, items []T, fn ProcessFunc[T, R]) (*BatchResult[R], error)

	// Shutdown stops accepting batches and waits for in-flight ones.
	Shutdown(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// RetryPolicy
// ---------------------------------------------------------------------------

// RetryPolicy governs how failed items are retried.
type RetryPolicy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// RetryableErrors limits retries to matching errors. Empty means all.
	RetryableErrors []error
}

func shouldRetry(err error, policy *RetryPolicy) bool {
	if policy == nil || err == nil {
		return false
	}
	if len(policy.RetryableErrors) == 0 {
		return true
	}
	for _, re := range policy.RetryableErrors {
		if stdliberrors.Is(err, re) {
			return true
		}
	}
	return false
}

// calculateBackoff applies exponential back-off with ±25% jitter, capped at
// MaxBackoff.
func calculateBackoff(attempt int, policy *RetryPolicy) time.Duration {
	if policy == nil || policy.InitialBackoff <= 0 {
		return 0
	}
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	base := float64(policy.InitialBackoff) * math.Pow(multiplier, float64(attempt))
	if policy.MaxBackoff > 0 && base > float64(policy.MaxBackoff) {
		base = float64(policy.MaxBackoff)
	}
	jitter := base * 0.25 * (rand.Float64()*2 - 1)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// ---------------------------------------------------------------------------
// Circuit breaker
// ---------------------------------------------------------------------------

const (
	cbStateClosed   int32 = 0
	cbStateOpen     int32 = 1
	cbStateHalfOpen int32 = 2
)

type circuitBreaker struct {
	name             string
	state            atomic.Int32
	consecutiveFails atomic.Int32
	threshold        int32
	resetDuration    time.Duration
	lastOpenTime     atomic.Int64
	halfOpenPermits  atomic.Int32
	logger           logging.Logger
	metrics          IntelligenceMetrics
}

func newCircuitBreaker(name string, threshold int, duration time.Duration, logger logging.Logger, metrics IntelligenceMetrics) *circuitBreaker {
	cb := &circuitBreaker{
		name:          name,
		threshold:     int32(threshold),
		resetDuration: duration,
		logger:        logger,
		metrics:       metrics,
	}
	cb.state.Store(cbStateClosed)
	return cb
}

// allow reports whether a call may go through. In half-open state exactly
// one probe is let through.
func (cb *circuitBreaker) allow() bool {
	if cb == nil || cb.threshold <= 0 {
		return true
	}
	switch cb.state.Load() {
	case cbStateClosed:
		return true
	case cbStateOpen:
		openedAt := cb.lastOpenTime.Load()
		if time.Since(time.Unix(0, openedAt)) < cb.resetDuration {
			return false
		}
		if cb.state.CompareAndSwap(cbStateOpen, cbStateHalfOpen) {
			cb.halfOpenPermits.Store(1)
			cb.logStateChange("OPEN", "HALF_OPEN")
		}
		return cb.halfOpenPermits.Add(-1) >= 0
	case cbStateHalfOpen:
		return cb.halfOpenPermits.Add(-1) >= 0
	}
	return false
}

func (cb *circuitBreaker) recordSuccess() {
	if cb == nil || cb.threshold <= 0 {
		return
	}
	cb.consecutiveFails.Store(0)
	if cb.state.CompareAndSwap(cbStateHalfOpen, cbStateClosed) {
		cb.logStateChange("HALF_OPEN", "CLOSED")
	}
}

func (cb *circuitBreaker) recordFailure() {
	if cb == nil || cb.threshold <= 0 {
		return
	}
	fails := cb.consecutiveFails.Add(1)

	switch cb.state.Load() {
	case cbStateClosed:
		if fails >= cb.threshold && cb.state.CompareAndSwap(cbStateClosed, cbStateOpen) {
			cb.lastOpenTime.Store(time.Now().UnixNano())
			cb.logStateChange("CLOSED", "OPEN")
		}
	case cbStateHalfOpen:
		if cb.state.CompareAndSwap(cbStateHalfOpen, cbStateOpen) {
			cb.lastOpenTime.Store(time.Now().UnixNano())
			cb.logStateChange("HALF_OPEN", "OPEN")
		}
	}
}

func (cb *circuitBreaker) logStateChange(from, to string) {
	cb.logger.Info("circuit breaker state change",
		logging.String("name", cb.name),
		logging.String("from", from),
		logging.String("to", to))
	cb.metrics.RecordCircuitBreakerStateChange(context.Background(), cb.name, from, to)
}

func (cb *circuitBreaker) currentState() int32 {
	if cb == nil {
		return cbStateClosed
	}
	return cb.state.Load()
}

// ---------------------------------------------------------------------------
// BatchOption functional options
// ---------------------------------------------------------------------------

type batchConfig struct {
	name                  string
	maxConcurrency        int
	itemTimeout           time.Duration
	batchTimeout          time.Duration
	retryPolicy           *RetryPolicy
	cbThreshold           int
	cbDuration            time.Duration
	backpressureThreshold int
	metrics               IntelligenceMetrics
	logger                logging.Logger
}

func defaultBatchConfig() *batchConfig {
	return &batchConfig{
		name:           "batch-processor",
		maxConcurrency: runtime.NumCPU(),
		itemTimeout:    30 * time.Second,
		batchTimeout:   5 * time.Minute,
	}
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*batchConfig)

// WithBatchName labels the processor in logs and metrics.
func WithBatchName(name string) BatchOption {
	return func(c *batchConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithMaxConcurrency sets the maximum number of items processed concurrently.
func WithMaxConcurrency(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithItemTimeout sets the per-item timeout.
func WithItemTimeout(d time.Duration) BatchOption {
	return func(c *batchConfig) {
		if d > 0 {
			c.itemTimeout = d
		}
	}
}

// WithBatchTimeout sets the overall timeout of one Process call.
func WithBatchTimeout(d time.Duration) BatchOption {
	return func(c *batchConfig) {
		if d > 0 {
			c.batchTimeout = d
		}
	}
}

// WithRetryPolicy retries failed items with exponential back-off.
func WithRetryPolicy(maxRetries int, backoff time.Duration) BatchOption {
	return func(c *batchConfig) {
		if maxRetries > 0 {
			c.retryPolicy = &RetryPolicy{
				MaxRetries:        maxRetries,
				InitialBackoff:    backoff,
				MaxBackoff:        backoff * 16,
				BackoffMultiplier: 2.0,
			}
		}
	}
}

// WithRetryPolicyFull installs a complete retry policy.
func WithRetryPolicyFull(policy *RetryPolicy) BatchOption {
	return func(c *batchConfig) {
		c.retryPolicy = policy
	}
}

// WithCircuitBreaker opens the breaker after threshold consecutive failures
// and probes again after duration.
func WithCircuitBreaker(threshold int, duration time.Duration) BatchOption {
	return func(c *batchConfig) {
		if threshold > 0 && duration > 0 {
			c.cbThreshold = threshold
			c.cbDuration = duration
		}
	}
}

// WithBackpressureThreshold rejects a batch when the number of pending
// items would exceed n. Zero disables the check.
func WithBackpressureThreshold(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.backpressureThreshold = n
		}
	}
}

// WithBatchMetrics injects a metrics collector.
func WithBatchMetrics(m IntelligenceMetrics) BatchOption {
	return func(c *batchConfig) {
		c.metrics = m
	}
}

// WithBatchLogger injects a logger.
func WithBatchLogger(l logging.Logger) BatchOption {
	return func(c *batchConfig) {
		c.logger = l
	}
}

// ---------------------------------------------------------------------------
// batchProcessor implementation
// ---------------------------------------------------------------------------

type batchProcessor[T, R any] struct {
	cfg     *batchConfig
	cb      *circuitBreaker
	metrics IntelligenceMetrics
	logger  logging.Logger

	shutdownOnce sync.Once
	isShutdown   atomic.Bool
	activeWg     sync.WaitGroup

	pendingCount atomic.Int64
}

// NewBatchProcessor creates a BatchProcessor with the supplied options.
func NewBatchProcessor[T, R any](opts ...BatchOption) BatchProcessor[T, R] {
	cfg := defaultBatchConfig()
	for _, o := range opts {
		o(cfg)
	}
	if cfg.metrics == nil {
		cfg.metrics = NewNoopIntelligenceMetrics()
	}
	if cfg.logger == nil {
		cfg.logger = logging.NewNopLogger()
	}
	bp := &batchProcessor[T, R]{
		cfg:     cfg,
		metrics: cfg.metrics,
		logger:  cfg.logger,
	}
	if cfg.cbThreshold > 0 && cfg.cbDuration > 0 {
		bp.cb = newCircuitBreaker(cfg.name, cfg.cbThreshold, cfg.cbDuration, cfg.logger, cfg.metrics)
	}
	return bp
}

func (bp *batchProcessor[T, R]) Process(
	ctx context.Context,
	items []T,
	fn ProcessFunc[T, R],
) (*BatchResult[R], error) {
	if fn == nil {
		return nil, errors.InvalidParam("process function must not be nil")
	}
	if bp.isShutdown.Load() {
		return nil, ErrShutdown
	}
	n := len(items)
	if n == 0 {
		return &BatchResult[R]{Results: []*ItemResult[R]{}}, nil
	}

	if bp.cfg.backpressureThreshold > 0 {
		if bp.pendingCount.Load()+int64(n) > int64(bp.cfg.backpressureThreshold) {
			return nil, ErrBackpressure
		}
	}
	bp.pendingCount.Add(int64(n))
	defer bp.pendingCount.Add(-int64(n))

	bp.activeWg.Add(1)
	defer bp.activeWg.Done()

	batchStart := time.Now()
	batchCtx, batchCancel := context.WithTimeout(ctx, bp.cfg.batchTimeout)
	defer batchCancel()

	// Each goroutine writes only its own slot.
	results := make([]*ItemResult[R], n)
	sem := make(chan struct{}, bp.cfg.maxConcurrency)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int, item T) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-batchCtx.Done():
				results[idx] = &ItemResult[R]{
					Index:  idx,
					Error:  batchCtx.Err(),
					Status: classifyCtxError(batchCtx.Err()),
				}
				return
			}

			results[idx] = bp.processOneItem(batchCtx, idx, item, fn)
		}(i, items[i])
	}
	wg.Wait()

	br := buildBatchResult(results, time.Since(batchStart))
	bp.metrics.RecordBatchProcessing(ctx, batchMetrics(bp.cfg.name, br))
	bp.logger.Debug("batch processed",
		logging.String("batch", bp.cfg.name),
		logging.Int("total", br.TotalCount),
		logging.Int("failed", br.FailureCount),
		logging.Float64("duration_ms", br.TotalDurationMs))

	return br, nil
}

func (bp *batchProcessor[T, R]) Shutdown(ctx context.Context) error {
	bp.shutdownOnce.Do(func() {
		bp.isShutdown.Store(true)
	})

	done := make(chan struct{})
	go func() {
		bp.activeWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processOneItem runs fn with retry and the circuit breaker.
func (bp *batchProcessor[T, R]) processOneItem(
	batchCtx context.Context,
	idx int,
	item T,
	fn ProcessFunc[T, R],
) *ItemResult[R] {
	itemStart := time.Now()

	if !bp.cb.allow() {
		return &ItemResult[R]{
			Index:      idx,
			Error:      ErrCircuitOpen,
			Status:     ItemStatusFailed,
			DurationMs: msSince(itemStart),
		}
	}

	maxAttempts := 1
	if bp.cfg.retryPolicy != nil && bp.cfg.retryPolicy.MaxRetries > 0 {
		maxAttempts = 1 + bp.cfg.retryPolicy.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if delay := calculateBackoff(attempt-1, bp.cfg.retryPolicy); delay > 0 {
				select {
				case <-batchCtx.Done():
					return &ItemResult[R]{
						Index:      idx,
						Error:      batchCtx.Err(),
						Status:     classifyCtxError(batchCtx.Err()),
						DurationMs: msSince(itemStart),
					}
				case <-time.After(delay):
				}
			}
		}

		itemCtx, itemCancel := context.WithTimeout(batchCtx, bp.cfg.itemTimeout)
		result, err := fn(itemCtx, item)
		itemCancel()

		if err == nil {
			bp.cb.recordSuccess()
			return &ItemResult[R]{
				Index:      idx,
				Result:     result,
				Status:     ItemStatusSuccess,
				DurationMs: msSince(itemStart),
			}
		}

		lastErr = err
		bp.cb.recordFailure()
		if attempt < maxAttempts-1 && shouldRetry(err, bp.cfg.retryPolicy) {
			continue
		}
		break
	}

	return &ItemResult[R]{
		Index:      idx,
		Error:      lastErr,
		Status:     classifyError(batchCtx, lastErr),
		DurationMs: msSince(itemStart),
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func buildBatchResult[R any](results []*ItemResult[R], totalDuration time.Duration) *BatchResult[R] {
	br := &BatchResult[R]{
		Results:         results,
		TotalCount:      len(results),
		TotalDurationMs: float64(totalDuration.Microseconds()) / 1000.0,
	}
	for _, r := range results {
		if r.Status == ItemStatusSuccess {
			br.SuccessCount++
		} else {
			br.FailureCount++
		}
	}
	return br
}

func batchMetrics[R any](name string, br *BatchResult[R]) *BatchMetricParams {
	p := &BatchMetricParams{
		BatchName:       name,
		TotalItems:      br.TotalCount,
		TotalDurationMs: br.TotalDurationMs,
	}
	for _, r := range br.Results {
		switch r.Status {
		case ItemStatusSuccess:
			p.SuccessItems++
		case ItemStatusTimeout:
			p.TimeoutItems++
		case ItemStatusCancelled:
			p.CancelledItems++
		default:
			p.FailedItems++
		}
	}
	return p
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}

func classifyCtxError(err error) ItemStatus {
	switch {
	case err == nil:
		return ItemStatusSuccess
	case stdliberrors.Is(err, context.DeadlineExceeded):
		return ItemStatusTimeout
	default:
		return ItemStatusCancelled
	}
}

func classifyError(batchCtx context.Context, err error) ItemStatus {
	if err == nil {
		return ItemStatusSuccess
	}
	if stdliberrors.Is(err, context.DeadlineExceeded) {
		return ItemStatusTimeout
	}
	if stdliberrors.Is(err, context.Canceled) {
		return ItemStatusCancelled
	}
	switch batchCtx.Err() {
	case context.DeadlineExceeded:
		return ItemStatusTimeout
	case context.Canceled:
		return ItemStatusCancelled
	}
	return ItemStatusFailed
}
