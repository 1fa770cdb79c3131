package common

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/sigparse/pkg/errors"
)

func TestProcess_AllSuccess(t *testing.T) {
	bp := NewBatchProcessor[string, string]()
	items := []string{"a", "b", "c"}
	fn := func(ctx context.Context, item string) (string, error) {
		return item + "_parsed", nil
	}

	res, err := bp.Process(context.Background(), items, fn)
	require.NoError(t, err)
	assert.Equal(t, 3, res.SuccessCount)
	for i, item := range items {
		assert.Equal(t, i, res.Results[i].Index)
		assert.Equal(t, item+"_parsed", res.Results[i].Result)
	}
}

func TestProcess_AllFailure(t *testing.T) {
	bp := NewBatchProcessor[string, string]()
	fn := func(ctx context.Context, item string) (string, error) {
		return "", errors.New("failed")
	}

	res, err := bp.Process(context.Background(), []string{"a", "b"}, fn)
	require.NoError(t, err)
	assert.Equal(t, 0, res.SuccessCount)
	assert.Equal(t, 2, res.FailureCount)
	assert.Equal(t, ItemStatusFailed, res.Results[0].Status)
	assert.Error(t, res.Results[0].Error)
}

func TestProcess_EmptyAndNilFunc(t *testing.T) {
	bp := NewBatchProcessor[int, int]()

	res, err := bp.Process(context.Background(), nil, func(ctx context.Context, i int) (int, error) { return i, nil })
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalCount)

	_, err = bp.Process(context.Background(), []int{1}, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))
}

func TestProcess_ConcurrencyLimit(t *testing.T) {
	var current, peak int32

	bp := NewBatchProcessor[int, int](WithMaxConcurrency(2))
	fn := func(ctx context.Context, item int) (int, error) {
		n := atomic.AddInt32(&current, 1)
		defer atomic.AddInt32(&current, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return item * 2, nil
	}

	res, err := bp.Process(context.Background(), []int{1, 2, 3, 4, 5}, fn)
	require.NoError(t, err)
	assert.Equal(t, 5, res.SuccessCount)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestProcess_ItemTimeout(t *testing.T) {
	bp := NewBatchProcessor[int, int](WithItemTimeout(10 * time.Millisecond))
	fn := func(ctx context.Context, item int) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
			return item, nil
		}
	}

	res, err := bp.Process(context.Background(), []int{1}, fn)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailureCount)
	assert.Equal(t, ItemStatusTimeout, res.Results[0].Status)
}

func TestProcess_CancelledContext(t *testing.T) {
	bp := NewBatchProcessor[int, int](WithMaxConcurrency(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := bp.Process(ctx, []int{1, 2}, func(ctx context.Context, i int) (int, error) {
		return 0, ctx.Err()
	})
	require.NoError(t, err)
	for _, r := range res.Results {
		assert.Equal(t, ItemStatusCancelled, r.Status)
	}
}

func TestProcess_Retry(t *testing.T) {
	var calls int32
	bp := NewBatchProcessor[int, int](WithRetryPolicy(2, time.Millisecond))
	fn := func(ctx context.Context, item int) (int, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return 0, errors.New("transient")
		}
		return item, nil
	}

	res, err := bp.Process(context.Background(), []int{7}, fn)
	require.NoError(t, err)
	assert.Equal(t, ItemStatusSuccess, res.Results[0].Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestProcess_RetryableErrorsOnly(t *testing.T) {
	permanent := errors.New("permanent")
	transient := errors.New("transient")
	var calls int32
	bp := NewBatchProcessor[int, int](WithRetryPolicyFull(&RetryPolicy{
		MaxRetries:      3,
		RetryableErrors: []error{transient},
	}))

	res, err := bp.Process(context.Background(), []int{1}, func(ctx context.Context, i int) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, permanent
	})
	require.NoError(t, err)
	assert.ErrorIs(t, res.Results[0].Error, permanent)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestProcess_Backpressure(t *testing.T) {
	bp := NewBatchProcessor[int, int](WithBackpressureThreshold(2))
	_, err := bp.Process(context.Background(), []int{1, 2, 3}, func(ctx context.Context, i int) (int, error) {
		return i, nil
	})
	assert.ErrorIs(t, err, ErrBackpressure)
}

func TestProcess_CircuitBreakerOpens(t *testing.T) {
	metrics := NewInMemoryIntelligenceMetrics()
	bp := NewBatchProcessor[int, int](
		WithMaxConcurrency(1),
		WithCircuitBreaker(2, time.Hour),
		WithBatchMetrics(metrics),
		WithBatchName("tagger"),
	)
	boom := errors.New("backend down")

	res, err := bp.Process(context.Background(), []int{1, 2, 3, 4}, func(ctx context.Context, i int) (int, error) {
		return 0, boom
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.FailureCount)

	var open int
	for _, r := range res.Results {
		if errors.Is(r.Error, ErrCircuitOpen) {
			open++
		}
	}
	assert.Equal(t, 2, open)
	assert.Equal(t, []string{"CLOSED->OPEN"}, metrics.Transitions())
	require.Len(t, metrics.Batches(), 1)
	assert.Equal(t, "tagger", metrics.Batches()[0].BatchName)
	assert.Equal(t, 4, metrics.Batches()[0].FailedItems)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := newCircuitBreaker("t", 1, 10*time.Millisecond, logging.NewNopLogger(), NewNoopIntelligenceMetrics())

	cb.recordFailure()
	assert.Equal(t, cbStateOpen, cb.currentState())
	assert.False(t, cb.allow())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, cb.allow())
	assert.Equal(t, cbStateHalfOpen, cb.currentState())
	assert.False(t, cb.allow())

	cb.recordSuccess()
	assert.Equal(t, cbStateClosed, cb.currentState())
	assert.True(t, cb.allow())
}

func TestShutdown_RejectsNewBatches(t *testing.T) {
	bp := NewBatchProcessor[int, int]()
	require.NoError(t, bp.Shutdown(context.Background()))

	_, err := bp.Process(context.Background(), []int{1}, func(ctx context.Context, i int) (int, error) {
		return i, nil
	})
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestCalculateBackoff_Capped(t *testing.T) {
	p := &RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 200 * time.Millisecond}
	for attempt := 0; attempt < 6; attempt++ {
		d := calculateBackoff(attempt, p)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
	}
	assert.Equal(t, time.Duration(0), calculateBackoff(3, nil))
}

func TestItemStatus_String(t *testing.T) {
	assert.Equal(t, "SUCCESS", ItemStatusSuccess.String())
	assert.Equal(t, "TIMEOUT", ItemStatusTimeout.String())
	assert.Equal(t, "UNKNOWN(9)", ItemStatus(9).String())
}
