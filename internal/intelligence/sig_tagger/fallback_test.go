package sig_tagger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/internal/intelligence/common"
	"github.com/turtacn/sigparse/pkg/errors"
)

func failing(err error) Extractor {
	return ExtractorFunc(func(ctx context.Context, normalized string) ([]instruction.Entity, error) {
		return nil, err
	})
}

func TestFallbackExtractor_UsesSecondaryOnError(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f, err := NewFallbackExtractor(
		failing(errors.New(errors.ErrCodeModelUnavailable, "down")),
		NewRuleExtractor(nil),
		logging.NewLoggerFromCore(core),
	)
	require.NoError(t, err)

	entities, err := f.Extract(context.Background(), "1 bd")
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, 1, logs.FilterMessage("primary extractor failed, using fallback").Len())
}

func TestFallbackExtractor_PrimaryWins(t *testing.T) {
	var secondary int32
	f, err := NewFallbackExtractor(
		NewRuleExtractor(nil),
		ExtractorFunc(func(ctx context.Context, normalized string) ([]instruction.Entity, error) {
			atomic.AddInt32(&secondary, 1)
			return nil, nil
		}),
		nil,
	)
	require.NoError(t, err)

	_, err = f.Extract(context.Background(), "1 bd")
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&secondary))
}

func TestFallbackExtractor_CancelledContextIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f, err := NewFallbackExtractor(failing(context.Canceled), NewRuleExtractor(nil), nil)
	require.NoError(t, err)

	_, err = f.Extract(ctx, "1 bd")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFallbackExtractor_RequiresBoth(t *testing.T) {
	_, err := NewFallbackExtractor(nil, NewRuleExtractor(nil), nil)
	assert.Error(t, err)
}

func TestWithRetry(t *testing.T) {
	var calls int32
	ext := WithRetry(ExtractorFunc(func(ctx context.Context, normalized string) ([]instruction.Entity, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, common.ErrServingUnavailable
		}
		return []instruction.Entity{instruction.NewEntity(instruction.LabelDosage, "1")}, nil
	}), 3, time.Millisecond)

	entities, err := ext.Extract(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, entities, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWithRetry_PermanentErrorIsReturned(t *testing.T) {
	var calls int32
	permanent := errors.New(errors.ErrCodeModelResponseBad, "bad")
	ext := WithRetry(ExtractorFunc(func(ctx context.Context, normalized string) ([]instruction.Entity, error) {
		atomic.AddInt32(&calls, 1)
		return nil, permanent
	}), 3, time.Millisecond)

	_, err := ext.Extract(context.Background(), "1")
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBuild_Rule(t *testing.T) {
	ext, closeFn, err := Build(context.Background(), config.TaggerConfig{Backend: "rule"}, nil, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &RuleExtractor{}, ext)
}

func TestBuild_UnknownBackend(t *testing.T) {
	_, _, err := Build(context.Background(), config.TaggerConfig{Backend: "onnx"}, nil, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBackendUnsupported))
}

func TestBuild_HTTPWithFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ext, closeFn, err := Build(context.Background(), config.TaggerConfig{
		Backend:  "http",
		Endpoint: srv.URL,
		Timeout:  time.Second,
		Fallback: true,
	}, nil, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &FallbackExtractor{}, ext)

	entities, err := ext.Extract(context.Background(), "1 bd")
	require.NoError(t, err)
	assert.Len(t, entities, 2)
}
