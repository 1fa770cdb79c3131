package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/x", func(c *gin.Context) { seen = GetRequestID(c) })

	w := serve(r, http.MethodGet, "/x", map[string]string{HeaderRequestID: "abc"})
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", w.Header().Get(HeaderRequestID))

	w = serve(r, http.MethodGet, "/x", nil)
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "abc", seen)
	assert.Equal(t, seen, w.Header().Get(HeaderRequestID))
}

func TestRequestLogging_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(RequestID(), RequestLogging(logging.NewLoggerFromCore(core), LoggingConfig{
		SkipPaths:     []string{"/healthz"},
		SlowThreshold: 20 * time.Millisecond,
	}))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/slow", func(c *gin.Context) {
		time.Sleep(30 * time.Millisecond)
		c.Status(http.StatusOK)
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, p := range []string{"/ok?q=1", "/bad", "/boom", "/slow", "/healthz"} {
		serve(r, http.MethodGet, p, nil)
	}

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "/ok?q=1", entries[0].ContextMap()["path"])
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[3].Level)
	assert.Contains(t, entries[3].Message, "slow")
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	r := gin.New()
	r.Use(Recovery(logging.NewLoggerFromCore(core)))
	r.GET("/panic", func(*gin.Context) { panic("kaboom") })

	w := serve(r, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "COMMON_001")
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestMaxBodySize(t *testing.T) {
	r := gin.New()
	r.Use(MaxBodySize(8))
	r.POST("/x", func(c *gin.Context) {
		var v map[string]string
		if err := c.ShouldBindJSON(&v); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"text":"far too long for the cap"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTokenBucketLimiter_Allow(t *testing.T) {
	l := NewTokenBucketLimiter(1, 2, 0)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, info := l.Allow("a")
	assert.True(t, ok)
	assert.Equal(t, 2, info.Limit)
	assert.Equal(t, 1, info.Remaining)

	ok, _ = l.Allow("a")
	assert.True(t, ok)
	ok, info = l.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, 0, info.Remaining)

	ok, _ = l.Allow("b")
	assert.True(t, ok, "keys have separate buckets")

	now = now.Add(time.Second)
	ok, _ = l.Allow("a")
	assert.True(t, ok, "one token refilled after a second")
	assert.Equal(t, 2, l.BucketCount())
}

func TestTokenBucketLimiter_Cleanup(t *testing.T) {
	l := NewTokenBucketLimiter(1, 1, 0)
	l.cleanupInterval = time.Minute
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(2 * time.Minute)
	l.Allow("b")
	l.cleanup()
	assert.Equal(t, 1, l.BucketCount())
	l.Stop()
	l.Stop()
}

func TestRateLimit_Middleware(t *testing.T) {
	l := NewTokenBucketLimiter(0.001, 1, 0)
	r := gin.New()
	r.Use(RateLimit(l, RateLimitConfig{SkipPaths: []string{"/healthz"}}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = serve(r, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "COMMON_007")

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/healthz", nil).Code)
	}
}
