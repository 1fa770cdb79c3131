package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/sigparse/pkg/errors"
)

// RateLimiter decides whether a request for key may proceed.
type RateLimiter interface {
	Allow(key string) (bool, RateLimitInfo)
}

// RateLimitInfo is the limiter state reported in response headers.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	// KeyFunc extracts the limiter key. Defaults to the client IP.
	KeyFunc   func(c *gin.Context) string
	SkipPaths []string
}

// DefaultRateLimitConfig keys on client IP and skips probes.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		KeyFunc:   func(c *gin.Context) string { return c.ClientIP() },
		SkipPaths: []string{"/healthz", "/readyz", "/metrics"},
	}
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// TokenBucketLimiter is an in-memory per-key token bucket.
type TokenBucketLimiter struct {
	rate            float64
	burst           int
	mu              sync.RWMutex
	buckets         map[string]*tokenBucket
	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
	now             func() time.Time
}

// NewTokenBucketLimiter creates a limiter refilling rate tokens per second up
// to burst. Idle buckets are evicted every cleanupInterval when positive.
func NewTokenBucketLimiter(rate float64, burst int, cleanupInterval time.Duration) *TokenBucketLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &TokenBucketLimiter{
		rate:            rate,
		burst:           burst,
		buckets:         make(map[string]*tokenBucket),
		cleanupInterval: cleanupInterval,
		stop:            make(chan struct{}),
		now:             time.Now,
	}
	if cleanupInterval > 0 {
		go l.cleanupLoop()
	}
	return l
}

func (l *TokenBucketLimiter) bucket(key string, now time.Time) *tokenBucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[key]; !ok {
		b = &tokenBucket{tokens: float64(l.burst), lastRefill: now}
		l.buckets[key] = b
	}
	return b
}

// Allow takes one token from key's bucket.
func (l *TokenBucketLimiter) Allow(key string) (bool, RateLimitInfo) {
	now := l.now()
	b := l.bucket(key, now)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += now.Sub(b.lastRefill).Seconds() * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastRefill = now

	info := RateLimitInfo{Limit: l.burst}
	if l.rate > 0 {
		info.ResetAt = now.Add(time.Duration(float64(time.Second) / l.rate))
	}
	if b.tokens < 1 {
		return false, info
	}
	b.tokens--
	info.Remaining = int(b.tokens)
	return true, info
}

func (l *TokenBucketLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

// cleanup drops buckets idle for a full interval and refilled to burst.
func (l *TokenBucketLimiter) cleanup() {
	threshold := l.now().Add(-l.cleanupInterval)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		b.mu.Lock()
		if b.lastRefill.Before(threshold) {
			delete(l.buckets, key)
		}
		b.mu.Unlock()
	}
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (l *TokenBucketLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// BucketCount returns the number of tracked keys.
func (l *TokenBucketLimiter) BucketCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// RateLimit rejects requests over the limit with 429 and Retry-After.
func RateLimit(limiter RateLimiter, config RateLimitConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}
	keyFunc := config.KeyFunc
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		allowed, info := limiter.Allow(keyFunc(c))
		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		if !info.ResetAt.IsZero() {
			c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
		}

		if !allowed {
			retryAfter := int(time.Until(info.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    errors.ErrCodeRateLimited,
				"message": "rate limit exceeded, please retry later",
			})
			return
		}
		c.Next()
	}
}
