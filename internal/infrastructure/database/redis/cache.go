package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

const defaultPrefix = "sigparse:result:"

// ResultCache stores parse results keyed by a digest of the normalized
// instruction text. It satisfies parsing.Cache.
type ResultCache struct {
	client     *Client
	logger     logging.Logger
	prefix     string
	defaultTTL time.Duration
	group      singleflight.Group
}

// CacheOption configures a ResultCache.
type CacheOption func(*ResultCache)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) CacheOption {
	return func(c *ResultCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithDefaultTTL is used when Set is called with ttl <= 0.
func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *ResultCache) { c.defaultTTL = ttl }
}

// NewResultCache wraps client.
func NewResultCache(client *Client, log logging.Logger, opts ...CacheOption) *ResultCache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &ResultCache{
		client:     client,
		logger:     log,
		prefix:     defaultPrefix,
		defaultTTL: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the Redis key for text.
func (c *ResultCache) Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *ResultCache) jitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	// +/- 10%
	jitter := float64(ttl) * 0.1 * (rand.Float64()*2 - 1)
	return ttl + time.Duration(jitter)
}

// Get returns the cached results for text. Concurrent lookups of the same
// text share one round trip.
func (c *ResultCache) Get(ctx context.Context, text string) ([]*instruction.StructuredInstruction, bool, error) {
	key := c.Key(text)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		data, err := c.client.GetUnderlyingClient().Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to get from cache")
		}
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}

	var out []*instruction.StructuredInstruction
	if err := json.Unmarshal(v.([]byte), &out); err != nil {
		c.logger.Warn("dropping undecodable cache entry", logging.String("key", key), logging.Err(err))
		return nil, false, nil
	}
	return out, true, nil
}

// Set stores results under text.
func (c *ResultCache) Set(ctx context.Context, text string, results []*instruction.StructuredInstruction, ttl time.Duration) error {
	data, err := json.Marshal(results)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode cache entry")
	}
	if err := c.client.GetUnderlyingClient().Set(ctx, c.Key(text), data, c.jitterTTL(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set cache")
	}
	return nil
}

// Purge deletes every cached result and returns the number of keys
// removed. Used after the normalizer assets change.
func (c *ResultCache) Purge(ctx context.Context) (int64, error) {
	var (
		deleted int64
		cursor  uint64
	)
	rdb := c.client.GetUnderlyingClient()
	for {
		keys, next, err := rdb.Scan(ctx, cursor, c.prefix+"*", 100).Result()
		if err != nil {
			return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "failed to scan cache")
		}
		if len(keys) > 0 {
			if err := rdb.Del(ctx, keys...).Err(); err != nil {
				return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete cache keys")
			}
			deleted += int64(len(keys))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.logger.Info("result cache purged", logging.Int64("keys", deleted))
	return deleted, nil
}
