package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeConflict, "lock is held by another owner")
	ErrLockNotHeld     = errors.New(errors.ErrCodeConflict, "lock not held by this owner")
)

const lockPrefix = "sigparse:lock:"

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// Locker hands out single-owner locks with a TTL. It satisfies
// parsing.Locker.
type Locker struct {
	client *Client
	logger logging.Logger
}

// NewLocker wraps client.
func NewLocker(client *Client, log logging.Logger) *Locker {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Locker{client: client, logger: log}
}

// Acquire takes the lock named name without waiting. The returned release
// function deletes the lock only if this owner still holds it.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	key := lockPrefix + name
	owner := uuid.NewString()

	ok, err := l.client.GetUnderlyingClient().SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to set lock")
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	l.logger.Debug("lock acquired", logging.String("lock", name))

	release := func(ctx context.Context) error {
		res, err := unlockScript.Run(ctx, l.client.GetUnderlyingClient(), []string{key}, owner).Int64()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock")
		}
		if res == 0 {
			return ErrLockNotHeld
		}
		return nil
	}
	return release, nil
}
