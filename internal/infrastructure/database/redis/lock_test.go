package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/sigparse/internal/config"
	pkgerrors "github.com/turtacn/sigparse/pkg/errors"
)

func newMiniLocker(t *testing.T) (*miniredis.Miniredis, *Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewLocker(client, nil)
}

func TestLocker_AcquireRelease(t *testing.T) {
	mr, l := newMiniLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "sigs/in.txt", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockPrefix+"sigs/in.txt"))

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(lockPrefix+"sigs/in.txt"))
}

func TestLocker_Contention(t *testing.T) {
	_, l := newMiniLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "job", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeConflict))

	require.NoError(t, release(ctx))
	release, err = l.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestLocker_ReleaseAfterExpiry(t *testing.T) {
	mr, l := newMiniLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "job", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	other, err := l.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, release(ctx), ErrLockNotHeld)
	assert.True(t, mr.Exists(lockPrefix+"job"))
	require.NoError(t, other(ctx))
}
