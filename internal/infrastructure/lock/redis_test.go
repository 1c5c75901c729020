package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// These tests need a live redis; set RECONCILE_TEST_REDIS_ADDR to run them.
func redisLocker(t *testing.T) *RedisLocker {
	t.Helper()
	addr := os.Getenv("RECONCILE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RECONCILE_TEST_REDIS_ADDR not set")
	}

	rdb, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisLocker(rdb, 5*time.Second)
}

func TestRedisLocker_Exclusive(t *testing.T) {
	locker := redisLocker(t)
	ctx := context.Background()
	key := "reconcile:test:" + t.Name()

	lease, err := locker.Obtain(ctx, key)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker.Obtain(waitCtx, key)
	assert.ErrorIs(t, err, ledger.ErrStorageTimeout)

	require.NoError(t, lease.Release(ctx))
	assert.ErrorIs(t, lease.Release(ctx), ErrNotHeld)

	again, err := locker.Obtain(ctx, key)
	require.NoError(t, err)
	assert.NoError(t, again.Release(ctx))
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := Dial(ctx, "127.0.0.1:1")
	assert.Error(t, err)
}
