package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// RedisLocker is a Locker backed by redislock
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker wraps a connected redis client.
// ttl bounds how long a crashed holder can block others.
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:  redislock.New(rdb),
		ttl:     ttl,
		backoff: 100 * time.Millisecond,
	}
}

// Dial connects to redis and verifies the connection
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Obtain retries until the lock is granted or ctx expires
func (r *RedisLocker) Obtain(ctx context.Context, key string) (Lease, error) {
	l, err := r.client.Obtain(ctx, key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.backoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, &ledger.StorageTimeoutError{Op: "obtain lock", Err: err}
	}
	if err != nil {
		return nil, waitError(err)
	}
	return &redisLease{lock: l}, nil
}

type redisLease struct {
	lock *redislock.Lock
}

func (l *redisLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return ErrNotHeld
	}
	return err
}
