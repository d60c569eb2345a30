package keylock

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisLocker holds keys in Redis so the single-flight invariant survives
// horizontal scaling. No retry strategy: a held key reports not-obtained
// immediately, matching the skip semantics of MemoryLocker.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedisLocker creates a Redis-backed keyed lock. ttl bounds how long a
// crashed holder can keep a key; it should comfortably exceed the longest
// expected sync pass.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(rdb),
		ttl:    ttl,
	}
}

// Acquire obtains the key or reports it as already held.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	release := func() {
		// Release with a fresh context: the caller's context may already
		// be cancelled on error paths, and the key must not stay held.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lock.Release(ctx)
	}
	return release, true, nil
}
