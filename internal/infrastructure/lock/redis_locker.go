// Package lock provides the distributed implementation of posting.Locker.
package lock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"stockledger/internal/domain/posting"
	"stockledger/pkg/logger"
)

const (
	DefaultKeyPrefix = "stockledger:lock:"
	DefaultTTL       = 30 * time.Second
	defaultRetry     = 25 * time.Millisecond
	releaseTimeout   = 2 * time.Second
)

// RedisLocker serializes postings across instances with one Redis lock per
// key. The TTL must outlast the longest posting transaction.
type RedisLocker struct {
	client *redislock.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

var _ posting.Locker = (*RedisLocker)(nil)

// Option configures a RedisLocker.
type Option func(*RedisLocker)

func WithTTL(ttl time.Duration) Option {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(l *RedisLocker) { l.prefix = prefix }
}

// WithRetryInterval sets the pause between attempts on a busy key.
func WithRetryInterval(d time.Duration) Option {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// NewRedisLocker creates a locker on top of a go-redis client.
func NewRedisLocker(rdb redis.UniversalClient, opts ...Option) *RedisLocker {
	l := &RedisLocker{
		client: redislock.New(rdb),
		prefix: DefaultKeyPrefix,
		ttl:    DefaultTTL,
		retry:  defaultRetry,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock obtains every key in sorted order, retrying busy keys until ctx is
// done. On failure the keys already held are released.
func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = slices.Compact(slices.Sorted(slices.Values(keys)))

	held := make([]*redislock.Lock, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(ctx, held[i])
		}
	}

	opts := &redislock.Options{RetryStrategy: redislock.LinearBackoff(l.retry)}
	for _, k := range keys {
		lk, err := l.client.Obtain(ctx, l.prefix+k, l.ttl, opts)
		if err != nil {
			release()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, fmt.Errorf("lock %s: %w", k, err)
			}
			return nil, fmt.Errorf("obtain redis lock %s: %w", k, err)
		}
		held = append(held, lk)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// release uses its own context: the caller's may be cancelled by now, and a
// lock left behind would block the key until the TTL runs out.
func (l *RedisLocker) release(ctx context.Context, lk *redislock.Lock) {
	rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := lk.Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		logger.Warn(ctx, "redis lock release failed", "key", lk.Key(), "error", err)
	}
}
