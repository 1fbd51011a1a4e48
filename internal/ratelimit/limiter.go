// Package ratelimit counts failed withdrawal-code attempts per account in
// a fixed window. Limiters report errors but callers treat them as open.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

type Limiter interface {
	// Blocked reports whether the account has used up its failure budget.
	Blocked(ctx context.Context, accountID uuid.UUID) (bool, error)
	// RecordFailure counts one failed attempt; the first failure opens the window.
	RecordFailure(ctx context.Context, accountID uuid.UUID) error
}

func key(accountID uuid.UUID) string {
	return "withdrawal:code_failures:" + accountID.String()
}

type RedisLimiter struct {
	client      *redis.Client
	maxFailures int
	window      time.Duration
}

func NewRedisLimiter(client *redis.Client, maxFailures int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, maxFailures: maxFailures, window: window}
}

func (l *RedisLimiter) Blocked(ctx context.Context, accountID uuid.UUID) (bool, error) {
	n, err := l.client.Get(ctx, key(accountID)).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("RedisLimiter.Blocked: %w", err)
	}
	return n >= l.maxFailures, nil
}

func (l *RedisLimiter) RecordFailure(ctx context.Context, accountID uuid.UUID) error {
	k := key(accountID)
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("RedisLimiter.RecordFailure: %w", err)
	}
	if err := incr.Err(); err != nil {
		return fmt.Errorf("RedisLimiter.RecordFailure: incr: %w", err)
	}
	return nil
}

// MemoryLimiter keeps counters in process. Each instance counts on its own,
// so it suits single-instance and test deployments.
type MemoryLimiter struct {
	cache       *gocache.Cache
	maxFailures int
	window      time.Duration
}

func NewMemoryLimiter(maxFailures int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		cache:       gocache.New(window, 2*window),
		maxFailures: maxFailures,
		window:      window,
	}
}

func (l *MemoryLimiter) Blocked(_ context.Context, accountID uuid.UUID) (bool, error) {
	v, found := l.cache.Get(key(accountID))
	if !found {
		return false, nil
	}
	n, ok := v.(int)
	if !ok {
		return false, fmt.Errorf("MemoryLimiter.Blocked: unexpected counter type %T", v)
	}
	return n >= l.maxFailures, nil
}

func (l *MemoryLimiter) RecordFailure(_ context.Context, accountID uuid.UUID) error {
	k := key(accountID)
	if err := l.cache.Add(k, 1, l.window); err == nil {
		return nil
	}
	if _, err := l.cache.IncrementInt(k, 1); err != nil {
		// The entry expired between Add and IncrementInt.
		l.cache.Set(k, 1, l.window)
	}
	return nil
}
