// Package ratelimit implements a fixed-window request limiter backed by
// Redis, shared by every API replica.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result describes the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter counts hits per key in fixed windows.
type Limiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// New returns a limiter allowing limit hits per key per window.
func New(client *redis.Client, prefix string, limit int64, window time.Duration) *Limiter {
	return &Limiter{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow records a hit for key. The first hit of a window starts its expiry.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	k := l.key(key)

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return Result{}, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	res := Result{Allowed: count <= l.limit, Limit: l.limit, Remaining: max(l.limit-count, 0)}
	if res.Allowed {
		return res, nil
	}

	ttl, err := l.client.TTL(ctx, k).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit ttl: %w", err)
	}
	if ttl < 0 {
		// The key lost its expiry; without one it would block forever.
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return Result{}, fmt.Errorf("rate limit expire: %w", err)
		}
		ttl = l.window
	}
	res.RetryAfter = ttl
	return res, nil
}

func (l *Limiter) key(key string) string {
	return "ratelimit:" + l.prefix + ":" + key
}
