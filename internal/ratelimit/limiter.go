// Package ratelimit bounds request rates on public endpoints with a fixed window counter in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter reports whether one more request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Result describes the window after counting a request.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the window resets; zero when allowed.
	RetryAfter time.Duration
}

// RedisLimiter counts requests per key in windows of fixed length.
// Counting is one pipelined INCR plus EXPIRE NX, so concurrent instances share the budget.
type RedisLimiter struct {
	client    redis.Cmdable
	keyPrefix string
	limit     int
	window    time.Duration
	now       func() time.Time
}

// NewRedisLimiter returns a limiter allowing limit requests per window for each key.
// keyPrefix defaults to "rate_limit:".
func NewRedisLimiter(client redis.Cmdable, keyPrefix string, limit int, window time.Duration) *RedisLimiter {
	if keyPrefix == "" {
		keyPrefix = "rate_limit:"
	}
	return &RedisLimiter{client: client, keyPrefix: keyPrefix, limit: limit, window: window, now: time.Now}
}

// NewClient parses a redis:// URL and returns a client.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (l *RedisLimiter) windowKey(key string, now time.Time) (string, time.Duration) {
	slot := now.UnixNano() / int64(l.window)
	reset := time.Unix(0, (slot+1)*int64(l.window)).Sub(now)
	return l.keyPrefix + key + ":" + strconv.FormatInt(slot, 10), reset
}

// Allow counts one request for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	k, reset := l.windowKey(key, l.now())
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	count := int(incr.Val())
	res := Result{Allowed: count <= l.limit, Limit: l.limit, Remaining: l.limit - count}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = reset
	}
	return res, nil
}
