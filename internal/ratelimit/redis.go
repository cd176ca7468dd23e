package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"formguard/internal/core"
)

// RedisStore counts requests in fixed windows aligned to the window size.
// Each window is one key that expires shortly after the window closes.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisStore wraps an existing client. Keys are namespaced under prefix.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "formguard:rl"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

// NewRedisClient parses a redis:// URL and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 1

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// IncrementAndCheck increments the counter for the current window and sets
// its expiry in one MULTI/EXEC round trip.
func (s *RedisStore) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (core.RateLimitResult, error) {
	start, resetAt := windowBounds(s.now(), window)
	windowKey := fmt.Sprintf("%s:%s:%d", s.prefix, key, start.Unix())

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, windowKey)
		pipe.ExpireNX(ctx, windowKey, window+time.Second)
		return nil
	})
	if err != nil {
		return core.RateLimitResult{}, fmt.Errorf("rate limit increment: %w", err)
	}

	return resultFor(int(incr.Val()), limit, resetAt), nil
}

// windowBounds returns the start and end of the fixed window containing now.
func windowBounds(now time.Time, window time.Duration) (time.Time, time.Time) {
	start := now.Truncate(window)
	return start, start.Add(window)
}

func resultFor(count, limit int, resetAt time.Time) core.RateLimitResult {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return core.RateLimitResult{Allowed: count <= limit, Remaining: remaining, ResetAt: resetAt}
}

var _ core.RateLimitStore = (*RedisStore)(nil)
