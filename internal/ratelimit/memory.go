// Package ratelimit provides core.RateLimitStore implementations: a token
// bucket per key for single-process deployments, and a Redis fixed window
// shared across Lambda instances.
package ratelimit

import (
	"context"
	"math"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"formguard/internal/core"
)

// MemoryStore keeps one token bucket per key. Idle buckets expire from the
// cache after twice the window, by which time they would be full anyway.
type MemoryStore struct {
	buckets *gocache.Cache
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: gocache.New(10*time.Minute, 5*time.Minute),
		now:     time.Now,
	}
}

// IncrementAndCheck spends one token from key's bucket. The bucket holds
// limit tokens and refills at limit per window.
func (m *MemoryStore) IncrementAndCheck(_ context.Context, key string, limit int, window time.Duration) (core.RateLimitResult, error) {
	if limit <= 0 || window <= 0 {
		return core.RateLimitResult{Allowed: false, ResetAt: m.now().Add(window)}, nil
	}

	lim := m.bucket(key, limit, window)
	now := m.now()
	allowed := lim.AllowN(now, 1)

	tokens := lim.TokensAt(now)
	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}

	perToken := window / time.Duration(limit)
	missing := float64(limit) - tokens
	resetAt := now.Add(time.Duration(missing * float64(perToken)))

	return core.RateLimitResult{Allowed: allowed, Remaining: remaining, ResetAt: resetAt}, nil
}

// bucket returns the limiter for key, creating it on first use. Buckets are
// keyed by limit and window too so a config change starts a fresh bucket.
func (m *MemoryStore) bucket(key string, limit int, window time.Duration) *rate.Limiter {
	cacheKey := key + "|" + window.String() + "|" + strconv.Itoa(limit)
	ttl := 2 * window

	if v, ok := m.buckets.Get(cacheKey); ok {
		lim := v.(*rate.Limiter)
		m.buckets.Set(cacheKey, lim, ttl)
		return lim
	}

	lim := rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
	if err := m.buckets.Add(cacheKey, lim, ttl); err != nil {
		// Lost the race to another request; use the winner's bucket.
		if v, ok := m.buckets.Get(cacheKey); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

var _ core.RateLimitStore = (*MemoryStore)(nil)
