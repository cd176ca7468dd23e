package core

import (
	"context"
	"time"

	"formguard/internal/types"
)

// Authenticator decouples the HTTP layer from the credential stores.
type Authenticator interface {
	// ResolveToken returns the Actor behind a bearer token. "fg_" tokens are
	// API keys; anything else is treated as a Stack Auth session token.
	//
	// Errors carry auth_token_invalid or auth_token_expired; upstream failures
	// pass through with their own codes.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// RateLimitStore abstracts the backing store for rate limiting.
// Single-process deployments use the in-memory store; Lambda uses Redis.
type RateLimitStore interface {
	// IncrementAndCheck atomically counts one request against key and reports
	// whether it is within limit for the current window.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult contains the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// MetricsCollector records API telemetry. Route is the chi route pattern,
// never the raw path, so label cardinality stays bounded.
type MetricsCollector interface {
	RecordRequest(method, route, status string, duration time.Duration)
}
