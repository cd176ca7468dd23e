package core

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"formguard/internal/types"
)

const (
	rateLimitWindow        = time.Minute
	defaultAPIPerMinute    = 120
	defaultSubmitPerMinute = 20
)

// RateLimit enforces the per-minute API budget for authenticated requests.
// The key is the account id, falling back to the actor id for sessions
// without an account yet. Requests without an Actor pass through.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok || s.RateLimitStore == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := actor.AccountID
		if key == "" {
			key = actor.ID
		}
		s.enforceLimit(w, r, next, "api:"+key, s.apiPerMinute())
	})
}

// IPRateLimit limits unauthenticated traffic per client IP. Hosted
// submission routes use it with the submit budget.
func (s *Server) IPRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.RateLimitStore == nil {
			next.ServeHTTP(w, r)
			return
		}
		s.enforceLimit(w, r, next, "ip:"+ClientIP(r), s.submitPerMinute())
	})
}

// enforceLimit fails open on store errors so a Redis outage does not block
// all API traffic.
func (s *Server) enforceLimit(w http.ResponseWriter, r *http.Request, next http.Handler, key string, limit int) {
	result, err := s.RateLimitStore.IncrementAndCheck(r.Context(), key, limit, rateLimitWindow)
	if err != nil {
		s.Logger.ErrorContext(r.Context(), "rate limit store error",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		next.ServeHTTP(w, r)
		return
	}

	setRateLimitHeaders(w, limit, result)

	if !result.Allowed {
		s.Logger.WarnContext(r.Context(), "rate limit exceeded",
			slog.String("key", key),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		retryAfter := int(time.Until(result.ResetAt).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

		Error(w, r, types.NewAppError(types.ErrCodeRateLimit,
			"Rate limit exceeded. Please retry after the reset time.", nil))
		return
	}

	next.ServeHTTP(w, r)
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, result RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func (s *Server) apiPerMinute() int {
	if s.Config != nil && s.Config.RateLimit.APIPerMinute > 0 {
		return s.Config.RateLimit.APIPerMinute
	}
	return defaultAPIPerMinute
}

func (s *Server) submitPerMinute() int {
	if s.Config != nil && s.Config.RateLimit.SubmitPerMinute > 0 {
		return s.Config.RateLimit.SubmitPerMinute
	}
	return defaultSubmitPerMinute
}
