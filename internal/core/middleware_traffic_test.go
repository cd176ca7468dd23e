package core

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"formguard/internal/types"
)

func withActor(req *http.Request, actor types.Actor) *http.Request {
	return req.WithContext(types.WithActor(req.Context(), actor))
}

func TestRateLimit_KeysByAccount(t *testing.T) {
	srv := newTestServer(t)
	reset := time.Now().Add(30 * time.Second)
	store := &MockRateLimitStore{Result: RateLimitResult{Allowed: true, Remaining: 41, ResetAt: reset}}
	srv.RateLimitStore = store

	req := withActor(httptest.NewRequest(http.MethodGet, "/v1/forms", nil),
		types.Actor{ID: "key_1", Type: types.ActorTypeAPIKey, AccountID: "acct_1"})
	rec := httptest.NewRecorder()
	srv.RateLimit(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(store.Calls) != 1 {
		t.Fatalf("store calls = %d, want 1", len(store.Calls))
	}
	call := store.Calls[0]
	if call.Key != "api:acct_1" || call.Limit != 60 || call.Window != time.Minute {
		t.Errorf("call = %+v", call)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "60" || rec.Header().Get("X-RateLimit-Remaining") != "41" {
		t.Errorf("headers = %v", rec.Header())
	}
	if rec.Header().Get("X-RateLimit-Reset") != strconv.FormatInt(reset.Unix(), 10) {
		t.Errorf("X-RateLimit-Reset = %q", rec.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_FallsBackToActorID(t *testing.T) {
	srv := newTestServer(t)
	store := &MockRateLimitStore{Result: RateLimitResult{Allowed: true}}
	srv.RateLimitStore = store

	req := withActor(httptest.NewRequest(http.MethodGet, "/v1/me", nil), types.Actor{ID: "user_9", Type: types.ActorTypeUser})
	srv.RateLimit(http.HandlerFunc(okHandler)).ServeHTTP(httptest.NewRecorder(), req)

	if store.Calls[0].Key != "api:user_9" {
		t.Errorf("key = %q, want api:user_9", store.Calls[0].Key)
	}
}

func TestRateLimit_Exceeded(t *testing.T) {
	srv := newTestServer(t)
	srv.RateLimitStore = &MockRateLimitStore{Result: RateLimitResult{Allowed: false, ResetAt: time.Now().Add(20 * time.Second)}}

	req := withActor(httptest.NewRequest(http.MethodGet, "/v1/forms", nil), types.Actor{ID: "k", AccountID: "a"})
	rec := httptest.NewRecorder()
	srv.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler must not run")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := decodeErrorBody(t, rec).Code; got != string(types.ErrCodeRateLimit) {
		t.Errorf("code = %q", got)
	}
	retry, _ := strconv.Atoi(rec.Header().Get("Retry-After"))
	if retry < 1 || retry > 20 {
		t.Errorf("Retry-After = %d, want 1..20", retry)
	}
}

func TestRateLimit_FailsOpenOnStoreError(t *testing.T) {
	srv := newTestServer(t)
	srv.RateLimitStore = &MockRateLimitStore{Err: errors.New("redis: connection refused")}

	req := withActor(httptest.NewRequest(http.MethodGet, "/v1/forms", nil), types.Actor{ID: "k", AccountID: "a"})
	rec := httptest.NewRecorder()
	srv.RateLimit(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("no rate limit headers expected when the store failed")
	}
}

func TestRateLimit_NoActorPassesThrough(t *testing.T) {
	srv := newTestServer(t)
	store := &MockRateLimitStore{}
	srv.RateLimitStore = store

	rec := httptest.NewRecorder()
	srv.RateLimit(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/billing/plans", nil))

	if rec.Code != http.StatusOK || len(store.Calls) != 0 {
		t.Errorf("status = %d, calls = %d", rec.Code, len(store.Calls))
	}
}

func TestIPRateLimit_UsesForwardedClient(t *testing.T) {
	srv := newTestServer(t)
	store := &MockRateLimitStore{Result: RateLimitResult{Allowed: true, Remaining: 4}}
	srv.RateLimitStore = store

	req := httptest.NewRequest(http.MethodPost, "/f/abc", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	srv.IPRateLimit(http.HandlerFunc(okHandler)).ServeHTTP(httptest.NewRecorder(), req)

	if store.Calls[0].Key != "ip:203.0.113.7" || store.Calls[0].Limit != 5 {
		t.Errorf("call = %+v", store.Calls[0])
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name, xff, remote, want string
	}{
		{"forwarded", "198.51.100.2", "10.0.0.1:5555", "198.51.100.2"},
		{"forwarded chain", " 198.51.100.2 , 10.1.1.1", "10.0.0.1:5555", "198.51.100.2"},
		{"remote with port", "", "192.0.2.1:1234", "192.0.2.1"},
		{"remote without port", "", "192.0.2.1", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
