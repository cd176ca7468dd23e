package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func runHealth(t *testing.T, srv *Server) (int, healthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding health body: %v", err)
	}
	return rec.Code, resp
}

func TestHandleHealth_NoProbes(t *testing.T) {
	srv := newTestServer(t)
	srv.Config.Build.Version = "1.2.3"

	status, resp := runHealth(t, srv)
	if status != http.StatusOK || resp.Status != "healthy" || resp.Version != "1.2.3" {
		t.Errorf("got %d %+v", status, resp)
	}
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	srv := newTestServer(t)
	srv.HealthProbes = []HealthProbe{
		NewPingProbe("database", func(context.Context) error { return nil }),
		NewPingProbe("redis", func(context.Context) error { return nil }),
	}

	status, resp := runHealth(t, srv)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	for _, name := range []string{"database", "redis"} {
		if resp.Components[name].Status != "healthy" {
			t.Errorf("%s = %+v", name, resp.Components[name])
		}
	}
}

func TestHandleHealth_Failures(t *testing.T) {
	srv := newTestServer(t)
	srv.HealthProbes = []HealthProbe{
		NewPingProbe("database", func(context.Context) error { return errors.New("connection refused") }),
		NewPingProbe("panicky", func(context.Context) error { panic("nil pool") }),
		NewPingProbe("ok", func(context.Context) error { return nil }),
	}

	status, resp := runHealth(t, srv)
	if status != http.StatusServiceUnavailable || resp.Status != "unhealthy" {
		t.Fatalf("got %d %q", status, resp.Status)
	}
	if resp.Components["database"].Message != "connection refused" {
		t.Errorf("database = %+v", resp.Components["database"])
	}
	if resp.Components["panicky"].Status != "unhealthy" {
		t.Errorf("panicky = %+v", resp.Components["panicky"])
	}
	if resp.Components["ok"].Status != "healthy" {
		t.Errorf("ok = %+v", resp.Components["ok"])
	}
}

func TestHandleHealth_Timeout(t *testing.T) {
	srv := newTestServer(t)
	srv.HealthProbes = []HealthProbe{
		NewPingProbe("slow", func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				time.Sleep(50 * time.Millisecond)
				return ctx.Err()
			case <-time.After(10 * time.Second):
				return nil
			}
		}),
	}

	start := time.Now()
	status, resp := runHealth(t, srv)
	if elapsed := time.Since(start); elapsed > healthCheckTimeout+time.Second {
		t.Errorf("health check took %v", elapsed)
	}
	if status != http.StatusServiceUnavailable || resp.Components["slow"].Status != "unhealthy" {
		t.Errorf("got %d %+v", status, resp.Components["slow"])
	}
}
