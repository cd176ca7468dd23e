package config

import "testing"

func TestNewBuildInfoDefaults(t *testing.T) {
	info := NewBuildInfo()

	if info.Version != "dev" || info.Commit != "none" || info.BuildTime != "unknown" {
		t.Errorf("NewBuildInfo() = %+v, want dev/none/unknown defaults", info)
	}
}

func TestBuildInfoString(t *testing.T) {
	info := BuildInfo{Version: "1.4.0", Commit: "abc123", BuildTime: "2026-01-02T03:04:05Z"}

	if got, want := info.String(), "1.4.0 (abc123, 2026-01-02T03:04:05Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
