package config

import "fmt"

// Set with -ldflags at release time:
//
//	go build -ldflags "-X formguard/internal/config.version=1.4.0 \
//	    -X formguard/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X formguard/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
}

// String renders the build as "version (commit, time)" for logs and CLI output.
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (%s, %s)", b.Version, b.Commit, b.BuildTime)
}
