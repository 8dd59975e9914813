package version

import (
	"runtime/debug"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func stamp(t *testing.T, version, commit, built string, settings ...debug.BuildSetting) {
	t.Helper()
	oldV, oldC, oldB, oldRead := Version, GitCommit, BuildTime, readBuildInfo
	Version, GitCommit, BuildTime = version, commit, built
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}, Settings: settings}, true
	}
	t.Cleanup(func() {
		Version, GitCommit, BuildTime, readBuildInfo = oldV, oldC, oldB, oldRead
	})
}

func TestStampedVersion(t *testing.T) {
	stamp(t, "v1.4.0", "0123456789abcdef", "2026-03-01T10:00:00Z")

	assert.Equal(t, "v1.4.0", GetVersion())
	assert.Equal(t, "v1.4.0 (0123456)", GetShortVersion())
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), GetBuildTime())
	assert.Contains(t, GetDetailedVersion(), "Commit: 0123456789abcdef")
}

func TestVCSFallback(t *testing.T) {
	stamp(t, "dev", "unknown", "unknown",
		debug.BuildSetting{Key: "vcs.revision", Value: "fedcba9876543210"},
		debug.BuildSetting{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		debug.BuildSetting{Key: "vcs.modified", Value: "true"},
	)

	assert.Equal(t, "dev", GetVersion())
	assert.Equal(t, "dev-fedcba9", GetShortVersion())
	assert.Equal(t, 2026, GetBuildTime().Year())
	assert.True(t, GetBuildInfo().Dirty)
	assert.Contains(t, GetDetailedVersion(), "(dirty)")
}

func TestNoBuildInfo(t *testing.T) {
	stamp(t, "dev", "unknown", "unknown")

	assert.Equal(t, "dev", GetShortVersion())
	assert.True(t, GetBuildTime().IsZero())
	assert.NotContains(t, GetDetailedVersion(), "Commit:")
}
