package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func stubBuildInfo(t *testing.T, info *debug.BuildInfo) {
	t.Helper()

	orig := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }

	t.Cleanup(func() { readBuildInfo = orig })
}

func TestFull_Ldflags(t *testing.T) {
	stubBuildInfo(t, nil)

	origRelease, origCommit := Release, GitCommit
	Release, GitCommit = "v1.2.3", "abc123"

	t.Cleanup(func() { Release, GitCommit = origRelease, origCommit })

	assert.Equal(t, "v1.2.3 (commit: abc123)", Full())
}

func TestFull_BuildInfoFallback(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Version: "v0.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "deadbeef"},
		},
	})

	assert.Equal(t, "v0.4.0 (commit: deadbeef)", Full())
}

func TestFull_DevelBuild(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})

	assert.Equal(t, "dev (commit: unknown)", Full())
}

func TestFullWithPlatform(t *testing.T) {
	stubBuildInfo(t, nil)

	assert.Equal(t, Full()+" "+GOOS+"/"+GOARCH, FullWithPlatform())
}
