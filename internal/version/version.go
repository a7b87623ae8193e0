// Package version reports the build that is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build-time variables injected via ldflags.
var (
	Release   = "dev"
	GitCommit = "unknown"
	GOOS      = runtime.GOOS
	GOARCH    = runtime.GOARCH
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Full returns the version string in the format "release (commit: x)".
// Binaries built with go install carry no ldflags; their module version
// and VCS revision are used instead.
func Full() string {
	release, commit := Release, GitCommit

	if info, ok := readBuildInfo(); ok {
		if release == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			release = info.Main.Version
		}

		if commit == "unknown" {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && s.Value != "" {
					commit = s.Value
				}
			}
		}
	}

	return fmt.Sprintf("%s (commit: %s)", release, commit)
}

// FullWithPlatform appends the target platform to Full.
func FullWithPlatform() string {
	return fmt.Sprintf("%s %s/%s", Full(), GOOS, GOARCH)
}
