// Package version provides version information for the anchor survey tools
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const unknown = "unknown"

// Build-time variables that can be set via ldflags, e.g.
//
//	-X anchor-survey/internal/version.GitCommit=$(git rev-parse HEAD)
var (
	Version   = "0.1.0"
	GitCommit = unknown
	GitBranch = unknown
	BuildDate = unknown
	BuildUser = unknown
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string
	GitCommit string
	GitBranch string
	BuildDate string
	BuildUser string
	Modified  bool // working tree had uncommitted changes
	GoVersion string
	Platform  string
}

// GetBuildInfo returns complete build information. Commit and date not
// set through ldflags are taken from the VCS stamp the go tool embeds.
func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		GitBranch: GitBranch,
		BuildDate: BuildDate,
		BuildUser: BuildUser,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		applyVCS(&info, bi.Settings)
	}
	return info
}

func applyVCS(info *BuildInfo, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == unknown {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == unknown {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}

// GetVersion returns the version string
func GetVersion() string {
	return Version
}

// GetFullVersion returns the version with the short commit appended when known
func GetFullVersion() string {
	if GitCommit != unknown && len(GitCommit) > 7 {
		return Version + "-" + shortCommit(GitCommit)
	}
	return Version
}

// GetVersionInfo returns formatted version information for --version
func GetVersionInfo(appName string) string {
	info := GetBuildInfo()

	var b strings.Builder
	fmt.Fprintf(&b, "%s version %s", appName, info.Version)
	if info.GitCommit != unknown {
		fmt.Fprintf(&b, " (commit %s", shortCommit(info.GitCommit))
		if info.Modified {
			b.WriteString(", dirty")
		}
		b.WriteString(")")
	}
	if info.GitBranch != unknown {
		fmt.Fprintf(&b, " on branch %s", info.GitBranch)
	}
	if info.BuildDate != unknown {
		fmt.Fprintf(&b, "\nBuilt: %s", info.BuildDate)
		if info.BuildUser != unknown {
			fmt.Fprintf(&b, " by %s", info.BuildUser)
		}
	}
	fmt.Fprintf(&b, "\nGo: %s", info.GoVersion)
	fmt.Fprintf(&b, "\nPlatform: %s", info.Platform)
	return b.String()
}
