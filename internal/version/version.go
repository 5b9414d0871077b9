// Package version reports what build of the radio queue server is running.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Overridable with -ldflags "-X .../internal/version.Version=...".
var (
	Name      = "Radio Queue"
	Version   = "0.1.0"
	BuildTime = ""
	GitCommit = ""
)

// Info is served at /api/v1/version and printed in the startup banner.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	BuildTime string `json:"buildTime,omitempty"`
	GitCommit string `json:"gitCommit,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
	GoVersion string `json:"goVersion,omitempty"`
}

// GetInfo returns the linker-provided values, falling back to the VCS
// stamps the Go toolchain embeds in the binary.
func GetInfo() Info {
	info := Info{
		Name:      Name,
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fromBuildInfo(&info, bi)
	}
	return info
}

func fromBuildInfo(info *Info, bi *debug.BuildInfo) {
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
}

// String formats the info for logs, e.g. "Radio Queue v0.1.0 (abc1234+dirty)".
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s v%s", i.Name, i.Version)
	if i.GitCommit != "" {
		commit := i.GitCommit[:min(7, len(i.GitCommit))]
		if i.Dirty {
			commit += "+dirty"
		}
		fmt.Fprintf(&b, " (%s)", commit)
	}
	if i.BuildTime != "" {
		fmt.Fprintf(&b, " built %s", i.BuildTime)
	}
	return b.String()
}
