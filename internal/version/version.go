// Package version reports the wizlight build version.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

// These variables can be set at build time via ldflags:
//
//	go build -ldflags="-X github.com/muurk/wizlight/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/wizlight/internal/version.Commit=abc1234"
//
// Otherwise they are filled from the module and VCS build info, falling
// back to "dev" and "unknown".
var (
	// Version is the semantic version of the application
	Version = ""
	// Commit is the git commit hash
	Commit = ""
	// GoVersion is the toolchain the binary was built with
	GoVersion = ""
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		apply(info)
	}
	if Version == "" {
		Version = "dev"
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// apply fills unset variables from build info
func apply(info *debug.BuildInfo) {
	GoVersion = info.GoVersion

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}

	if Commit == "" {
		if rev := settings["vcs.revision"]; rev != "" {
			if len(rev) > 7 {
				rev = rev[:7]
			}
			if settings["vcs.modified"] == "true" {
				rev += "-dirty"
			}
			Commit = rev
		}
	}

	if Version != "" {
		return
	}
	// go install module@version records the tag as the main module version
	if v := info.Main.Version; v != "" && v != "(devel)" {
		Version = v
		return
	}
	if t, err := time.Parse(time.RFC3339, settings["vcs.time"]); err == nil {
		Version = "dev-" + t.Format("20060102")
	}
}

// Full returns the version string including commit and toolchain
func Full() string {
	parts := []string{Version, "commit: " + Commit}
	if GoVersion != "" {
		parts = append(parts, GoVersion)
	}
	return fmt.Sprintf("%s (%s)", parts[0], strings.Join(parts[1:], ", "))
}
