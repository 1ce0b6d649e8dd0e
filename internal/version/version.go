// Package version provides build-time version information for codeparse.
//
// Build-time variables are injected via ldflags:
//
//	go build -ldflags "
//	  -X github.com/jmylchreest/codeparse/internal/version.Version=x.y.z
//	  -X github.com/jmylchreest/codeparse/internal/version.Commit=$(git rev-parse HEAD)
//	  -X github.com/jmylchreest/codeparse/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)
//	"
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Build-time variables injected via ldflags.
var (
	// Version is the semantic version of the binary. "0.0.0" for local builds.
	Version = "0.0.0"

	// Commit is the full git commit SHA.
	Commit = "unknown"

	// Date is the build timestamp in RFC3339 format.
	Date = "unknown"
)

func init() {
	if Commit == "unknown" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					Commit = setting.Value
				case "vcs.time":
					Date = setting.Value
				}
			}
		}
	}
}

// ApplicationName is the canonical name of this application.
const ApplicationName = "codeparse"

// Info contains structured version information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	CommitSHA string `json:"commit_sha,omitempty"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetInfo returns all version information as a structured type.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		CommitSHA: shortCommit(),
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

func shortCommit() string {
	if Commit != "unknown" && len(Commit) >= 8 {
		return Commit[:8]
	}
	return ""
}

// String returns a human-readable version string.
func String() string {
	info := GetInfo()
	if sha := shortCommit(); sha != "" {
		return fmt.Sprintf("%s version %s (commit: %s, built: %s, %s, %s/%s)",
			ApplicationName, info.Version, sha, info.Date, info.GoVersion, info.OS, info.Arch)
	}
	return fmt.Sprintf("%s version %s (%s, %s/%s)", ApplicationName, info.Version, info.GoVersion, info.OS, info.Arch)
}

// JSON returns the version info as an indented JSON document.
func JSON() string {
	data, err := json.MarshalIndent(GetInfo(), "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

// UserAgent is sent with every grammar download request.
func UserAgent() string {
	v := Version
	if IsSnapshot() {
		v += "-snapshot"
	}
	return ApplicationName + "/" + v + " (" + runtime.GOOS + "; " + runtime.GOARCH + ")"
}

// IsSnapshot returns true if this is a local or prerelease build.
func IsSnapshot() bool {
	return Version == "0.0.0" || Version == "dev" || strings.Contains(Version, "-dev.")
}
