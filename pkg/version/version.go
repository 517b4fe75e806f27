// Package version carries build-time identification of the shear binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Populated via -ldflags at release build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// InitBinaryVersion fills in version fields from the embedded module build
// info when the binary was built without ldflags.
func InitBinaryVersion() {
	if Version != "dev" {
		return
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			Commit = setting.Value
		case "vcs.time":
			Date = setting.Value
		}
	}
}

// String renders the full version line.
func String() string {
	return fmt.Sprintf("shear %s (commit: %s, built: %s)", Version, Commit, Date)
}
