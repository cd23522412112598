package version

import "fmt"

// Overridden at build time via -ldflags.
var (
	Version = "0.3.0"
	Commit  = ""
)

// String returns the human-readable version for --version output.
func String() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
