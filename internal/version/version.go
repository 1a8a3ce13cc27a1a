// Package version carries build-time version metadata.
package version

import "fmt"

// Set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Short returns just the version string.
func Short() string {
	return Version
}

// Full returns version, commit, and build date.
func Full() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
