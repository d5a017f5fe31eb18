// Package version holds build metadata stamped in with -ldflags -X.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String describes the build, e.g. "v0.3.1 (1a2b3c4) built 2025-03-01T09:00:00Z".
func String() string {
	return fmt.Sprintf("%s (%s) built %s", Version, GitSHA, BuildTime)
}

// UserAgent is sent by clients talking to motiond.
func UserAgent(program string) string {
	return program + "/" + Version
}
