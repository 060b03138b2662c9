// Package version carries the build identity stamped into the slab binary.
package version

// Overridable at build time:
//
//	go build -ldflags "-X slab/internal/version.Version=0.2.0 -X slab/internal/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	// Version is the semantic version of this build.
	Version = "0.1.0-dev"

	// GitCommit is the commit the binary was built from, when stamped.
	GitCommit = ""

	// BuildDate is the build timestamp in ISO-8601, when stamped.
	BuildDate = ""
)

// String returns the one-line build fingerprint: the version, with the
// commit appended as build metadata when known.
func String() string {
	if GitCommit == "" {
		return Version
	}
	return Version + "+" + GitCommit
}
