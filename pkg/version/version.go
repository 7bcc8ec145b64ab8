// Package version holds build information for the notifier binary.
package version

// Set at build time, e.g. go build -ldflags "-X notifier/pkg/version.Version=v1.2.3".
//
//nolint:gochecknoglobals // These must be package-level vars for ldflags injection.
var (
	// Version is the semantic version, or "dev" for local builds.
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"
)

// String renders the version and commit for logs and /status.
func String() string {
	return Version + " (" + Commit + ")"
}
