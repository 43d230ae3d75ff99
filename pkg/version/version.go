// Package version exposes build metadata injected at link time.
package version

// Set via -ldflags "-X github.com/triage-labs/sleuth/pkg/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// String returns the human-readable version line.
func String() string {
	return Version + " (" + GitCommit + ")"
}
