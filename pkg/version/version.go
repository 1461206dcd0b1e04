// Package version holds build information injected with -ldflags, e.g.
// go build -ldflags "-X tinker/pkg/version.Version=v0.3.0".
package version

import "fmt"

//nolint:gochecknoglobals // ldflags targets must be package-level vars.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the version line printed by the CLI.
func String() string {
	return fmt.Sprintf("tinker %s (commit %s, built %s)", Version, Commit, Date)
}
