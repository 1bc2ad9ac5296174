// Package version carries the build metadata stamped into the docsift
// binary, shown by --version and the serve startup log.
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
