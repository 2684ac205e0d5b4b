// Package version provides build-time version information.
package version

// Set at build time via -ldflags "-X offload/internal/version.version=...".
var (
	version = "dev"     //nolint:gochecknoglobals // ldflags requires package-level var
	commit  = "unknown" //nolint:gochecknoglobals // ldflags requires package-level var
)

// String returns the current version.
func String() string {
	return version
}

// Full returns the version and commit, e.g. "v0.3.1 (a1b2c3d)".
func Full() string {
	return version + " (" + commit + ")"
}
