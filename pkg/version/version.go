// Package version provides version information for pgiris.
package version

import (
	_ "embed"
	"strings"
)

//go:embed version.txt
var versionFile string

// Version is the current version of pgiris, embedded from version.txt.
var Version = strings.TrimSpace(versionFile)

// String returns the version string.
func String() string {
	return Version
}

// Full returns a full version string with the package name.
func Full() string {
	return "pgiris version " + Version
}

// ServerVersion is the version string reported to clients in the
// server_version ParameterStatus. Clients gate feature detection on this;
// reporting a recent PostgreSQL-compatible major version keeps modern
// driver libraries on their full code path.
var ServerVersion = "16.3 (pgiris " + Version + ")"
