package versions

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// IsNewerVersion reports whether newVersion is strictly greater than oldVersion.
// Both must be valid semver; anything else, including "dev" builds, never
// compares as newer.
func IsNewerVersion(newVersion, oldVersion string) bool {
	newSemver, errNew := semver.NewVersion(newVersion)
	oldSemver, errOld := semver.NewVersion(oldVersion)
	if errNew != nil || errOld != nil {
		return false
	}
	return newSemver.GreaterThan(oldSemver)
}

// CompatibilityWarning describes a version skew between this CLI and the
// server it talks to, or returns "" when the two are compatible. A server on a
// different major version, or a newer minor version, may expose an API this
// CLI does not understand.
func CompatibilityWarning(clientVersion, serverVersion string) string {
	client, errClient := semver.NewVersion(clientVersion)
	server, errServer := semver.NewVersion(serverVersion)
	if errClient != nil || errServer != nil {
		return ""
	}

	switch {
	case client.Major() != server.Major():
		return fmt.Sprintf("server version %s is not compatible with CLI version %s", server, client)
	case IsNewerVersion(serverVersion, clientVersion) && server.Minor() > client.Minor():
		return fmt.Sprintf("server version %s is newer than CLI version %s; consider upgrading", server, client)
	default:
		return ""
	}
}
