package versions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNewerVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		newVersion string
		oldVersion string
		expected   bool
	}{
		{name: "newer major version", newVersion: "2.0.0", oldVersion: "1.0.0", expected: true},
		{name: "newer minor version", newVersion: "1.2.0", oldVersion: "1.1.0", expected: true},
		{name: "newer patch version", newVersion: "1.0.2", oldVersion: "1.0.1", expected: true},
		{name: "older minor version", newVersion: "1.1.0", oldVersion: "1.2.0", expected: false},
		{name: "equal versions", newVersion: "1.0.0", oldVersion: "1.0.0", expected: false},
		{name: "release vs prerelease", newVersion: "1.0.0", oldVersion: "1.0.0-rc.1", expected: true},
		{name: "v prefix", newVersion: "v0.4.0", oldVersion: "v0.3.9", expected: true},
		{name: "dev build is never newer", newVersion: "dev", oldVersion: "0.1.0", expected: false},
		{name: "nothing is newer than dev", newVersion: "0.1.0", oldVersion: "dev", expected: false},
		{name: "both empty", newVersion: "", oldVersion: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsNewerVersion(tt.newVersion, tt.oldVersion))
		})
	}
}

func TestCompatibilityWarning(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		client   string
		server   string
		contains string
	}{
		{name: "same version", client: "v1.2.0", server: "v1.2.0"},
		{name: "server patch ahead", client: "1.2.0", server: "1.2.3"},
		{name: "server older minor", client: "1.3.0", server: "1.2.0"},
		{name: "server newer minor", client: "1.2.0", server: "1.4.0", contains: "consider upgrading"},
		{name: "major mismatch", client: "1.2.0", server: "2.0.0", contains: "not compatible"},
		{name: "dev client", client: "dev", server: "1.0.0"},
		{name: "dev server", client: "1.0.0", server: "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			warning := CompatibilityWarning(tt.client, tt.server)
			if tt.contains == "" {
				assert.Empty(t, warning)
				return
			}
			assert.Contains(t, warning, tt.contains)
		})
	}
}

func TestGetVersionInfo(t *testing.T) {
	t.Parallel()

	info := GetVersionInfo()
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}
