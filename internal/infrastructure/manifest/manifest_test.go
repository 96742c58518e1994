package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gbnf.dev/client/internal/core/domain"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "package.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestPackageManifest_ReadsVersion(t *testing.T) {
	path := writeManifest(t, `{"name": "gbnf-lsp", "version": "1.2.3", "engines": {"vscode": "^1.80.0"}}`)

	version, err := NewPackageManifest(path).ReleaseVersion()

	require.NoError(t, err)
	assert.Equal(t, domain.ReleaseVersion("1.2.3"), version)
}

func TestPackageManifest_MissingFileIsFatal(t *testing.T) {
	_, err := NewPackageManifest(filepath.Join(t.TempDir(), "package.json")).ReleaseVersion()

	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPackageManifest_MissingVersionIsFatal(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"NoField", `{"name": "gbnf-lsp"}`},
		{"EmptyField", `{"version": "  "}`},
		{"NumericField", `{"version": 3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPackageManifest(writeManifest(t, tt.content)).ReleaseVersion()
			assert.ErrorIs(t, err, ErrNoVersion)
		})
	}
}

func TestPackageManifest_InvalidJSON(t *testing.T) {
	_, err := NewPackageManifest(writeManifest(t, `{"version": `)).ReleaseVersion()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestPackageManifest_OverrideSkipsFile(t *testing.T) {
	source := NewPackageManifest(filepath.Join(t.TempDir(), "missing.json")).WithOverride(" 2.0.0 ")

	version, err := source.ReleaseVersion()

	require.NoError(t, err)
	assert.Equal(t, domain.ReleaseVersion("2.0.0"), version)
}
