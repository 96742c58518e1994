// Package manifest reads release metadata from the package manifest shipped
// next to the client.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"gbnf.dev/client/internal/core/domain"
)

// ErrNoVersion indicates the manifest carries no usable version field
var ErrNoVersion = errors.New("manifest has no version field")

// PackageManifest reads the "version" field of a package.json style file.
// The file is read on every call so a reinstalled client is picked up.
type PackageManifest struct {
	path     string
	override domain.ReleaseVersion
}

// NewPackageManifest creates a version source backed by the manifest at path
func NewPackageManifest(path string) *PackageManifest {
	return &PackageManifest{path: path}
}

// WithOverride returns a copy that reports version instead of reading the file
// whenever version is non-empty.
func (m *PackageManifest) WithOverride(version string) *PackageManifest {
	return &PackageManifest{path: m.path, override: domain.ReleaseVersion(strings.TrimSpace(version))}
}

// Path returns the manifest location
func (m *PackageManifest) Path() string {
	return m.path
}

// ReleaseVersion returns the version string used to build download locations.
func (m *PackageManifest) ReleaseVersion() (domain.ReleaseVersion, error) {
	if m.override != "" {
		return m.override, nil
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return "", fmt.Errorf("failed to read manifest: %w", err)
	}

	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("manifest %s is not valid JSON", m.path)
	}

	version := gjson.GetBytes(data, "version")
	if version.Type != gjson.String || strings.TrimSpace(version.String()) == "" {
		return "", fmt.Errorf("%s: %w", m.path, ErrNoVersion)
	}

	return domain.ReleaseVersion(strings.TrimSpace(version.String())), nil
}
