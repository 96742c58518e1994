package platform

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"gbnf.dev/client/internal/core/domain"
)

const baseName = "gbnf-engine"

func TestCanonicalName_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		platform domain.PlatformDescriptor
		want     string
	}{
		{
			name:     "LinuxX64_NoExtension",
			platform: domain.PlatformDescriptor{OperatingSystem: "linux", Architecture: "x64"},
			want:     "linux-x64-gbnf-engine",
		},
		{
			name:     "Win32Arm64_ExeSuffix",
			platform: domain.PlatformDescriptor{OperatingSystem: "win32", Architecture: "arm64"},
			want:     "win32-arm64-gbnf-engine.exe",
		},
		{
			name:     "DarwinArm64",
			platform: domain.PlatformDescriptor{OperatingSystem: "darwin", Architecture: "arm64"},
			want:     "darwin-arm64-gbnf-engine",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalName(tt.platform, baseName)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalName_UnsupportedOS(t *testing.T) {
	_, err := CanonicalName(domain.PlatformDescriptor{OperatingSystem: "plan9", Architecture: "x64"}, baseName)

	var unsupported *domain.UnsupportedPlatformError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "Unsupported platform: plan9", err.Error())
}

func TestCanonicalName_PropertyBased_SupportedPairs(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		os := rapid.SampledFrom(domain.SupportedOperatingSystems).Draw(t, "os")
		arch := rapid.SampledFrom(domain.SupportedArchitectures).Draw(t, "arch")
		p := domain.PlatformDescriptor{OperatingSystem: os, Architecture: arch}

		first, err := CanonicalName(p, baseName)
		require.NoError(t, err)
		second, err := CanonicalName(p, baseName)
		require.NoError(t, err)

		assert.Equal(t, first, second, "resolution must be deterministic")
		assert.True(t, strings.HasPrefix(first, os+"-"+arch+"-"+baseName))
		assert.Equal(t, os == domain.OSWindows, strings.HasSuffix(first, ".exe"))
	})
}

func TestCanonicalName_PropertyBased_RejectsUnknownTags(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		os := rapid.StringMatching(`[a-z0-9]{1,10}`).Draw(t, "os")
		arch := rapid.StringMatching(`[a-z0-9]{1,10}`).Draw(t, "arch")
		p := domain.PlatformDescriptor{OperatingSystem: os, Architecture: arch}

		_, err := CanonicalName(p, baseName)
		supported := domain.IsSupportedOS(os) && domain.IsSupportedArch(arch)
		if supported {
			assert.NoError(t, err)
			return
		}

		var unsupported *domain.UnsupportedPlatformError
		assert.True(t, errors.As(err, &unsupported), "unsupported pair %s/%s must fail", os, arch)
	})
}

func TestResolver_Resolve_UsesFlatBinLayout(t *testing.T) {
	root := t.TempDir()
	resolver := NewResolver(root, baseName)

	desc, err := resolver.Resolve(domain.PlatformDescriptor{OperatingSystem: "linux", Architecture: "x64"})
	require.NoError(t, err)

	assert.Equal(t, "linux-x64-gbnf-engine", desc.CanonicalName)
	assert.Equal(t, filepath.Join(root, "bin", "linux-x64-gbnf-engine"), desc.Path)
	assert.False(t, desc.Executable, "resolver must not inspect the filesystem")
}

func TestResolver_Resolve_FailsBeforeFilesystemAccess(t *testing.T) {
	// A root that cannot exist proves no filesystem call is needed to fail.
	resolver := NewResolver(string([]byte{0}), baseName)

	_, err := resolver.Resolve(domain.PlatformDescriptor{OperatingSystem: "plan9", Architecture: "x64"})

	var unsupported *domain.UnsupportedPlatformError
	assert.True(t, errors.As(err, &unsupported))
}

func TestFromGo_MapsRuntimeNames(t *testing.T) {
	assert.Equal(t, domain.PlatformDescriptor{OperatingSystem: "win32", Architecture: "x64"}, FromGo("windows", "amd64"))
	assert.Equal(t, domain.PlatformDescriptor{OperatingSystem: "darwin", Architecture: "arm64"}, FromGo("darwin", "arm64"))
	assert.Equal(t, domain.PlatformDescriptor{OperatingSystem: "plan9", Architecture: "386"}, FromGo("plan9", "386"))
}
