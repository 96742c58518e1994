// Package platform maps a host to the canonical name and cache path of the
// language server binary built for it. Nothing here touches the filesystem
// or the network.
package platform

import (
	"path/filepath"
	"runtime"

	"gbnf.dev/client/internal/core/domain"
)

// BinDir is the directory, relative to the install root, that holds cached binaries.
const BinDir = "bin"

var goosTags = map[string]string{
	"windows": domain.OSWindows,
	"linux":   domain.OSLinux,
	"darwin":  domain.OSDarwin,
}

var goarchTags = map[string]string{
	"amd64": domain.ArchX64,
	"arm64": domain.ArchArm64,
}

// Host returns the descriptor of the running host.
func Host() domain.PlatformDescriptor {
	return FromGo(runtime.GOOS, runtime.GOARCH)
}

// FromGo converts Go's GOOS/GOARCH names to platform tags. Names without a
// mapping pass through unchanged so CanonicalName rejects them.
func FromGo(goos, goarch string) domain.PlatformDescriptor {
	desc := domain.PlatformDescriptor{OperatingSystem: goos, Architecture: goarch}
	if tag, ok := goosTags[goos]; ok {
		desc.OperatingSystem = tag
	}
	if tag, ok := goarchTags[goarch]; ok {
		desc.Architecture = tag
	}
	return desc
}

// CanonicalName returns "{os}-{arch}-{baseName}", with ".exe" appended on win32.
func CanonicalName(p domain.PlatformDescriptor, baseName string) (string, error) {
	if !domain.IsSupportedOS(p.OperatingSystem) || !domain.IsSupportedArch(p.Architecture) {
		return "", &domain.UnsupportedPlatformError{
			OperatingSystem: p.OperatingSystem,
			Architecture:    p.Architecture,
		}
	}

	name := p.OperatingSystem + "-" + p.Architecture + "-" + baseName
	if p.IsWindows() {
		name += ".exe"
	}
	return name, nil
}

// Resolver resolves binary descriptors below a fixed install root
type Resolver struct {
	installRoot string
	baseName    string
}

// NewResolver creates a resolver for binaries named baseName under installRoot/bin.
func NewResolver(installRoot, baseName string) *Resolver {
	return &Resolver{installRoot: installRoot, baseName: baseName}
}

// Resolve returns the descriptor for p. The flat layout bin/{canonical name}
// is used so the cache file and the release artifact share one name.
func (r *Resolver) Resolve(p domain.PlatformDescriptor) (domain.BinaryDescriptor, error) {
	name, err := CanonicalName(p, r.baseName)
	if err != nil {
		return domain.BinaryDescriptor{}, err
	}

	return domain.BinaryDescriptor{
		CanonicalName: name,
		Path:          filepath.Join(r.installRoot, BinDir, name),
		Platform:      p,
	}, nil
}

// BaseName returns the configured base name
func (r *Resolver) BaseName() string {
	return r.baseName
}
