package domain

// Recognized operating system tags
const (
	OSWindows = "win32"
	OSLinux   = "linux"
	OSDarwin  = "darwin"
)

// Recognized architecture tags
const (
	ArchX64   = "x64"
	ArchArm64 = "arm64"
)

// SupportedOperatingSystems lists the operating system tags a binary is published for
var SupportedOperatingSystems = []string{OSWindows, OSLinux, OSDarwin}

// SupportedArchitectures lists the architecture tags a binary is published for
var SupportedArchitectures = []string{ArchX64, ArchArm64}

// PlatformDescriptor identifies the host an activation runs on
type PlatformDescriptor struct {
	OperatingSystem string
	Architecture    string
}

// String returns the "{os}-{arch}" form
func (p PlatformDescriptor) String() string {
	return p.OperatingSystem + "-" + p.Architecture
}

// IsWindows reports whether the platform uses Windows conventions (.exe, no permission bits)
func (p PlatformDescriptor) IsWindows() bool {
	return p.OperatingSystem == OSWindows
}

// IsSupportedOS reports whether os is one of the recognized operating system tags
func IsSupportedOS(os string) bool {
	for _, candidate := range SupportedOperatingSystems {
		if candidate == os {
			return true
		}
	}
	return false
}

// IsSupportedArch reports whether arch is one of the recognized architecture tags
func IsSupportedArch(arch string) bool {
	for _, candidate := range SupportedArchitectures {
		if candidate == arch {
			return true
		}
	}
	return false
}

// BinaryDescriptor identifies the resolved language server artifact.
// It is created by the platform resolver and completed by the provisioner.
type BinaryDescriptor struct {
	CanonicalName string
	Path          string
	Platform      PlatformDescriptor

	// Executable is set by the provisioner once the file is present and,
	// on non-Windows platforms, carries execute permission bits.
	Executable bool
}

// ReleaseVersion is the opaque version string used to locate a release artifact
type ReleaseVersion string

// String returns the raw version
func (v ReleaseVersion) String() string {
	return string(v)
}

// Tag returns the release tag, "v{version}"
func (v ReleaseVersion) Tag() string {
	return "v" + string(v)
}
