package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Supervisor misuse and lifecycle errors
var (
	// ErrSupervisorUsed is returned when Start is called on a supervisor that already ran once.
	ErrSupervisorUsed = errors.New("supervisor already used; start a new session")

	// ErrStopRequested is returned by Start when Stop was requested while starting.
	ErrStopRequested = errors.New("stop requested while starting")

	// ErrNotRunning is returned when the transport is needed but the server is not running.
	ErrNotRunning = errors.New("language server not running")

	// ErrServerExited marks an unexpected exit of a running server.
	ErrServerExited = errors.New("language server exited unexpectedly")
)

// UnsupportedPlatformError reports an operating system or architecture outside the recognized set
type UnsupportedPlatformError struct {
	OperatingSystem string
	Architecture    string
}

func (e *UnsupportedPlatformError) Error() string {
	if !IsSupportedOS(e.OperatingSystem) {
		return fmt.Sprintf("Unsupported platform: %s", e.OperatingSystem)
	}
	return fmt.Sprintf("Unsupported platform: %s %s", e.OperatingSystem, e.Architecture)
}

// MissingBinaryError reports a resolved binary that is absent and could not be provisioned
type MissingBinaryError struct {
	Path string
	Err  error
}

func (e *MissingBinaryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("language server binary not found at %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("language server binary not found at %s", e.Path)
}

func (e *MissingBinaryError) Unwrap() error { return e.Err }

// DownloadError reports a failed fetch of the binary artifact. StatusCode is zero when the
// failure happened before or after the HTTP exchange (transfer, write, or permission errors).
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 && e.StatusCode != 200 {
		return fmt.Sprintf("download failed with status %d: %s", e.StatusCode, e.URL)
	}
	if e.Err != nil {
		return fmt.Sprintf("download failed: %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("download failed: %s", e.URL)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// SpawnError reports a process that failed to start
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ProtocolStartError reports a transport that failed to initialize after a successful spawn
type ProtocolStartError struct {
	Err error
}

func (e *ProtocolStartError) Error() string {
	return fmt.Sprintf("language server protocol failed to start: %v", e.Err)
}

func (e *ProtocolStartError) Unwrap() error { return e.Err }

// Trace renders the chain of wrapped errors, outermost first, one cause per line.
func Trace(err error) string {
	if err == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%T: %v", err, err)
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		fmt.Fprintf(&b, "\n  caused by %T: %v", cause, cause)
	}
	return b.String()
}
