package ports

import (
	"context"
	"io"

	"gbnf.dev/client/internal/core/domain"
)

// OutputSink is the append-only diagnostic log surface.
// Implementations must never fail or panic into the caller.
type OutputSink interface {
	// AppendLine appends one timestamped line
	AppendLine(line string)

	// Appendf formats and appends one line
	Appendf(format string, args ...interface{})
}

// Notifier is the transient user-visible notification surface
type Notifier interface {
	Info(message string)
	Error(message string)
}

// VersionSource supplies the release version used to build download locations
type VersionSource interface {
	ReleaseVersion() (domain.ReleaseVersion, error)
}

// Provisioner guarantees a resolved binary is present and executable
type Provisioner interface {
	Ensure(ctx context.Context, binary domain.BinaryDescriptor) (domain.BinaryDescriptor, error)
}

// Process is a running language server process
type Process interface {
	// PID returns the process ID
	PID() int

	// Stdin returns the writer feeding the process
	Stdin() io.WriteCloser

	// Stdout returns the reader for the process output
	Stdout() io.ReadCloser

	// Stderr returns the reader for the process diagnostics
	Stderr() io.ReadCloser

	// Wait blocks until the process exits and returns its error, if any
	Wait() error

	// Done is closed once the process has exited
	Done() <-chan struct{}

	// Terminate asks the process to exit
	Terminate() error

	// Kill forcefully terminates the process
	Kill() error

	// IsRunning returns true if the process is still running
	IsRunning() bool

	// ExitCode returns the exit code once the process has finished
	ExitCode() int
}

// ShellSpawner starts an executable through the system shell. The argument
// list must be one of the fixed launch configurations, never built from input.
type ShellSpawner interface {
	Spawn(ctx context.Context, executable string, args []string) (Process, error)
}

// MessageSender forwards protocol notifications to the language server
type MessageSender interface {
	Notify(ctx context.Context, method string, params interface{}) error
}

// Supervisor owns the lifecycle of one language server process
type Supervisor interface {
	Start(ctx context.Context, mode domain.LaunchMode) error
	Stop(ctx context.Context)
	State() domain.LifecycleState
	LastError() error
}

// DocumentBridge forwards document lifecycle events to the language server.
// Each method reports whether the document matched the selector and was sent.
type DocumentBridge interface {
	DidOpen(ctx context.Context, doc domain.Document) (bool, error)
	DidChange(ctx context.Context, doc domain.Document) (bool, error)
	DidSave(ctx context.Context, doc domain.Document) (bool, error)
	DidClose(ctx context.Context, doc domain.Document) (bool, error)
}
