package domain

// LifecycleState is the state of a supervised language server process
type LifecycleState int

const (
	// StateStopped is both the initial state and the state after an explicit stop.
	StateStopped LifecycleState = iota
	// StateStarting covers spawn and protocol initialization.
	StateStarting
	// StateRunning means the process is up and the transport is initialized.
	StateRunning
	// StateFailed means start failed or the running process exited on its own.
	StateFailed
)

// String returns a human-readable state name.
func (s LifecycleState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from s to next is a legal lifecycle step.
func (s LifecycleState) CanTransition(next LifecycleState) bool {
	switch s {
	case StateStopped:
		return next == StateStarting
	case StateStarting:
		return next == StateRunning || next == StateFailed || next == StateStopped
	case StateRunning:
		return next == StateStopped || next == StateFailed
	case StateFailed:
		return next == StateStopped
	default:
		return false
	}
}

// LaunchMode selects one of the two fixed launch configurations
type LaunchMode int

const (
	LaunchRun LaunchMode = iota
	LaunchDebug
)

// String returns "run" or "debug"
func (m LaunchMode) String() string {
	if m == LaunchDebug {
		return "debug"
	}
	return "run"
}
