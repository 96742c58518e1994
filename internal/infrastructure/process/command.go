package process

import (
	"fmt"
	"strings"

	"gbnf.dev/client/internal/core/domain"
)

// DebugFlag is the single argument of the debug launch configuration
const DebugFlag = "--debug"

// LaunchConfig is an immutable executable-plus-arguments pair. Arguments only
// ever come from RunConfig or DebugConfig, never from user input.
type LaunchConfig struct {
	executable string
	args       []string
}

// RunConfig returns the default configuration: no arguments
func RunConfig(executable string) LaunchConfig {
	return LaunchConfig{executable: executable}
}

// DebugConfig returns the debug configuration: a single debug flag
func DebugConfig(executable string) LaunchConfig {
	return LaunchConfig{executable: executable, args: []string{DebugFlag}}
}

// ConfigFor selects the launch configuration for mode
func ConfigFor(mode domain.LaunchMode, executable string) LaunchConfig {
	if mode == domain.LaunchDebug {
		return DebugConfig(executable)
	}
	return RunConfig(executable)
}

// Executable returns the command executable
func (c LaunchConfig) Executable() string {
	return c.executable
}

// Args returns a copy of the command arguments
func (c LaunchConfig) Args() []string {
	return append([]string(nil), c.args...)
}

// String returns a string representation of the command
func (c LaunchConfig) String() string {
	if len(c.args) == 0 {
		return c.executable
	}
	return fmt.Sprintf("%s %s", c.executable, strings.Join(c.args, " "))
}

// ShellCommand returns the shell invocation that runs executable with args on
// goos. On POSIX systems the shell execs the target so the spawned PID is the
// server itself; every word is single-quoted.
func ShellCommand(goos, executable string, args []string) (string, []string) {
	if goos == "windows" {
		argv := []string{"/D", "/C", executable}
		return "cmd.exe", append(argv, args...)
	}

	words := make([]string, 0, len(args)+2)
	words = append(words, "exec", quotePOSIX(executable))
	for _, arg := range args {
		words = append(words, quotePOSIX(arg))
	}
	return "/bin/sh", []string{"-c", strings.Join(words, " ")}
}

func quotePOSIX(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
