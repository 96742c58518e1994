package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"

	"gbnf.dev/client/internal/core/ports"
)

// ShellExecutor starts executables through the system shell
type ShellExecutor struct {
	goos string
	env  []string
}

// NewShellExecutor creates an executor for the running OS
func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{
		goos: runtime.GOOS,
		env:  os.Environ(),
	}
}

// Spawn starts executable with args through the shell. The process is killed
// when ctx is cancelled.
func (e *ShellExecutor) Spawn(ctx context.Context, executable string, args []string) (ports.Process, error) {
	if executable == "" {
		return nil, fmt.Errorf("executable cannot be empty")
	}

	shell, shellArgs := ShellCommand(e.goos, executable, args)
	execCmd := exec.CommandContext(ctx, shell, shellArgs...)
	execCmd.Env = append([]string(nil), e.env...)

	stdin, err := execCmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	// Output pipes are created here rather than with StdoutPipe so that Wait
	// does not close them before buffered output has been read.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, stderrW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	execCmd.Stdout = stdoutW
	execCmd.Stderr = stderrW

	err = execCmd.Start()
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	p := &processImpl{
		cmd:     execCmd,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		running: true,
		done:    make(chan struct{}),
	}
	go p.monitor()

	return p, nil
}

// processImpl implements ports.Process
type processImpl struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	mu       sync.RWMutex
	running  bool
	exitCode int
	done     chan struct{}
	waitErr  error
}

// PID returns the process ID
func (p *processImpl) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

func (p *processImpl) Stdin() io.WriteCloser { return p.stdin }

func (p *processImpl) Stdout() io.ReadCloser { return p.stdout }

func (p *processImpl) Stderr() io.ReadCloser { return p.stderr }

// Wait waits for the process to complete and returns its error
func (p *processImpl) Wait() error {
	<-p.done
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.waitErr
}

func (p *processImpl) Done() <-chan struct{} {
	return p.done
}

// Terminate sends SIGTERM; Windows has no such signal, so the process is killed.
func (p *processImpl) Terminate() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return fmt.Errorf("process not running")
	}
	if runtime.GOOS == "windows" {
		return p.Kill()
	}
	err := p.cmd.Process.Signal(syscall.SIGTERM)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *processImpl) Kill() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return fmt.Errorf("process not running")
	}

	if p.stdin != nil {
		p.stdin.Close()
	}

	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *processImpl) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *processImpl) ExitCode() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitCode
}

func (p *processImpl) monitor() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.running = false
	p.waitErr = err

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		p.exitCode = exitError.ExitCode()
	} else if err == nil {
		p.exitCode = 0
	} else {
		p.exitCode = -1
	}
	p.mu.Unlock()

	close(p.done)
}
