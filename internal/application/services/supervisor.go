package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gbnf.dev/client/internal/core/domain"
	"gbnf.dev/client/internal/core/ports"
	"gbnf.dev/client/internal/infrastructure/process"
	"gbnf.dev/client/internal/jsonrpc"
)

// LSP message types used by window/logMessage and window/showMessage
const (
	messageTypeError   = 1
	messageTypeWarning = 2
	messageTypeInfo    = 3
	messageTypeLog     = 4
)

// StateObserver is called after every lifecycle transition
type StateObserver func(from, to domain.LifecycleState, err error)

// SupervisorOptions configures a ProcessSupervisor
type SupervisorOptions struct {
	Binary       domain.BinaryDescriptor
	Spawner      ports.ShellSpawner
	Sink         ports.OutputSink
	Notifier     ports.Notifier
	Client       ClientInfo
	RootURI      string
	StartTimeout time.Duration
	StopTimeout  time.Duration
}

// ProcessSupervisor owns one language server process from spawn to exit.
// A supervisor is started at most once; a new activation creates a new one.
type ProcessSupervisor struct {
	opts SupervisorOptions

	stopMu sync.Mutex

	mu            sync.Mutex
	state         domain.LifecycleState
	used          bool
	stopRequested bool
	stopping      bool
	lastErr       error
	startDone     chan struct{}
	proc          ports.Process
	conn          *jsonrpc.Conn
	serverInfo    *ServerInfo
	cancel        context.CancelFunc
	observers     []StateObserver
}

// NewProcessSupervisor creates a stopped supervisor for opts.Binary
func NewProcessSupervisor(opts SupervisorOptions) *ProcessSupervisor {
	if opts.Sink == nil {
		opts.Sink = nopSink{}
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 10 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 2 * time.Second
	}
	return &ProcessSupervisor{opts: opts, state: domain.StateStopped}
}

// OnStateChange registers an observer for lifecycle transitions
func (s *ProcessSupervisor) OnStateChange(observer StateObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

// State returns the current lifecycle state
func (s *ProcessSupervisor) State() domain.LifecycleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error behind the most recent Failed transition
func (s *ProcessSupervisor) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ServerInfo returns what the server reported during initialization, if anything
func (s *ProcessSupervisor) ServerInfo() *ServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// PID returns the server process id, or -1 when no process is attached
func (s *ProcessSupervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return -1
	}
	return s.proc.PID()
}

// Start spawns the server with the launch configuration for mode and
// initializes the protocol. It returns once the server is Running or the
// attempt has failed.
func (s *ProcessSupervisor) Start(ctx context.Context, mode domain.LaunchMode) error {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		return domain.ErrSupervisorUsed
	}
	s.used = true
	done := make(chan struct{})
	s.startDone = done
	fire := s.transitionLocked(domain.StateStarting, nil)
	s.mu.Unlock()
	fire()
	defer close(done)

	binary := s.opts.Binary
	if err := checkExecutable(binary); err != nil {
		return s.fail(err)
	}

	// The server outlives the caller's context; Stop owns its lifetime.
	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cfg := process.ConfigFor(mode, binary.Path)
	s.opts.Sink.Appendf("Spawning %s (%s mode)", cfg, mode)

	proc, err := s.opts.Spawner.Spawn(procCtx, cfg.Executable(), cfg.Args())
	if err != nil {
		cancel()
		return s.fail(&domain.SpawnError{Path: binary.Path, Err: err})
	}

	go s.pumpStderr(proc)

	conn := jsonrpc.NewConn(proc.Stdout(), proc.Stdin(), proc.Stdin())
	s.registerHandlers(conn)
	conn.Start(procCtx)
	go release(proc, conn)

	hctx, hcancel := context.WithTimeout(ctx, s.opts.StartTimeout)
	info, err := initialize(hctx, conn, s.opts.Client, s.opts.RootURI, mode == domain.LaunchDebug)
	hcancel()
	if err != nil {
		s.kill(proc)
		conn.Close()
		cancel()
		if ctx.Err() != nil {
			// The caller gave up while starting; treat it like Stop.
			s.opts.Sink.AppendLine("Startup cancelled; language server stopped")
			s.mu.Lock()
			stopped := s.transitionLocked(domain.StateStopped, nil)
			s.mu.Unlock()
			stopped()
			return domain.ErrStopRequested
		}
		return s.fail(&domain.ProtocolStartError{Err: err})
	}

	s.mu.Lock()
	s.proc = proc
	s.conn = conn
	s.cancel = cancel
	s.serverInfo = info
	if s.stopRequested {
		s.stopping = true
		s.mu.Unlock()
		s.opts.Sink.AppendLine("Stop requested during startup; shutting down language server")
		s.shutdown(ctx, proc, conn)
		cancel()

		s.mu.Lock()
		fire := s.transitionLocked(domain.StateStopped, nil)
		s.mu.Unlock()
		fire()
		return domain.ErrStopRequested
	}
	fire = s.transitionLocked(domain.StateRunning, nil)
	s.mu.Unlock()
	fire()

	if info != nil {
		s.opts.Sink.Appendf("Language server running (pid %d): %s %s", proc.PID(), info.Name, info.Version)
	} else {
		s.opts.Sink.Appendf("Language server running (pid %d)", proc.PID())
	}
	go s.watch(proc, conn)
	return nil
}

// Stop shuts the server down. It never fails: problems are written to the
// output sink. Stop during startup waits for Start to finish and tear down.
func (s *ProcessSupervisor) Stop(ctx context.Context) {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	for {
		s.mu.Lock()
		switch s.state {
		case domain.StateStopped:
			s.mu.Unlock()
			return

		case domain.StateStarting:
			s.stopRequested = true
			done := s.startDone
			s.mu.Unlock()
			<-done
			continue

		case domain.StateRunning:
			s.stopping = true
			proc, conn, cancel := s.proc, s.conn, s.cancel
			s.mu.Unlock()

			s.shutdown(ctx, proc, conn)
			if cancel != nil {
				cancel()
			}

			s.mu.Lock()
			fire := s.transitionLocked(domain.StateStopped, nil)
			s.mu.Unlock()
			fire()
			s.opts.Sink.AppendLine("Language server stopped")
			return

		case domain.StateFailed:
			proc, conn, cancel := s.proc, s.conn, s.cancel
			s.stopping = true
			s.mu.Unlock()

			if proc != nil && proc.IsRunning() {
				s.kill(proc)
			}
			if conn != nil {
				conn.Close()
			}
			if cancel != nil {
				cancel()
			}

			s.mu.Lock()
			fire := s.transitionLocked(domain.StateStopped, nil)
			s.mu.Unlock()
			fire()
			return

		default:
			s.mu.Unlock()
			return
		}
	}
}

// Notify forwards a notification to the running server
func (s *ProcessSupervisor) Notify(ctx context.Context, method string, params interface{}) error {
	s.mu.Lock()
	conn := s.conn
	running := s.state == domain.StateRunning && !s.stopping
	s.mu.Unlock()

	if !running || conn == nil {
		return domain.ErrNotRunning
	}
	if err := conn.Notify(ctx, method, params); err != nil {
		if errors.Is(err, jsonrpc.ErrClosed) {
			return domain.ErrNotRunning
		}
		return err
	}
	return nil
}

// transitionLocked moves to next and returns a function that notifies the
// observers; call it after releasing s.mu.
func (s *ProcessSupervisor) transitionLocked(next domain.LifecycleState, err error) func() {
	prev := s.state
	if !prev.CanTransition(next) {
		s.opts.Sink.Appendf("Ignoring invalid lifecycle transition %s -> %s", prev, next)
		return func() {}
	}
	s.state = next
	if err != nil {
		s.lastErr = err
	}
	observers := append([]StateObserver(nil), s.observers...)
	return func() {
		for _, observe := range observers {
			observe(prev, next, err)
		}
	}
}

func (s *ProcessSupervisor) fail(err error) error {
	s.mu.Lock()
	fire := s.transitionLocked(domain.StateFailed, err)
	s.mu.Unlock()
	fire()
	return err
}

// shutdown asks the server to exit and kills it if it does not comply within
// the stop timeout.
func (s *ProcessSupervisor) shutdown(ctx context.Context, proc ports.Process, conn *jsonrpc.Conn) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StopTimeout)
	defer cancel()

	if err := conn.Call(sctx, "shutdown", nil, nil); err != nil {
		s.opts.Sink.Appendf("Shutdown request failed: %v", err)
	} else if err := conn.Notify(sctx, "exit", nil); err != nil {
		s.opts.Sink.Appendf("Exit notification failed: %v", err)
	}

	select {
	case <-proc.Done():
	case <-sctx.Done():
		s.opts.Sink.Appendf("Language server did not exit within %s; killing pid %d", s.opts.StopTimeout, proc.PID())
		s.kill(proc)
	}
	conn.Close()
}

func (s *ProcessSupervisor) kill(proc ports.Process) {
	if err := proc.Kill(); err != nil {
		s.opts.Sink.Appendf("Failed to kill language server: %v", err)
	}
	<-proc.Done()
}

// watch turns an exit nobody asked for into a Failed transition.
func (s *ProcessSupervisor) watch(proc ports.Process, conn *jsonrpc.Conn) {
	<-proc.Done()

	s.mu.Lock()
	if s.stopping || s.state != domain.StateRunning {
		s.mu.Unlock()
		return
	}
	err := fmt.Errorf("%w (exit code %d)", domain.ErrServerExited, proc.ExitCode())
	fire := s.transitionLocked(domain.StateFailed, err)
	s.mu.Unlock()
	fire()

	conn.Close()
	s.opts.Sink.Appendf("Language server exited unexpectedly with code %d", proc.ExitCode())
	s.opts.Notifier.Error(fmt.Sprintf("GBNF LSP server exited unexpectedly (code %d)", proc.ExitCode()))
}

// release closes the server's stdout once the process has exited and the
// connection has stopped reading from it.
func release(proc ports.Process, conn *jsonrpc.Conn) {
	<-proc.Done()
	<-conn.Done()
	_ = proc.Stdout().Close()
}

func (s *ProcessSupervisor) pumpStderr(proc ports.Process) {
	defer proc.Stderr().Close()
	scanner := bufio.NewScanner(proc.Stderr())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.opts.Sink.AppendLine("[server] " + scanner.Text())
	}
}

func (s *ProcessSupervisor) registerHandlers(conn *jsonrpc.Conn) {
	conn.OnNotification("window/logMessage", func(method string, params json.RawMessage) {
		var p struct {
			Type    int    `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		s.opts.Sink.AppendLine(fmt.Sprintf("[%s] %s", messageTypeName(p.Type), p.Message))
	})

	conn.OnNotification("window/showMessage", func(method string, params json.RawMessage) {
		var p struct {
			Type    int    `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		s.opts.Sink.AppendLine(fmt.Sprintf("[%s] %s", messageTypeName(p.Type), p.Message))
		if p.Type == messageTypeError {
			s.opts.Notifier.Error(p.Message)
		} else {
			s.opts.Notifier.Info(p.Message)
		}
	})

	conn.OnNotification("textDocument/publishDiagnostics", func(method string, params json.RawMessage) {
		var p struct {
			URI         string `json:"uri"`
			Diagnostics []struct {
				Range struct {
					Start struct {
						Line      int `json:"line"`
						Character int `json:"character"`
					} `json:"start"`
				} `json:"range"`
				Severity int    `json:"severity"`
				Message  string `json:"message"`
			} `json:"diagnostics"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		s.opts.Sink.Appendf("Diagnostics for %s: %d", p.URI, len(p.Diagnostics))
		for _, d := range p.Diagnostics {
			s.opts.Sink.Appendf("  %d:%d [%s] %s", d.Range.Start.Line+1, d.Range.Start.Character+1, severityName(d.Severity), d.Message)
		}
	})

	conn.OnNotification("*", func(method string, params json.RawMessage) {
		s.opts.Sink.Appendf("Ignoring server notification %s", method)
	})
}

func messageTypeName(t int) string {
	switch t {
	case messageTypeError:
		return "error"
	case messageTypeWarning:
		return "warn"
	case messageTypeInfo:
		return "info"
	case messageTypeLog:
		return "log"
	default:
		return "message"
	}
}

// severityName labels a diagnostic severity; servers may omit it
func severityName(severity int) string {
	switch severity {
	case 1:
		return "error"
	case 2:
		return "warning"
	case 3:
		return "info"
	case 4:
		return "hint"
	default:
		return "error"
	}
}

// checkExecutable fails with MissingBinaryError unless binary.Path is a file
// that can be executed.
func checkExecutable(binary domain.BinaryDescriptor) error {
	info, err := os.Stat(binary.Path)
	if err != nil {
		return &domain.MissingBinaryError{Path: binary.Path, Err: err}
	}
	if info.IsDir() {
		return &domain.MissingBinaryError{Path: binary.Path, Err: errors.New("path is a directory")}
	}
	if !binary.Platform.IsWindows() && info.Mode().Perm()&0111 == 0 {
		return &domain.MissingBinaryError{Path: binary.Path, Err: errors.New("binary is not executable")}
	}
	return nil
}

type nopSink struct{}

func (nopSink) AppendLine(string)              {}
func (nopSink) Appendf(string, ...interface{}) {}

type nopNotifier struct{}

func (nopNotifier) Info(string)  {}
func (nopNotifier) Error(string) {}

var (
	_ ports.Supervisor    = (*ProcessSupervisor)(nil)
	_ ports.MessageSender = (*ProcessSupervisor)(nil)
)
