package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"gbnf.dev/client/internal/core/domain"
	"gbnf.dev/client/internal/core/ports"
	"gbnf.dev/client/internal/jsonrpc"
)

type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSink) AppendLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *recordingSink) Appendf(format string, args ...interface{}) {
	s.AppendLine(fmt.Sprintf(format, args...))
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *recordingSink) contains(substr string) bool {
	for _, line := range s.snapshot() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

type recordingNotifier struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (n *recordingNotifier) Info(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, message)
}

func (n *recordingNotifier) Error(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

func (n *recordingNotifier) snapshot() ([]string, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.infos...), append([]string(nil), n.errors...)
}

// fakeProcess is an in-memory process whose streams are pipes
type fakeProcess struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	stdoutClosed atomic.Bool
	stderrClosed atomic.Bool

	once     sync.Once
	mu       sync.Mutex
	exitCode int
	killed   bool
	done     chan struct{}
}

func newFakeProcess() *fakeProcess {
	p := &fakeProcess{done: make(chan struct{})}
	p.stdinR, p.stdinW = io.Pipe()
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	return p
}

func (p *fakeProcess) exit(code int) {
	p.once.Do(func() {
		p.mu.Lock()
		p.exitCode = code
		p.mu.Unlock()
		p.stdoutW.Close()
		p.stderrW.Close()
		p.stdinR.Close()
		close(p.done)
	})
}

func (p *fakeProcess) PID() int { return 4242 }

func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdinW }

func (p *fakeProcess) Stdout() io.ReadCloser { return trackedReader{p.stdoutR, &p.stdoutClosed} }

func (p *fakeProcess) Stderr() io.ReadCloser { return trackedReader{p.stderrR, &p.stderrClosed} }

// trackedReader records that the supervisor released a stream
type trackedReader struct {
	*io.PipeReader
	closed *atomic.Bool
}

func (r trackedReader) Close() error {
	r.closed.Store(true)
	return r.PipeReader.Close()
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Wait() error {
	<-p.done
	if code := p.ExitCode(); code != 0 {
		return fmt.Errorf("exit status %d", code)
	}
	return nil
}

func (p *fakeProcess) Terminate() error {
	p.exit(143)
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.exit(137)
	return nil
}

func (p *fakeProcess) IsRunning() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *fakeProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *fakeProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// fakeServer scripts the language server side of a fakeProcess
type fakeServer struct {
	initGate       chan struct{}
	failInit       bool
	ignoreShutdown bool
	stderrLines    []string
	afterInit      []string

	received chan *jsonrpc.Message
}

func newFakeServer() *fakeServer {
	return &fakeServer{received: make(chan *jsonrpc.Message, 64)}
}

func (s *fakeServer) serve(p *fakeProcess) {
	go func() {
		for _, line := range s.stderrLines {
			fmt.Fprintln(p.stderrW, line)
		}
	}()

	go func() {
		reader := bufio.NewReader(p.stdinR)
		write := func(raw string) { _ = jsonrpc.WriteFrame(p.stdoutW, []byte(raw)) }

		for {
			body, err := jsonrpc.ReadFrame(reader)
			if err != nil {
				return
			}
			msg, err := jsonrpc.Parse(body)
			if err != nil {
				continue
			}
			select {
			case s.received <- msg:
			default:
			}

			switch msg.Method() {
			case "initialize":
				if s.initGate != nil {
					<-s.initGate
				}
				if s.failInit {
					write(`{"jsonrpc":"2.0","id":` + string(msg.ID()) + `,"error":{"code":-32603,"message":"grammar engine unavailable"}}`)
					continue
				}
				write(`{"jsonrpc":"2.0","id":` + string(msg.ID()) + `,"result":{"capabilities":{"textDocumentSync":1},"serverInfo":{"name":"fake-gbnf","version":"0.0.1"}}}`)
			case "initialized":
				for _, raw := range s.afterInit {
					write(raw)
				}
			case "shutdown":
				if !s.ignoreShutdown {
					write(`{"jsonrpc":"2.0","id":` + string(msg.ID()) + `,"result":null}`)
				}
			case "exit":
				p.exit(0)
				return
			}
		}
	}()
}

// methods drains received messages and returns their method names
func (s *fakeServer) methods() []string {
	var out []string
	for {
		select {
		case msg := <-s.received:
			out = append(out, msg.Method())
		default:
			return out
		}
	}
}

type fakeSpawner struct {
	mu      sync.Mutex
	server  *fakeServer
	err     error
	calls   int
	args    [][]string
	process *fakeProcess
}

func (f *fakeSpawner) Spawn(ctx context.Context, executable string, args []string) (ports.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.args = append(f.args, append([]string{executable}, args...))
	if f.err != nil {
		return nil, f.err
	}
	p := newFakeProcess()
	f.process = p
	f.server.serve(p)
	return p, nil
}

func (f *fakeSpawner) lastProcess() *fakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.process
}

// installedBinary writes an executable placeholder and returns its descriptor
func installedBinary(t *testing.T) domain.BinaryDescriptor {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "bin")
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, "linux-x64-gbnf-engine")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0755))
	return domain.BinaryDescriptor{
		CanonicalName: "linux-x64-gbnf-engine",
		Path:          path,
		Platform:      domain.PlatformDescriptor{OperatingSystem: domain.OSLinux, Architecture: domain.ArchX64},
		Executable:    true,
	}
}

type transition struct {
	from, to domain.LifecycleState
}

type transitionRecorder struct {
	mu   sync.Mutex
	seen []transition
}

func (r *transitionRecorder) observe(from, to domain.LifecycleState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, transition{from, to})
}

func (r *transitionRecorder) transitions() []transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transition(nil), r.seen...)
}

var errSpawnRefused = errors.New("exec format error")
