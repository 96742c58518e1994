package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"gbnf.dev/client/internal/core/domain"
	"gbnf.dev/client/internal/core/ports"
	"gbnf.dev/client/internal/core/session"
	"gbnf.dev/client/internal/infrastructure/watch"
	"gbnf.dev/client/internal/interfaces/di"
)

// RunFlags holds command-line flags for the run command
type RunFlags struct {
	DebugServer bool
	TUI         bool
	Once        bool
	Watch       bool
}

// NewRunCommand creates the run command
func NewRunCommand(app *App) *cobra.Command {
	flags := &RunFlags{}

	cmd := &cobra.Command{
		Use:   "run [grammar files...]",
		Short: "Start the language server and open grammar files on it",
		Long: `Resolve and provision the language server for this platform, start it,
and open the given grammar files. Server log messages and diagnostics
are printed until the command is interrupted.

Examples:
  gbnf-client run json.gbnf              # Watch diagnostics until Ctrl+C
  gbnf-client run --once *.gbnf          # Print diagnostics and exit
  gbnf-client run --debug-server --tui   # Debug launch with a status view`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.TUI {
				return runWithStatusView(cmd.Context(), app, flags, args)
			}
			return runClient(cmd, app, flags, args)
		},
	}

	cmd.Flags().BoolVar(&flags.DebugServer, "debug-server", false, "Launch the server with its debug configuration")
	cmd.Flags().BoolVar(&flags.TUI, "tui", false, "Show a live status view")
	cmd.Flags().BoolVar(&flags.Once, "once", false, "Exit after the opened files have been processed")
	cmd.Flags().BoolVar(&flags.Watch, "watch", true, "Forward on-disk edits of opened files to the server")
	cmd.MarkFlagsMutuallyExclusive("tui", "once")

	return cmd
}

func launchMode(flags *RunFlags) domain.LaunchMode {
	if flags.DebugServer {
		return domain.LaunchDebug
	}
	return domain.LaunchRun
}

func runClient(cmd *cobra.Command, app *App, flags *RunFlags, files []string) error {
	ctx := cmd.Context()
	container, err := app.Container(ctx, cmd.ErrOrStderr(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	failed := make(chan error, 1)
	activator := container.NewActivator(nil, func(from, to domain.LifecycleState, err error) {
		if from == domain.StateRunning && to == domain.StateFailed {
			select {
			case failed <- err:
			default:
			}
		}
	})

	sess, err := activator.Activate(ctx, launchMode(flags))
	defer sess.Deactivate(context.WithoutCancel(ctx))
	if errors.Is(err, domain.ErrStopRequested) && ctx.Err() != nil {
		container.Channel.AppendLine("Interrupted, shutting down")
		return nil
	}
	if err != nil {
		return fmt.Errorf("activation failed: %w", err)
	}

	opened, err := openDocuments(ctx, container, sess.Bridge(), files)
	defer closeDocuments(context.WithoutCancel(ctx), sess.Bridge(), opened)
	if err != nil {
		return err
	}

	var settle <-chan time.Time
	if flags.Once {
		settle = time.After(settleDelay)
	} else if flags.Watch && len(opened) > 0 {
		stopWatch := watchDocuments(ctx, container, sess.Bridge(), opened)
		defer stopWatch()
	}

	select {
	case <-ctx.Done():
		container.Channel.AppendLine("Interrupted, shutting down")
		return nil
	case <-settle:
		return nil
	case err := <-failed:
		return err
	}
}

// openedDocument is a document the server accepted and the file it came from
type openedDocument struct {
	path string
	doc  domain.Document
}

// openDocuments opens every file on the server and returns the documents
// that were forwarded
func openDocuments(ctx context.Context, container *di.Container, bridge ports.DocumentBridge, files []string) ([]openedDocument, error) {
	var opened []openedDocument
	for _, path := range files {
		text, err := os.ReadFile(path)
		if err != nil {
			return opened, fmt.Errorf("failed to read %s: %w", path, err)
		}
		uri, err := domain.FileURI(path)
		if err != nil {
			return opened, fmt.Errorf("failed to build URI for %s: %w", path, err)
		}

		doc := domain.Document{
			URI:        uri,
			LanguageID: container.Config.LanguageFor(path),
			Version:    1,
			Text:       string(text),
		}
		forwarded, err := bridge.DidOpen(ctx, doc)
		if err != nil {
			return opened, fmt.Errorf("failed to open %s: %w", path, err)
		}
		if !forwarded {
			container.Channel.Appendf("Skipping %s: not a %s document (extensions: %s)",
				path, container.Config.LanguageID, strings.Join(container.Config.Extensions, ", "))
			continue
		}
		container.Channel.Debugf("Opened %s", uri)
		opened = append(opened, openedDocument{path: path, doc: doc})
	}
	return opened, nil
}

func closeDocuments(ctx context.Context, bridge ports.DocumentBridge, docs []openedDocument) {
	for _, opened := range docs {
		if _, err := bridge.DidClose(ctx, opened.doc); err != nil {
			return
		}
	}
}

// watchDocuments forwards edits of the opened files until the returned stop
// function is called.
func watchDocuments(ctx context.Context, container *di.Container, bridge ports.DocumentBridge, docs []openedDocument) func() {
	watcher := watch.NewDocumentWatcher(bridge, container.Channel)
	for _, opened := range docs {
		if err := watcher.Track(opened.path, opened.doc); err != nil {
			container.Channel.Appendf("Not watching %s: %v", opened.path, err)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := watcher.Run(watchCtx); err != nil {
			container.Channel.Appendf("File watching disabled: %v", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// noticeWriter turns notifier output into status view messages
type noticeWriter struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

func (w *noticeWriter) attach(send func(tea.Msg)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.send = send
}

func (w *noticeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	send := w.send
	w.mu.Unlock()
	if send != nil {
		for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
			send(noticeMsg(line))
		}
	}
	return len(p), nil
}

func runWithStatusView(ctx context.Context, app *App, flags *RunFlags, files []string) error {
	notices := &noticeWriter{}
	container, err := app.Container(ctx, io.Discard, notices)
	if err != nil {
		return err
	}

	lines, unsubscribe := container.Channel.Subscribe(256)
	defer unsubscribe()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(newStatusModel(container.Channel.Name(), time.Now()),
		tea.WithAltScreen(), tea.WithContext(runCtx))
	notices.attach(program.Send)

	go func() {
		for line := range lines {
			program.Send(lineMsg(line))
		}
	}()

	activator := container.NewActivator(nil, func(from, to domain.LifecycleState, err error) {
		program.Send(stateMsg{state: to, err: err})
	})

	var (
		mu     sync.Mutex
		sess   *session.ClientSession
		opened []openedDocument
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s, err := activator.Activate(runCtx, launchMode(flags))
		mu.Lock()
		sess = s
		mu.Unlock()

		program.Send(activatedMsg{sessionID: s.ID().String(), binaryPath: s.Binary().Path, err: err})
		if err != nil {
			return
		}

		docs, err := openDocuments(runCtx, container, s.Bridge(), files)
		mu.Lock()
		opened = docs
		mu.Unlock()
		if err != nil {
			container.Channel.Appendf("Error opening documents: %s", err)
		}
		if flags.Watch && len(docs) > 0 {
			stopWatch := watchDocuments(runCtx, container, s.Bridge(), docs)
			<-runCtx.Done()
			stopWatch()
		}
	}()

	_, runErr := program.Run()
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if sess != nil {
		stopCtx := context.WithoutCancel(ctx)
		if bridge := sess.Bridge(); bridge != nil {
			closeDocuments(stopCtx, bridge, opened)
		}
		sess.Deactivate(stopCtx)
	}

	if runErr != nil && ctx.Err() == nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("status view failed: %w", runErr)
	}
	return nil
}
