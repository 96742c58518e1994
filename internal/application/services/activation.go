package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gbnf.dev/client/internal/core/domain"
	"gbnf.dev/client/internal/core/ports"
	"gbnf.dev/client/internal/core/session"
)

// BinaryResolver maps a platform to the binary location in the cache
type BinaryResolver interface {
	Resolve(p domain.PlatformDescriptor) (domain.BinaryDescriptor, error)
}

// ActivatorOptions wires an Activator
type ActivatorOptions struct {
	Resolver     BinaryResolver
	Platform     domain.PlatformDescriptor
	Provisioner  ports.Provisioner
	Spawner      ports.ShellSpawner
	Sink         ports.OutputSink
	Notifier     ports.Notifier
	Selector     domain.DocumentSelector
	Client       ClientInfo
	RootURI      string
	StartTimeout time.Duration
	StopTimeout  time.Duration
	Observers    []StateObserver
}

// Activator runs one activation: resolve, provision, start. Every call
// builds a new session with a new supervisor.
type Activator struct {
	opts ActivatorOptions
}

// NewActivator creates an activator
func NewActivator(opts ActivatorOptions) *Activator {
	if opts.Sink == nil {
		opts.Sink = nopSink{}
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	return &Activator{opts: opts}
}

// Activate returns the new session even on error so the caller can
// deactivate it. Errors have already been logged and shown to the user.
func (a *Activator) Activate(ctx context.Context, mode domain.LaunchMode) (*session.ClientSession, error) {
	sink := a.opts.Sink
	sess := session.NewClientSession(sink)
	sink.AppendLine("Extension activating...")

	binary, err := a.opts.Resolver.Resolve(a.opts.Platform)
	if err != nil {
		return sess, a.activationFailed(err)
	}

	if a.opts.Provisioner != nil {
		binary, err = a.opts.Provisioner.Ensure(ctx, binary)
		if err != nil {
			return sess, a.activationFailed(err)
		}
	}
	sink.AppendLine(fmt.Sprintf("Found LSP server at: %s", binary.Path))

	supervisor := NewProcessSupervisor(SupervisorOptions{
		Binary:       binary,
		Spawner:      a.opts.Spawner,
		Sink:         sink,
		Notifier:     a.opts.Notifier,
		Client:       a.opts.Client,
		RootURI:      a.opts.RootURI,
		StartTimeout: a.opts.StartTimeout,
		StopTimeout:  a.opts.StopTimeout,
	})
	for _, observer := range a.opts.Observers {
		supervisor.OnStateChange(observer)
	}
	bridge := NewProtocolBridge(a.opts.Selector, supervisor)

	if err := sess.Attach(binary, supervisor, bridge); err != nil {
		return sess, a.activationFailed(err)
	}

	sink.AppendLine("Starting LSP client...")
	if err := supervisor.Start(ctx, mode); err != nil {
		if errors.Is(err, domain.ErrStopRequested) {
			sink.AppendLine("LSP client start cancelled")
			return sess, err
		}
		sink.AppendLine(fmt.Sprintf("Error starting LSP client: %s", err))
		sink.AppendLine(domain.Trace(err))
		a.opts.Notifier.Error(fmt.Sprintf("Failed to start GBNF LSP: %s", err))
		return sess, err
	}

	sink.AppendLine("LSP client started successfully")
	a.opts.Notifier.Info("GBNF LSP connected successfully")
	return sess, nil
}

func (a *Activator) activationFailed(err error) error {
	a.opts.Sink.AppendLine(fmt.Sprintf("Activation error: %s", err))
	a.opts.Sink.AppendLine(domain.Trace(err))
	a.opts.Notifier.Error(fmt.Sprintf("GBNF LSP activation error: %s", err))
	return err
}
