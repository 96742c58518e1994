package di

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"gbnf.dev/client/internal/application/services"
	"gbnf.dev/client/internal/core/domain"
	"gbnf.dev/client/internal/core/platform"
	"gbnf.dev/client/internal/core/ports"
	configinfra "gbnf.dev/client/internal/infrastructure/config"
	"gbnf.dev/client/internal/infrastructure/logging"
	"gbnf.dev/client/internal/infrastructure/manifest"
	"gbnf.dev/client/internal/infrastructure/process"
	"gbnf.dev/client/internal/infrastructure/provisioning"
)

// Options controls how the container is assembled
type Options struct {
	// ConfigPath is the YAML file to read; empty uses the default location
	ConfigPath string
	// Flags carries values set explicitly on the command line
	Flags *configinfra.FlagLoader
	// Env replaces the process environment when non-nil (tests)
	Env map[string]string
	// Version is the client build version
	Version string
	// Console receives channel lines; nil means stderr, io.Discard silences it
	Console io.Writer
	// NotifyTo receives notifications; nil means stderr
	NotifyTo io.Writer
	// Platform overrides the host platform (tests)
	Platform *domain.PlatformDescriptor
	// HTTPClient overrides the download client (tests)
	HTTPClient *http.Client
}

// Container holds all application dependencies
type Container struct {
	Config      *configinfra.Config
	Channel     *logging.Channel
	Notifier    ports.Notifier
	Platform    domain.PlatformDescriptor
	Resolver    *platform.Resolver
	Versions    *manifest.PackageManifest
	Provisioner *provisioning.Provisioner
	Spawner     *process.ShellExecutor
	Version     string
}

// NewContainer loads configuration and wires the infrastructure
func NewContainer(ctx context.Context, opts Options) (*Container, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = configinfra.DefaultConfigPath()
	}

	env := configinfra.NewEnvLoader()
	if opts.Env != nil {
		env = configinfra.NewEnvLoaderFrom(opts.Env)
	}
	loaders := []configinfra.Loader{configinfra.NewFileLoader(configPath), env}
	if opts.Flags != nil {
		loaders = append(loaders, opts.Flags)
	}

	cfg, err := configinfra.Load(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}

	c := &Container{Config: cfg, Version: version}

	channelOpts := logging.ChannelOptions{
		Name:   configinfra.DefaultChannelName,
		Writer: opts.Console,
		Debug:  cfg.Debug,
	}
	if cfg.Log.File != "" {
		channelOpts.File = &logging.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}
	}
	c.Channel = logging.NewChannel(channelOpts)
	c.Notifier = logging.NewTerminalNotifier(opts.NotifyTo)

	c.Platform = platform.Host()
	if opts.Platform != nil {
		c.Platform = *opts.Platform
	}
	c.Resolver = platform.NewResolver(cfg.InstallRoot, cfg.BaseName)
	c.Versions = manifest.NewPackageManifest(cfg.EffectiveManifestPath()).WithOverride(cfg.Version)

	c.Provisioner = provisioning.NewProvisioner(provisioning.Options{
		ReleaseBaseURL: cfg.ReleaseBaseURL,
		Versions:       c.Versions,
		HTTPClient:     opts.HTTPClient,
		Timeout:        cfg.DownloadTimeout,
		UserAgent:      "gbnf-client/" + version,
		Sink:           c.Channel,
		Notifier:       c.Notifier,
	})
	c.Spawner = process.NewShellExecutor()

	c.Channel.Debugf("Configuration loaded from %s (install root %s)", configPath, cfg.InstallRoot)
	return c, nil
}

// NewActivator builds an activator using notifier for user-visible messages.
// A nil notifier uses the container's terminal notifier.
func (c *Container) NewActivator(notifier ports.Notifier, observers ...services.StateObserver) *services.Activator {
	if notifier == nil {
		notifier = c.Notifier
	}

	rootURI := ""
	if wd, err := os.Getwd(); err == nil {
		if uri, err := domain.FileURI(wd); err == nil {
			rootURI = uri
		}
	}

	return services.NewActivator(services.ActivatorOptions{
		Resolver:     c.Resolver,
		Platform:     c.Platform,
		Provisioner:  c.Provisioner,
		Spawner:      c.Spawner,
		Sink:         c.Channel,
		Notifier:     notifier,
		Selector:     domain.NewFileSelector(c.Config.LanguageID),
		Client:       services.ClientInfo{Name: "gbnf-client", Version: c.Version},
		RootURI:      rootURI,
		StartTimeout: c.Config.StartTimeout,
		StopTimeout:  c.Config.StopTimeout,
		Observers:    observers,
	})
}

// Shutdown releases container resources
func (c *Container) Shutdown() error {
	if c.Channel != nil {
		return c.Channel.Close()
	}
	return nil
}
