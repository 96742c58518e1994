package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"

	configinfra "gbnf.dev/client/internal/infrastructure/config"
	"gbnf.dev/client/internal/interfaces/di"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// App carries what every command needs to build its container
type App struct {
	// Base is copied for every container; tests set Env, Platform and HTTPClient
	Base di.Options

	configPath string
	flags      *configinfra.FlagLoader
	container  *di.Container
}

// NewApp creates an App with the given container defaults
func NewApp(base di.Options) *App {
	return &App{Base: base}
}

// Container builds the DI container on first use. console receives channel
// lines and notify receives notifications; nil means stderr for both.
func (a *App) Container(ctx context.Context, console, notify io.Writer) (*di.Container, error) {
	if a.container != nil {
		return a.container, nil
	}

	opts := a.Base
	opts.ConfigPath = a.configPath
	opts.Flags = a.flags
	opts.Version = Version
	if console != nil {
		opts.Console = console
	}
	if notify != nil {
		opts.NotifyTo = notify
	}

	container, err := di.NewContainer(ctx, opts)
	if err != nil {
		return nil, err
	}
	a.container = container
	return container, nil
}

func (a *App) shutdown() {
	if a.container != nil {
		_ = a.container.Shutdown()
		a.container = nil
	}
}

// NewRootCommand builds the gbnf-client command tree
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gbnf-client",
		Short: "GBNF language server client",
		Long: `gbnf-client locates, downloads and supervises the GBNF language server
for the current platform and connects to it over stdio.

Grammar files passed to 'run' are opened on the server and its log
messages and diagnostics are printed to the output channel.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			flags, err := collectFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to apply configuration overrides: %w", err)
			}
			app.flags = flags
			app.configPath, _ = cmd.Flags().GetString("config")
			return nil
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file path (default is the per-user gbnf-client/config.yaml)")
	pf.Bool("debug", false, "Enable debug logging")
	pf.String("install-root", "", "Directory holding the server binary cache")
	pf.String("base-name", "", "Base name of the server binary")
	pf.String("release-url", "", "Base URL of the release downloads")
	pf.String("server-version", "", "Server release version, overriding the manifest")
	pf.Duration("start-timeout", 0, "How long to wait for the server to initialize")

	rootCmd.AddCommand(NewResolveCommand(app))
	rootCmd.AddCommand(NewProvisionCommand(app))
	rootCmd.AddCommand(NewRunCommand(app))
	rootCmd.AddCommand(NewConfigCommand(app))
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// collectFlags records explicitly set persistent flags as configuration
// entries. Unchanged flags never override lower-priority sources.
func collectFlags(cmd *cobra.Command) (*configinfra.FlagLoader, error) {
	loader := configinfra.NewFlagLoader()
	flags := cmd.Flags()

	stringFlags := map[string]string{
		"install-root":   "install_root",
		"base-name":      "base_name",
		"release-url":    "release_base_url",
		"server-version": "version",
	}
	for flag, key := range stringFlags {
		if !flags.Changed(flag) {
			continue
		}
		value, err := flags.GetString(flag)
		if err != nil {
			return nil, err
		}
		loader.Set(key, flag, value)
	}

	if flags.Changed("debug") {
		debugOn, err := flags.GetBool("debug")
		if err != nil {
			return nil, err
		}
		loader.Set("debug", "debug", debugOn)
	}
	if flags.Changed("start-timeout") {
		timeout, err := flags.GetDuration("start-timeout")
		if err != nil {
			return nil, err
		}
		loader.Set("start_timeout", "start-timeout", timeout)
	}
	return loader, nil
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// Execute runs the command tree and exits non-zero on error
func Execute(ctx context.Context) {
	if err := executeApp(ctx, NewApp(di.Options{}), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// executeApp runs the command tree for app. The container is shut down
// whether or not the command succeeds, since cobra skips post-run hooks
// after an error.
func executeApp(ctx context.Context, app *App, args []string, stdout, stderr io.Writer) error {
	defer app.shutdown()

	rootCmd := NewRootCommand(app)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.ExecuteContext(ctx)
}

// settleDelay is how long 'run --once' waits for server output after opening files
var settleDelay = time.Second
