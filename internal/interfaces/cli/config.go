package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	configinfra "gbnf.dev/client/internal/infrastructure/config"
)

// NewConfigCommand creates the config command
func NewConfigCommand(app *App) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration settings",
		Long: `Inspect the effective gbnf-client configuration.

Values come from command-line flags, GBNF_* environment variables and
the YAML config file, in that order of precedence, on top of built-in
defaults.`,
	}

	configCmd.AddCommand(NewConfigShowCommand(app))
	configCmd.AddCommand(NewConfigPathCommand(app))

	return configCmd
}

// NewConfigShowCommand creates the show subcommand
func NewConfigShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration and where each value came from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := app.Container(cmd.Context(), io.Discard, cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			printConfig(cmd.OutOrStdout(), container.Config)
			return nil
		},
	}
}

func printConfig(out io.Writer, cfg *configinfra.Config) {
	version := cfg.Version
	if version == "" {
		version = "(from manifest)"
	}
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = "(not set)"
	}

	fmt.Fprintln(out, "Current Configuration:")
	fmt.Fprintf(out, "Install Root: %s\n", cfg.InstallRoot)
	fmt.Fprintf(out, "Base Name: %s\n", cfg.BaseName)
	fmt.Fprintf(out, "Language: %s (%s)\n", cfg.LanguageID, strings.Join(cfg.Extensions, ", "))
	fmt.Fprintf(out, "Release URL: %s\n", cfg.ReleaseBaseURL)
	fmt.Fprintf(out, "Manifest: %s\n", cfg.EffectiveManifestPath())
	fmt.Fprintf(out, "Server Version: %s\n", version)
	fmt.Fprintf(out, "Timeouts: download %s, start %s, stop %s\n", cfg.DownloadTimeout, cfg.StartTimeout, cfg.StopTimeout)
	fmt.Fprintf(out, "Log File: %s\n", logFile)
	fmt.Fprintf(out, "Debug: %t\n", cfg.Debug)

	sources := cfg.Sources()
	if len(sources) == 0 {
		return
	}
	keys := make([]string, 0, len(sources))
	for key := range sources {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Fprintln(out, "\nSources:")
	for _, key := range keys {
		entry := sources[key]
		fmt.Fprintf(out, "  %s: %s (%s)\n", key, entry.Source, entry.SourcePath)
	}
}

// NewConfigPathCommand creates the path subcommand
func NewConfigPathCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = configinfra.DefaultConfigPath()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file path: %s\n", path)
			return nil
		},
	}
}
