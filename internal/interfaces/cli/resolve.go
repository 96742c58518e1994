package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewResolveCommand creates the resolve command
func NewResolveCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Show which server binary this platform uses",
		Long: `Print the platform tag, the canonical binary name and the cache path
of the language server binary for this machine, and the manifest the
server version is read from. Nothing is downloaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := app.Container(cmd.Context(), io.Discard, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			binary, err := container.Resolver.Resolve(container.Platform)
			if err != nil {
				return err
			}

			installed := "no"
			if info, err := os.Stat(binary.Path); err == nil && !info.IsDir() {
				installed = "yes"
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Platform:  %s\n", binary.Platform)
			fmt.Fprintf(out, "Base name: %s\n", container.Resolver.BaseName())
			fmt.Fprintf(out, "Binary:    %s\n", binary.CanonicalName)
			fmt.Fprintf(out, "Path:      %s\n", binary.Path)
			fmt.Fprintf(out, "Installed: %s\n", installed)
			fmt.Fprintf(out, "Manifest:  %s\n", container.Versions.Path())
			return nil
		},
	}
}
