package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewProvisionCommand creates the provision command
func NewProvisionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Download the server binary for this platform if it is missing",
		Long: `Make sure the language server binary for this platform is in the cache
and executable, downloading the release named by the manifest (or by
--server-version) when it is not.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			container, err := app.Container(ctx, cmd.ErrOrStderr(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			binary, err := container.Resolver.Resolve(container.Platform)
			if err != nil {
				return err
			}
			binary, err = container.Provisioner.Ensure(ctx, binary)
			if err != nil {
				return fmt.Errorf("provisioning failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Server binary ready: %s\n", binary.Path)
			return nil
		},
	}
}
