package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/picklr-io/craftstack/internal/engine"
)

func (c *RootCommand) newDestroyCommand() *cobra.Command {
	var continueOnError bool

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Destroy the game server",
		Long: `Deletes every resource of the stack in reverse dependency order.

This command is the inverse of 'craftstack up'. The AWS backend finds the
resources through their craftstack:stack and craftstack:name tags, so it
works after a partial or failed up. The image lookup is never deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := c.deployment()
			if err != nil {
				return err
			}
			backend, err := c.backend(cmd.Context())
			if err != nil {
				return err
			}

			eng := engine.NewEngine(backend, nil)
			eng.ContinueOnError = continueOnError

			fmt.Fprintf(cmd.ErrOrStderr(), "Destroying stack %s with the %s backend...\n", d.Stack, c.backendName())
			if err := eng.DestroyWithCallback(cmd.Context(), d, progressPrinter(cmd.ErrOrStderr())); err != nil {
				return fmt.Errorf("destroy failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "\nDestroy complete! All resources have been deleted.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "Keep deleting after a failure and report all errors at the end")
	return cmd
}
