package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/picklr-io/craftstack/internal/engine"
)

func (c *RootCommand) newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the declarations",
		Long: `Reads the key, cloud-init and README files, declares every resource and
checks that all references resolve and the graph is acyclic.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Validating configuration...")

			fmt.Fprint(out, "Checking declarations... ")
			d, err := c.deployment()
			if err != nil {
				fmt.Fprintln(out, "FAILED")
				return fmt.Errorf("validation failed: %w", err)
			}
			fmt.Fprintln(out, "OK")

			fmt.Fprint(out, "Checking dependency graph... ")
			if _, err := engine.BuildDAG(d); err != nil {
				fmt.Fprintln(out, "FAILED")
				return fmt.Errorf("validation failed: %w", err)
			}
			fmt.Fprintln(out, "OK")

			fmt.Fprintf(out, "\nConfiguration is valid! %d resources, %d outputs.\n", len(d.Resources), len(d.Outputs))
			return nil
		},
	}
}
