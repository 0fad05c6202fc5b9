package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/picklr-io/craftstack/internal/engine"
)

func (c *RootCommand) newPreviewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Show what up would create",
		Long: `Renders every resource in creation order with references shown as
` + engine.Computed + ` and runs the policy pack over the result.

No backend is contacted. The command fails when the policy report would
block 'craftstack up'.`,
		Args: cobra.NoArgs,
		RunE: c.runPreview,
	}
}

func (c *RootCommand) runPreview(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	d, err := c.deployment()
	if err != nil {
		return err
	}
	pack, err := c.pack()
	if err != nil {
		return err
	}

	preview, err := engine.NewEngine(nil, pack).Preview(cmd.Context(), d)
	if err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}

	fmt.Fprintf(out, "craftstack will perform the following actions on stack %s:\n", d.Stack)
	renderPlan(out, preview.Plan)
	renderPlanSummary(out, preview.Plan)
	renderReport(out, preview.Policy)

	return preview.Policy.Err()
}
