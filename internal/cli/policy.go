package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/picklr-io/craftstack/internal/engine"
)

func (c *RootCommand) newPolicyCheckCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "policy-check",
		Short: "Check the game server against the policy pack",
		Long: `Evaluates every declared resource against the built-in pack and, with
--policy, the rules of a JSON policy file.

Example policy file:
  {
    "rules": [
      {
        "name": "require-key",
        "description": "Instances must be reachable over SSH",
        "resource_type": "aws:ec2/instance:Instance",
        "condition": "require_property",
        "property": "keyName",
        "severity": "error"
      }
    ]
  }

Rules with severity "warning" never block; "error" always blocks; rules
without a severity follow --enforcement.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(preview.Policy, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode report: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			} else {
				renderReport(cmd.OutOrStdout(), preview.Policy)
			}
			return preview.Policy.Err()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}
