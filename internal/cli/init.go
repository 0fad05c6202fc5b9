package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const projectTemplate = `// craftstack project settings. Every property is optional.
stack = "dev"
backend = "aws"
region = "eu-central-1"
instanceType = "t3.xlarge"

// keyName defaults to "minecraft-<stack>"
publicKeyPath = "minecraft.pub"
userDataPath = "cloud-init.yaml"
readmePath = "Pulumi.README.md"

tags {
  ["Project"] = "minecraft"
}

policy {
  enforcementLevel = "mandatory"
}
`

const cloudInitTemplate = `#cloud-config
package_update: true
packages:
  - openjdk-17-jre-headless
`

const readmeTemplate = `# Minecraft server

Connect to the server on port 25565 of the exported public IP.
`

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new craftstack project",
		Long: `Creates ` + DefaultProjectFile + `, a starter cloud-init file and a README in the
current directory. Existing files are left untouched. The SSH public key
(minecraft.pub) must be provided separately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, f := range []struct{ path, content string }{
				{DefaultProjectFile, projectTemplate},
				{"cloud-init.yaml", cloudInitTemplate},
				{"Pulumi.README.md", readmeTemplate},
			} {
				if _, err := os.Stat(f.path); err == nil {
					fmt.Fprintf(out, "%s already exists, skipping\n", f.path)
					continue
				}
				if err := os.WriteFile(f.path, []byte(f.content), 0o644); err != nil {
					return fmt.Errorf("failed to create %s: %w", f.path, err)
				}
				fmt.Fprintf(out, "Created %s\n", f.path)
			}
			fmt.Fprintln(out, "\nProject initialized. Add minecraft.pub and run 'craftstack preview'.")
			return nil
		},
	}
}
