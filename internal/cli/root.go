package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/picklr-io/craftstack/internal/deploy"
	"github.com/picklr-io/craftstack/internal/eval"
	"github.com/picklr-io/craftstack/internal/ir"
	"github.com/picklr-io/craftstack/internal/logging"
	"github.com/picklr-io/craftstack/internal/policy"
	"github.com/picklr-io/craftstack/internal/provider"
	pb "github.com/picklr-io/craftstack/pkg/provider"
)

// EnvNamePrefix prefixes the environment form of every global flag.
const EnvNamePrefix = "CRAFTSTACK"

// DefaultProjectFile is loaded when present and --project is not given.
const DefaultProjectFile = "craftstack.pkl"

const longHelp = `craftstack declares a single-instance Minecraft server on AWS as an
explicit resource graph, checks it against a policy pack, and creates or
tears it down through a provisioning backend.

Each global flag has a corresponding environment variable prefixed with
CRAFTSTACK. Flags take precedence over the environment, which takes
precedence over the project file.

Examples
  --stack          CRAFTSTACK_STACK
  --backend        CRAFTSTACK_BACKEND
  --instance-type  CRAFTSTACK_INSTANCE_TYPE`

// Options holds the global settings after flags, environment and project
// file have been merged.
type Options struct {
	Stack        string `mapstructure:"stack"`
	Backend      string `mapstructure:"backend"`
	Project      string `mapstructure:"project"`
	Region       string `mapstructure:"region"`
	Profile      string `mapstructure:"profile"`
	InstanceType string `mapstructure:"instance-type"`
	Policy       string `mapstructure:"policy"`
	Enforcement  string `mapstructure:"enforcement"`
	LogLevel     string `mapstructure:"log-level"`
	NoColor      bool   `mapstructure:"no-color"`
}

// RootCommand is the craftstack entrypoint.
type RootCommand struct {
	*cobra.Command
	vpr  *viper.Viper
	Opts Options

	project *eval.Project

	// newRegistry is swapped in tests.
	newRegistry func(provider.Settings) *provider.Registry
}

// NewRootCommand creates the command tree.
func NewRootCommand() (*RootCommand, error) {
	c := &RootCommand{
		Command: &cobra.Command{
			Use:           "craftstack",
			Short:         "Minecraft server on AWS as code",
			Long:          longHelp,
			SilenceUsage:  true,
			SilenceErrors: true,
		},
		newRegistry: provider.NewRegistry,
	}
	c.PersistentPreRunE = c.preRun

	// Ensure keys with `-` use `_` for env keys else Viper won't match them.
	c.vpr = viper.NewWithOptions(viper.EnvKeyReplacer(strings.NewReplacer("-", "_")))
	c.vpr.SetEnvPrefix(EnvNamePrefix)

	if err := c.configureFlags(); err != nil {
		return nil, err
	}

	c.AddCommand(
		newInitCommand(),
		c.newUpCommand(),
		c.newPreviewCommand(),
		c.newDestroyCommand(),
		c.newPolicyCheckCommand(),
		c.newGraphCommand(),
		c.newValidateCommand(),
		newVersionCommand(),
	)
	return c, nil
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	root, err := NewRootCommand()
	if err != nil {
		return err
	}
	return root.ExecuteContext(ctx)
}

func (c *RootCommand) configureFlags() error {
	flags := c.PersistentFlags()
	flags.SortFlags = false

	flags.String("stack", "", "Stack name; scopes resource tags (default \"dev\")")
	flags.String("backend", "", "Provisioning backend: aws or mock (default \"aws\")")
	flags.String("project", "", "Path to a PKL project file (default \""+DefaultProjectFile+"\" if present)")
	flags.String("region", "", "AWS region (default \"eu-central-1\")")
	flags.String("profile", "", "AWS shared config profile")
	flags.String("instance-type", "", "Instance size for the game server (default \"t3.xlarge\")")
	flags.String("policy", "", "Path to a JSON policy rule file")
	flags.String("enforcement", "", "Policy enforcement level: advisory or mandatory (default \"mandatory\")")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.Bool("no-color", false, "Disable colored output")

	if err := c.vpr.BindPFlags(flags); err != nil {
		return err
	}

	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		err = c.vpr.BindEnv(f.Name)
	})
	return err
}

// preRun populates c.Opts and loads the project file.
func (c *RootCommand) preRun(cmd *cobra.Command, _ []string) error {
	if err := c.vpr.Unmarshal(&c.Opts); err != nil {
		return fmt.Errorf("failed to read options: %w", err)
	}
	logging.Init(c.Opts.LogLevel)
	noColor = c.Opts.NoColor

	path := c.Opts.Project
	if path == "" {
		if _, err := os.Stat(DefaultProjectFile); err == nil {
			path = DefaultProjectFile
		}
	}
	if path == "" {
		c.project = &eval.Project{}
		return nil
	}

	logging.Debug("loading project", "path", path)
	p, err := eval.NewEvaluator(nil).LoadProject(cmd.Context(), path)
	if err != nil {
		return err
	}
	c.project = p
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c *RootCommand) stack() string {
	return firstNonEmpty(c.Opts.Stack, c.project.Stack, "dev")
}

func (c *RootCommand) backendName() string {
	return firstNonEmpty(c.Opts.Backend, c.project.Backend, "aws")
}

// deployConfig layers defaults, the project file and the global options.
func (c *RootCommand) deployConfig() deploy.Config {
	cfg := deploy.DefaultConfig()
	c.project.Apply(&cfg)
	cfg.Region = firstNonEmpty(c.Opts.Region, cfg.Region)
	cfg.InstanceType = firstNonEmpty(c.Opts.InstanceType, cfg.InstanceType)
	return cfg
}

// deployment declares the game server and builds its graph. Nothing
// remote is touched.
func (c *RootCommand) deployment() (*ir.Deployment, error) {
	b := deploy.NewBuilder(c.stack())
	if err := deploy.GameServer(b, c.deployConfig()); err != nil {
		return nil, err
	}
	return b.Build()
}

// pack returns the default pack, extended by the rule file and with the
// configured enforcement level.
func (c *RootCommand) pack() (*policy.Pack, error) {
	pack := policy.DefaultPack()

	var settings eval.PolicySettings
	if c.project.Policy != nil {
		settings = *c.project.Policy
	}

	level, err := policy.ParseEnforcementLevel(firstNonEmpty(c.Opts.Enforcement, settings.EnforcementLevel))
	if err != nil {
		return nil, err
	}
	pack.EnforcementLevel = level

	if file := firstNonEmpty(c.Opts.Policy, settings.RuleFile); file != "" {
		rules, err := policy.LoadRuleFile(file)
		if err != nil {
			return nil, err
		}
		pack.Policies = append(pack.Policies, rules...)
	}
	return pack, nil
}

func (c *RootCommand) backend(ctx context.Context) (pb.Backend, error) {
	cfg := c.deployConfig()
	registry := c.newRegistry(provider.Settings{
		Region:  cfg.Region,
		Profile: firstNonEmpty(c.Opts.Profile, c.project.Profile),
	})
	return registry.Load(ctx, c.backendName())
}
