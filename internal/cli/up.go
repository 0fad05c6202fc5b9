package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/picklr-io/craftstack/internal/engine"
	"github.com/picklr-io/craftstack/internal/export"
	"github.com/picklr-io/craftstack/internal/logging"
)

type upOptions struct {
	output     string
	outputFile string
	s3Bucket   string
	s3Key      string
}

func (c *RootCommand) newUpCommand() *cobra.Command {
	var opts upOptions

	cmd := &cobra.Command{
		Use:     "up",
		Aliases: []string{"create"},
		Short:   "Create the game server",
		Long: `Declares the game server, checks it against the policy pack and creates
every resource through the selected backend in dependency order.

A mandatory policy violation stops the run before anything is created.
The first backend error aborts the run; resources created up to that point
are left in place and can be removed with 'craftstack destroy'.

Outputs for every destination are rendered and the S3 client is set up
before anything is printed or written. They are then written in order:
stdout, --output-file, S3. A failed upload leaves the local file in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runUp(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output format: text, json or yaml")
	cmd.Flags().StringVar(&opts.outputFile, "output-file", "", "Also write outputs to this file (format from extension, JSON by default)")
	cmd.Flags().StringVar(&opts.s3Bucket, "s3-bucket", "", "Also upload outputs to this S3 bucket (format from key extension, JSON by default)")
	cmd.Flags().StringVar(&opts.s3Key, "s3-key", "", "Object key for --s3-bucket (default \"craftstack/<stack>/outputs.json\")")
	return cmd
}

func (c *RootCommand) runUp(cmd *cobra.Command, opts upOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	format, err := export.ParseFormat(opts.output)
	if err != nil {
		return err
	}

	d, err := c.deployment()
	if err != nil {
		return err
	}
	pack, err := c.pack()
	if err != nil {
		return err
	}
	backend, err := c.backend(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Creating stack %s with the %s backend...\n", d.Stack, c.backendName())
	eng := engine.NewEngine(backend, pack)
	result, err := eng.UpWithCallback(ctx, d, progressPrinter(cmd.ErrOrStderr()))
	if err != nil {
		return fmt.Errorf("up failed: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "\nUp complete! Resources: %d.\n\n", len(result.Resources))

	doc := export.Document{Stack: result.Stack, Outputs: result.Outputs}
	stdout, err := export.Bytes(doc, format)
	if err != nil {
		return err
	}
	writes, err := c.prepareSinks(ctx, doc, opts)
	if err != nil {
		return err
	}

	if _, err := out.Write(stdout); err != nil {
		return err
	}
	for _, w := range writes {
		if err := w.sink.Write(ctx, w.data); err != nil {
			return err
		}
		logging.Info("outputs written", "to", w.sink.String())
	}
	return nil
}

// pendingWrite is a rendered document waiting for its destination.
type pendingWrite struct {
	sink export.Sink
	data []byte
}

// prepareSinks renders doc for every requested destination without writing
// anything.
func (c *RootCommand) prepareSinks(ctx context.Context, doc export.Document, opts upOptions) ([]pendingWrite, error) {
	var writes []pendingWrite

	if opts.outputFile != "" {
		data, err := export.Bytes(doc, formatForPath(opts.outputFile))
		if err != nil {
			return nil, err
		}
		writes = append(writes, pendingWrite{sink: &export.FileSink{Path: opts.outputFile}, data: data})
	}
	if opts.s3Bucket != "" {
		key := firstNonEmpty(opts.s3Key, "craftstack/"+doc.Stack+"/outputs.json")
		sink, err := export.NewS3Sink(ctx, opts.s3Bucket, key, c.deployConfig().Region, firstNonEmpty(c.Opts.Profile, c.project.Profile))
		if err != nil {
			return nil, err
		}
		f := formatForPath(key)
		sink.ContentType = export.ContentTypeFor(f)
		data, err := export.Bytes(doc, f)
		if err != nil {
			return nil, err
		}
		writes = append(writes, pendingWrite{sink: sink, data: data})
	}
	return writes, nil
}

func formatForPath(path string) export.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return export.FormatYAML
	case ".txt":
		return export.FormatText
	default:
		return export.FormatJSON
	}
}
