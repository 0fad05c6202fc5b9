package cli

import (
	"fmt"
	"io"

	"github.com/emicklei/dot"
	"github.com/spf13/cobra"

	"github.com/picklr-io/craftstack/internal/engine"
)

// Graph output formats.
const (
	graphFormatDOT     = "dot"
	graphFormatMermaid = "mermaid"
)

func (c *RootCommand) newGraphCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Output the dependency graph",
		Long: `Generates the resource dependency graph in Graphviz DOT or Mermaid format.
Edges point from a resource to the resources it references. Pipe DOT
output to 'dot' to generate an image:

  craftstack graph | dot -Tpng > graph.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := c.deployment()
			if err != nil {
				return err
			}
			dag, err := engine.BuildDAG(d)
			if err != nil {
				return fmt.Errorf("failed to build graph: %w", err)
			}
			return writeGraph(cmd.OutOrStdout(), dag, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", graphFormatDOT, "Graph format: dot or mermaid")
	return cmd
}

// writeGraph renders dag with nodes in creation order.
func writeGraph(w io.Writer, dag *engine.DAG, format string) error {
	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "BT")
	g.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
	})

	order := dag.CreationOrder()
	for _, name := range order {
		res := dag.Resource(name)
		n := g.Node(name).Label(name + "\\n[" + res.Type() + "]")
		if res.Kind().IsDataSource() {
			n.Attr("style", "dashed")
		}
	}
	for _, name := range order {
		for _, dep := range dag.Dependencies(name) {
			g.Edge(g.Node(name), g.Node(dep))
		}
	}

	var output string
	switch format {
	case graphFormatDOT, "":
		output = g.String()
	case graphFormatMermaid:
		output = dot.MermaidGraph(g, dot.MermaidTopToBottom)
	default:
		return fmt.Errorf("unknown graph format %q (expected dot or mermaid)", format)
	}

	_, err := io.WriteString(w, output)
	return err
}
