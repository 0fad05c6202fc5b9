package engine

import (
	"fmt"
	"strings"

	"github.com/picklr-io/craftstack/internal/ir"
)

// DAG represents a directed acyclic graph of resources for dependency ordering.
// Nodes are keyed by resource name.
type DAG struct {
	nodes    map[string]*dagNode
	decl     []string // declaration order
	order    []string // topological order (creation order)
	revOrder []string // reverse topological order (destruction order)
}

type dagNode struct {
	res      *ir.Resource
	edges    []string // resources this node depends on
	revEdges []string // resources that depend on this node
}

// BuildDAG constructs a dependency graph from a deployment.
// Edges come from property references and explicit DependsOn entries. A
// reference to an undeclared resource or a cycle is a ResolutionError.
func BuildDAG(d *ir.Deployment) (*DAG, error) {
	dag := &DAG{
		nodes: make(map[string]*dagNode),
	}

	for _, res := range d.Resources {
		if _, dup := dag.nodes[res.Name]; dup {
			return nil, &ir.ResolutionError{Resource: res.Name, Reason: "resource declared more than once"}
		}
		dag.nodes[res.Name] = &dagNode{res: res}
		dag.decl = append(dag.decl, res.Name)
	}

	for _, name := range dag.decl {
		node := dag.nodes[name]
		for _, dep := range node.res.References() {
			if _, ok := dag.nodes[dep]; !ok {
				return nil, &ir.ResolutionError{
					Resource: name,
					Ref:      dep,
					Reason:   "reference to undeclared resource",
				}
			}
			node.edges = append(node.edges, dep)
		}
	}

	// Reverse edges, kept in declaration order
	for _, name := range dag.decl {
		for _, dep := range dag.nodes[name].edges {
			dag.nodes[dep].revEdges = append(dag.nodes[dep].revEdges, name)
		}
	}

	order, err := dag.topoSort()
	if err != nil {
		return nil, err
	}
	dag.order = order

	dag.revOrder = make([]string, len(order))
	for i, name := range order {
		dag.revOrder[len(order)-1-i] = name
	}

	return dag, nil
}

// CreationOrder returns resource names in dependency-respecting creation order.
func (d *DAG) CreationOrder() []string {
	return d.order
}

// DestructionOrder returns resource names in reverse dependency order (safe for deletion).
func (d *DAG) DestructionOrder() []string {
	return d.revOrder
}

// Resource returns the declaration behind a node.
func (d *DAG) Resource(name string) *ir.Resource {
	if node, ok := d.nodes[name]; ok {
		return node.res
	}
	return nil
}

// Dependencies returns the direct dependencies of name.
func (d *DAG) Dependencies(name string) []string {
	if node, ok := d.nodes[name]; ok {
		return node.edges
	}
	return nil
}

// Dependents returns the resources that depend directly on name.
func (d *DAG) Dependents(name string) []string {
	if node, ok := d.nodes[name]; ok {
		return node.revEdges
	}
	return nil
}

// TransitiveDeps returns every resource name reachable from name through
// dependency edges.
func (d *DAG) TransitiveDeps(name string) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(string)
	walk = func(n string) {
		for _, dep := range d.Dependencies(n) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			out = append(out, dep)
			walk(dep)
		}
	}
	walk(name)
	return out
}

// topoSort performs Kahn's algorithm. Ties are broken by declaration order
// so the result is stable across runs.
func (d *DAG) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	for name, node := range d.nodes {
		inDegree[name] = len(node.edges)
	}

	var queue []string
	for _, name := range d.decl {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var sorted []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		sorted = append(sorted, name)

		for _, dependent := range d.nodes[name].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(d.nodes) {
		var stuck []string
		for _, name := range d.decl {
			if inDegree[name] > 0 {
				stuck = append(stuck, name)
			}
		}
		return nil, &ir.ResolutionError{
			Resource: stuck[0],
			Reason:   fmt.Sprintf("dependency cycle detected among %s", strings.Join(stuck, ", ")),
		}
	}

	return sorted, nil
}
