// Package deploy declares resources into an explicit deployment graph.
//
// Declarations are collected by a Builder that is threaded through the
// program; nothing registers itself globally. Build checks the graph's
// reference integrity before any backend sees it.
package deploy

import (
	"fmt"
	"sort"

	"github.com/picklr-io/craftstack/internal/ir"
	"github.com/picklr-io/craftstack/internal/logging"
)

// Builder collects resource declarations and outputs for one stack.
type Builder struct {
	stack     string
	resources []*ir.Resource
	byName    map[string]*ir.Resource
	outputs   []*ir.Output
	outNames  map[string]bool
}

// NewBuilder returns an empty builder for stack.
func NewBuilder(stack string) *Builder {
	return &Builder{
		stack:    stack,
		byName:   make(map[string]*ir.Resource),
		outNames: make(map[string]bool),
	}
}

// Option customizes a declaration.
type Option func(*ir.Resource)

// DependsOn adds explicit ordering edges to resources that are not
// referenced through properties.
func DependsOn(names ...string) Option {
	return func(r *ir.Resource) {
		r.DependsOn = append(r.DependsOn, names...)
	}
}

// Declare adds a resource. The name must be unique within the builder and
// the properties must validate.
func (b *Builder) Declare(name string, props ir.Properties, opts ...Option) (*ir.Resource, error) {
	if name == "" {
		return nil, &ir.ConfigurationError{Reason: "resource name is required"}
	}
	if props == nil {
		return nil, &ir.ConfigurationError{Resource: name, Reason: "properties are required"}
	}
	if _, exists := b.byName[name]; exists {
		return nil, &ir.ConfigurationError{Resource: name, Reason: "duplicate resource name"}
	}
	if err := props.Validate(); err != nil {
		return nil, &ir.ConfigurationError{
			Resource: name,
			Reason:   fmt.Sprintf("invalid %s properties", props.Kind()),
			Err:      err,
		}
	}

	res := &ir.Resource{Name: name, Props: props}
	for _, opt := range opts {
		opt(res)
	}

	b.resources = append(b.resources, res)
	b.byName[name] = res
	logging.Debug("declared resource", "stack", b.stack, "address", res.Address())
	return res, nil
}

func (b *Builder) Vpc(name string, props *ir.VpcProps, opts ...Option) (*ir.Resource, error) {
	return b.Declare(name, props, opts...)
}

func (b *Builder) Subnet(name string, props *ir.SubnetProps, opts ...Option) (*ir.Resource, error) {
	return b.Declare(name, props, opts...)
}

func (b *Builder) InternetGateway(name string, props *ir.InternetGatewayProps, opts ...Option) (*ir.Resource, error) {
	return b.Declare(name, props, opts...)
}

func (b *Builder) RouteTable(name string, props *ir.RouteTableProps, opts ...Option) (*ir.Resource, error) {
	return b.Declare(name, props, opts...)
}

func (b *Builder) RouteTableAssociation(name string, props *ir.RouteTableAssociationProps, opts ...Option) (*ir.Resource, error) {
	return b.Declare(name, props, opts...)
}

func (b *Builder) SecurityGroup(name string, props *ir.SecurityGroupProps, opts ...Option) (*ir.Resource, error) {
	return b.Declare(name, props, opts...)
}

// LookupImage declares an image query. It is invoked at evaluation time,
// never created.
func (b *Builder) LookupImage(name string, props *ir.ImageQueryProps, opts ...Option) (*ir.Resource, error) {
	return b.Declare(name, props, opts...)
}

func (b *Builder) KeyPair(name string, props *ir.KeyPairProps, opts ...Option) (*ir.Resource, error) {
	return b.Declare(name, props, opts...)
}

func (b *Builder) Instance(name string, props *ir.InstanceProps, opts ...Option) (*ir.Resource, error) {
	return b.Declare(name, props, opts...)
}

// Export names a value to be resolved after evaluation.
func (b *Builder) Export(name string, v ir.Value) error {
	if name == "" {
		return &ir.ConfigurationError{Reason: "output name is required"}
	}
	if b.outNames[name] {
		return &ir.ConfigurationError{Resource: name, Reason: "duplicate output name"}
	}
	b.outNames[name] = true
	b.outputs = append(b.outputs, &ir.Output{Name: name, Value: v})
	return nil
}

// Build returns the declared deployment. Every reference, whether held by
// a resource or an output, must name a declared resource.
func (b *Builder) Build() (*ir.Deployment, error) {
	for _, res := range b.resources {
		for _, dep := range res.References() {
			if _, ok := b.byName[dep]; ok {
				continue
			}
			return nil, &ir.ResolutionError{
				Resource: res.Name,
				Ref:      dep,
				Reason:   "reference to undeclared resource",
				Err:      fmt.Errorf("declared resources: %v", b.names()),
			}
		}
	}
	for _, out := range b.outputs {
		if out.Value.Ref == nil {
			continue
		}
		if _, ok := b.byName[out.Value.Ref.Resource]; !ok {
			return nil, &ir.ResolutionError{
				Resource: "output " + out.Name,
				Ref:      out.Value.Ref.String(),
				Reason:   "reference to undeclared resource",
			}
		}
	}

	d := &ir.Deployment{
		Stack:     b.stack,
		Resources: make([]*ir.Resource, len(b.resources)),
		Outputs:   make([]*ir.Output, len(b.outputs)),
	}
	copy(d.Resources, b.resources)
	copy(d.Outputs, b.outputs)
	return d, nil
}

func (b *Builder) names() []string {
	names := make([]string, 0, len(b.byName))
	for n := range b.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
