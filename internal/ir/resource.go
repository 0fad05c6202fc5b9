package ir

import "fmt"

// Kind identifies the concrete variant of a declared resource.
type Kind int

const (
	KindUnknown Kind = iota
	KindVpc
	KindSubnet
	KindInternetGateway
	KindRouteTable
	KindRouteTableAssociation
	KindSecurityGroup
	KindImageQuery
	KindKeyPair
	KindInstance
)

var kindTokens = map[Kind]string{
	KindVpc:                   "aws:ec2/vpc:Vpc",
	KindSubnet:                "aws:ec2/subnet:Subnet",
	KindInternetGateway:       "aws:ec2/internetGateway:InternetGateway",
	KindRouteTable:            "aws:ec2/routeTable:RouteTable",
	KindRouteTableAssociation: "aws:ec2/routeTableAssociation:RouteTableAssociation",
	KindSecurityGroup:         "aws:ec2/securityGroup:SecurityGroup",
	KindImageQuery:            "aws:ec2/getAmi:getAmi",
	KindKeyPair:               "aws:ec2/keyPair:KeyPair",
	KindInstance:              "aws:ec2/instance:Instance",
}

var kindNames = map[Kind]string{
	KindVpc:                   "Vpc",
	KindSubnet:                "Subnet",
	KindInternetGateway:       "InternetGateway",
	KindRouteTable:            "RouteTable",
	KindRouteTableAssociation: "RouteTableAssociation",
	KindSecurityGroup:         "SecurityGroup",
	KindImageQuery:            "ImageQuery",
	KindKeyPair:               "KeyPair",
	KindInstance:              "Instance",
}

// Token returns the provider type token, e.g. "aws:ec2/instance:Instance".
func (k Kind) Token() string {
	return kindTokens[k]
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsDataSource reports whether the kind is looked up rather than created.
func (k Kind) IsDataSource() bool {
	return k == KindImageQuery
}

// KindForToken maps a provider type token back to its Kind.
func KindForToken(token string) Kind {
	for k, t := range kindTokens {
		if t == token {
			return k
		}
	}
	return KindUnknown
}

// Resource is a single declared resource or data source.
type Resource struct {
	Name      string
	Props     Properties
	DependsOn []string
}

// Kind returns the variant of the resource's property record.
func (r *Resource) Kind() Kind {
	if r.Props == nil {
		return KindUnknown
	}
	return r.Props.Kind()
}

// Type returns the provider type token of the resource.
func (r *Resource) Type() string {
	return r.Kind().Token()
}

// Address returns the resource address (type.name).
func (r *Resource) Address() string {
	return fmt.Sprintf("%s.%s", r.Type(), r.Name)
}

// ID returns a reference to the resource's provider-assigned id.
func (r *Resource) ID() Ref {
	return IDOf(r.Name)
}

// Attr returns a reference to one of the resource's output attributes.
func (r *Resource) Attr(attribute string) Ref {
	return RefTo(r.Name, attribute)
}

// References returns every resource this one points at, through property
// references or explicit DependsOn entries.
func (r *Resource) References() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	if r.Props != nil {
		for _, ref := range r.Props.References() {
			add(ref.Resource)
		}
	}
	for _, dep := range r.DependsOn {
		add(dep)
	}
	return out
}

// Ref points at an output attribute of another declared resource.
type Ref struct {
	Resource  string
	Attribute string
}

// RefTo builds a reference to name's attribute.
func RefTo(name, attribute string) Ref {
	return Ref{Resource: name, Attribute: attribute}
}

// IDOf builds a reference to name's provider-assigned id.
func IDOf(name string) Ref {
	return Ref{Resource: name, Attribute: "id"}
}

// IsZero returns true if the Ref has not been populated.
func (r Ref) IsZero() bool {
	return r.Resource == "" && r.Attribute == ""
}

func (r Ref) String() string {
	return r.Resource + "." + r.Attribute
}

// Value is either a literal or a reference to another resource's output.
type Value struct {
	Literal any
	Ref     *Ref
}

// Lit wraps a literal value.
func Lit(v any) Value {
	return Value{Literal: v}
}

// FromRef wraps a reference.
func FromRef(ref Ref) Value {
	return Value{Ref: &ref}
}

// Resolver resolves references to concrete values.
type Resolver interface {
	Resolve(ref Ref) (any, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ref Ref) (any, error)

// Resolve calls f(ref).
func (f ResolverFunc) Resolve(ref Ref) (any, error) {
	return f(ref)
}

// Properties is implemented by every resource property record.
type Properties interface {
	// Kind returns the variant this record belongs to.
	Kind() Kind
	// Validate checks the record's literal values.
	Validate() error
	// References lists every Ref held by the record.
	References() []Ref
	// Inputs renders the record as the provider input bag, resolving
	// references through r.
	Inputs(r Resolver) (map[string]any, error)
}
