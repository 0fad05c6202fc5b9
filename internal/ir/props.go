package ir

import (
	"errors"
	"fmt"
	"net/netip"
)

// VpcProps describes a virtual network.
type VpcProps struct {
	CidrBlock          string
	EnableDnsHostnames bool
	EnableDnsSupport   bool
	Tags               map[string]string
}

func (p *VpcProps) Kind() Kind { return KindVpc }

func (p *VpcProps) Validate() error {
	return validateCidr("cidrBlock", p.CidrBlock)
}

func (p *VpcProps) References() []Ref { return nil }

func (p *VpcProps) Inputs(Resolver) (map[string]any, error) {
	return map[string]any{
		"cidrBlock":          p.CidrBlock,
		"enableDnsHostnames": p.EnableDnsHostnames,
		"enableDnsSupport":   p.EnableDnsSupport,
		"tags":               copyTags(p.Tags),
	}, nil
}

// SubnetProps describes a subnet inside a VPC.
type SubnetProps struct {
	VpcID               Ref
	CidrBlock           string
	AvailabilityZone    string
	MapPublicIpOnLaunch bool
	Tags                map[string]string
}

func (p *SubnetProps) Kind() Kind { return KindSubnet }

func (p *SubnetProps) Validate() error {
	return errors.Join(
		requireRef("vpcId", p.VpcID),
		validateCidr("cidrBlock", p.CidrBlock),
	)
}

func (p *SubnetProps) References() []Ref { return []Ref{p.VpcID} }

func (p *SubnetProps) Inputs(r Resolver) (map[string]any, error) {
	vpcID, err := r.Resolve(p.VpcID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"vpcId":               vpcID,
		"cidrBlock":           p.CidrBlock,
		"availabilityZone":    p.AvailabilityZone,
		"mapPublicIpOnLaunch": p.MapPublicIpOnLaunch,
		"tags":                copyTags(p.Tags),
	}, nil
}

// InternetGatewayProps describes a gateway attached to a VPC.
type InternetGatewayProps struct {
	VpcID Ref
	Tags  map[string]string
}

func (p *InternetGatewayProps) Kind() Kind { return KindInternetGateway }

func (p *InternetGatewayProps) Validate() error {
	return requireRef("vpcId", p.VpcID)
}

func (p *InternetGatewayProps) References() []Ref { return []Ref{p.VpcID} }

func (p *InternetGatewayProps) Inputs(r Resolver) (map[string]any, error) {
	vpcID, err := r.Resolve(p.VpcID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"vpcId": vpcID,
		"tags":  copyTags(p.Tags),
	}, nil
}

// Route sends a destination block to a gateway.
type Route struct {
	CidrBlock string
	GatewayID Ref
}

// RouteTableProps describes a route table with an ordered set of routes.
type RouteTableProps struct {
	VpcID  Ref
	Routes []Route
	Tags   map[string]string
}

func (p *RouteTableProps) Kind() Kind { return KindRouteTable }

func (p *RouteTableProps) Validate() error {
	errs := []error{requireRef("vpcId", p.VpcID)}
	for i, route := range p.Routes {
		errs = append(errs,
			validateCidr(fmt.Sprintf("routes[%d].cidrBlock", i), route.CidrBlock),
			requireRef(fmt.Sprintf("routes[%d].gatewayId", i), route.GatewayID),
		)
	}
	return errors.Join(errs...)
}

func (p *RouteTableProps) References() []Ref {
	refs := []Ref{p.VpcID}
	for _, route := range p.Routes {
		refs = append(refs, route.GatewayID)
	}
	return refs
}

func (p *RouteTableProps) Inputs(r Resolver) (map[string]any, error) {
	vpcID, err := r.Resolve(p.VpcID)
	if err != nil {
		return nil, err
	}
	routes := make([]any, 0, len(p.Routes))
	for _, route := range p.Routes {
		gw, err := r.Resolve(route.GatewayID)
		if err != nil {
			return nil, err
		}
		routes = append(routes, map[string]any{
			"cidrBlock": route.CidrBlock,
			"gatewayId": gw,
		})
	}
	return map[string]any{
		"vpcId":  vpcID,
		"routes": routes,
		"tags":   copyTags(p.Tags),
	}, nil
}

// RouteTableAssociationProps binds a subnet to a route table.
type RouteTableAssociationProps struct {
	SubnetID     Ref
	RouteTableID Ref
}

func (p *RouteTableAssociationProps) Kind() Kind { return KindRouteTableAssociation }

func (p *RouteTableAssociationProps) Validate() error {
	return errors.Join(
		requireRef("subnetId", p.SubnetID),
		requireRef("routeTableId", p.RouteTableID),
	)
}

func (p *RouteTableAssociationProps) References() []Ref {
	return []Ref{p.SubnetID, p.RouteTableID}
}

func (p *RouteTableAssociationProps) Inputs(r Resolver) (map[string]any, error) {
	subnetID, err := r.Resolve(p.SubnetID)
	if err != nil {
		return nil, err
	}
	routeTableID, err := r.Resolve(p.RouteTableID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"subnetId":     subnetID,
		"routeTableId": routeTableID,
	}, nil
}

// SecurityRule is a single ingress or egress rule.
type SecurityRule struct {
	Description string
	Protocol    string
	FromPort    int
	ToPort      int
	CidrBlocks  []string
}

func (r SecurityRule) validate(field string) error {
	var errs []error
	switch r.Protocol {
	case "tcp", "udp", "icmp", "-1":
	default:
		errs = append(errs, fmt.Errorf("%s.protocol: unsupported protocol %q", field, r.Protocol))
	}
	if r.FromPort < 0 || r.FromPort > 65535 || r.ToPort < 0 || r.ToPort > 65535 {
		errs = append(errs, fmt.Errorf("%s: port range %d-%d out of bounds", field, r.FromPort, r.ToPort))
	} else if r.FromPort > r.ToPort {
		errs = append(errs, fmt.Errorf("%s: fromPort %d greater than toPort %d", field, r.FromPort, r.ToPort))
	}
	if len(r.CidrBlocks) == 0 {
		errs = append(errs, fmt.Errorf("%s.cidrBlocks: at least one block is required", field))
	}
	for i, c := range r.CidrBlocks {
		errs = append(errs, validateCidr(fmt.Sprintf("%s.cidrBlocks[%d]", field, i), c))
	}
	return errors.Join(errs...)
}

func (r SecurityRule) input() map[string]any {
	blocks := make([]any, len(r.CidrBlocks))
	for i, c := range r.CidrBlocks {
		blocks[i] = c
	}
	return map[string]any{
		"description": r.Description,
		"protocol":    r.Protocol,
		"fromPort":    r.FromPort,
		"toPort":      r.ToPort,
		"cidrBlocks":  blocks,
	}
}

// SecurityGroupProps describes a security group with ordered rule lists.
type SecurityGroupProps struct {
	Description string
	VpcID       Ref
	Ingress     []SecurityRule
	Egress      []SecurityRule
	Tags        map[string]string
}

func (p *SecurityGroupProps) Kind() Kind { return KindSecurityGroup }

func (p *SecurityGroupProps) Validate() error {
	errs := []error{requireRef("vpcId", p.VpcID)}
	for i, rule := range p.Ingress {
		errs = append(errs, rule.validate(fmt.Sprintf("ingress[%d]", i)))
	}
	for i, rule := range p.Egress {
		errs = append(errs, rule.validate(fmt.Sprintf("egress[%d]", i)))
	}
	return errors.Join(errs...)
}

func (p *SecurityGroupProps) References() []Ref { return []Ref{p.VpcID} }

func (p *SecurityGroupProps) Inputs(r Resolver) (map[string]any, error) {
	vpcID, err := r.Resolve(p.VpcID)
	if err != nil {
		return nil, err
	}
	ingress := make([]any, len(p.Ingress))
	for i, rule := range p.Ingress {
		ingress[i] = rule.input()
	}
	egress := make([]any, len(p.Egress))
	for i, rule := range p.Egress {
		egress[i] = rule.input()
	}
	return map[string]any{
		"description": p.Description,
		"vpcId":       vpcID,
		"ingress":     ingress,
		"egress":      egress,
		"tags":        copyTags(p.Tags),
	}, nil
}

// Filter is a single image query predicate.
type Filter struct {
	Name   string
	Values []string
}

// ImageQueryProps selects a machine image at apply time.
type ImageQueryProps struct {
	Filters    []Filter
	MostRecent bool
	Owners     []string
}

func (p *ImageQueryProps) Kind() Kind { return KindImageQuery }

func (p *ImageQueryProps) Validate() error {
	var errs []error
	if len(p.Filters) == 0 {
		errs = append(errs, errors.New("filters: at least one filter is required"))
	}
	for i, f := range p.Filters {
		if f.Name == "" || len(f.Values) == 0 {
			errs = append(errs, fmt.Errorf("filters[%d]: name and values are required", i))
		}
	}
	if len(p.Owners) == 0 {
		errs = append(errs, errors.New("owners: at least one owner is required"))
	}
	return errors.Join(errs...)
}

func (p *ImageQueryProps) References() []Ref { return nil }

func (p *ImageQueryProps) Inputs(Resolver) (map[string]any, error) {
	filters := make([]any, len(p.Filters))
	for i, f := range p.Filters {
		values := make([]any, len(f.Values))
		for j, v := range f.Values {
			values[j] = v
		}
		filters[i] = map[string]any{"name": f.Name, "values": values}
	}
	owners := make([]any, len(p.Owners))
	for i, o := range p.Owners {
		owners[i] = o
	}
	return map[string]any{
		"filters":    filters,
		"mostRecent": p.MostRecent,
		"owners":     owners,
	}, nil
}

// KeyPairProps imports an SSH public key.
type KeyPairProps struct {
	KeyName   string
	PublicKey string
}

func (p *KeyPairProps) Kind() Kind { return KindKeyPair }

func (p *KeyPairProps) Validate() error {
	var errs []error
	if p.KeyName == "" {
		errs = append(errs, errors.New("keyName: required"))
	}
	if p.PublicKey == "" {
		errs = append(errs, errors.New("publicKey: required"))
	}
	return errors.Join(errs...)
}

func (p *KeyPairProps) References() []Ref { return nil }

func (p *KeyPairProps) Inputs(Resolver) (map[string]any, error) {
	return map[string]any{
		"keyName":   p.KeyName,
		"publicKey": p.PublicKey,
	}, nil
}

// InstanceProps describes the compute instance running the game server.
type InstanceProps struct {
	InstanceType     string
	Ami              Ref
	SubnetID         Ref
	SecurityGroupIDs []Ref
	KeyName          Ref
	UserData         string
	Tags             map[string]string
}

func (p *InstanceProps) Kind() Kind { return KindInstance }

func (p *InstanceProps) Validate() error {
	errs := []error{
		requireRef("ami", p.Ami),
		requireRef("subnetId", p.SubnetID),
		requireRef("keyName", p.KeyName),
	}
	if p.InstanceType == "" {
		errs = append(errs, errors.New("instanceType: required"))
	}
	for i, sg := range p.SecurityGroupIDs {
		errs = append(errs, requireRef(fmt.Sprintf("vpcSecurityGroupIds[%d]", i), sg))
	}
	return errors.Join(errs...)
}

func (p *InstanceProps) References() []Ref {
	refs := []Ref{p.Ami, p.SubnetID, p.KeyName}
	return append(refs, p.SecurityGroupIDs...)
}

func (p *InstanceProps) Inputs(r Resolver) (map[string]any, error) {
	ami, err := r.Resolve(p.Ami)
	if err != nil {
		return nil, err
	}
	subnetID, err := r.Resolve(p.SubnetID)
	if err != nil {
		return nil, err
	}
	keyName, err := r.Resolve(p.KeyName)
	if err != nil {
		return nil, err
	}
	groups := make([]any, 0, len(p.SecurityGroupIDs))
	for _, sg := range p.SecurityGroupIDs {
		id, err := r.Resolve(sg)
		if err != nil {
			return nil, err
		}
		groups = append(groups, id)
	}
	return map[string]any{
		"instanceType":        p.InstanceType,
		"ami":                 ami,
		"subnetId":            subnetID,
		"vpcSecurityGroupIds": groups,
		"keyName":             keyName,
		"userData":            p.UserData,
		"tags":                copyTags(p.Tags),
	}, nil
}

func validateCidr(field, cidr string) error {
	if _, err := netip.ParsePrefix(cidr); err != nil {
		return fmt.Errorf("%s: invalid CIDR block %q", field, cidr)
	}
	return nil
}

func requireRef(field string, ref Ref) error {
	if ref.Resource == "" || ref.Attribute == "" {
		return fmt.Errorf("%s: reference is required", field)
	}
	return nil
}

func copyTags(tags map[string]string) map[string]any {
	out := make(map[string]any, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
