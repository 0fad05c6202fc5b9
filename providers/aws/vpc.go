package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/picklr-io/craftstack/internal/logging"
	pb "github.com/picklr-io/craftstack/pkg/provider"
)

type VpcConfig struct {
	CidrBlock          string            `json:"cidrBlock"`
	EnableDnsHostnames bool              `json:"enableDnsHostnames"`
	EnableDnsSupport   bool              `json:"enableDnsSupport"`
	Tags               map[string]string `json:"tags"`
}

type SubnetConfig struct {
	VpcID               string            `json:"vpcId"`
	CidrBlock           string            `json:"cidrBlock"`
	AvailabilityZone    string            `json:"availabilityZone"`
	MapPublicIpOnLaunch bool              `json:"mapPublicIpOnLaunch"`
	Tags                map[string]string `json:"tags"`
}

type InternetGatewayConfig struct {
	VpcID string            `json:"vpcId"`
	Tags  map[string]string `json:"tags"`
}

type RouteConfig struct {
	CidrBlock string `json:"cidrBlock"`
	GatewayID string `json:"gatewayId"`
}

type RouteTableConfig struct {
	VpcID  string            `json:"vpcId"`
	Routes []RouteConfig     `json:"routes"`
	Tags   map[string]string `json:"tags"`
}

type RouteTableAssociationConfig struct {
	SubnetID     string `json:"subnetId"`
	RouteTableID string `json:"routeTableId"`
}

type SecurityGroupRule struct {
	Description string   `json:"description"`
	Protocol    string   `json:"protocol"`
	FromPort    int32    `json:"fromPort"`
	ToPort      int32    `json:"toPort"`
	CidrBlocks  []string `json:"cidrBlocks"`
}

type SecurityGroupConfig struct {
	Description string              `json:"description"`
	VpcID       string              `json:"vpcId"`
	Ingress     []SecurityGroupRule `json:"ingress"`
	Egress      []SecurityGroupRule `json:"egress"`
	Tags        map[string]string   `json:"tags"`
}

// associationTag is written on a route table to record which subnet an
// association resource bound to it. Associations cannot carry tags.
func associationTag(name string) string {
	return "craftstack:association:" + name
}

func (p *Provider) createVpc(ctx context.Context, req *pb.RegisterRequest) (*pb.RegisterResponse, error) {
	var desired VpcConfig
	if err := decode(req.Inputs, &desired); err != nil {
		return nil, err
	}

	existing, err := p.findVpc(ctx, req)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return adopt(req, existing, nil), nil
	}

	resp, err := p.api.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         aws.String(desired.CidrBlock),
		TagSpecifications: tagSpec(types.ResourceTypeVpc, req.Stack, req.Name, desired.Tags),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create VPC: %w", err)
	}
	vpcID := aws.ToString(resp.Vpc.VpcId)

	// One attribute per call.
	if desired.EnableDnsSupport {
		if _, err := p.api.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
			VpcId:            aws.String(vpcID),
			EnableDnsSupport: &types.AttributeBooleanValue{Value: aws.Bool(true)},
		}); err != nil {
			return nil, fmt.Errorf("failed to enable DNS support on %s: %w", vpcID, err)
		}
	}
	if desired.EnableDnsHostnames {
		if _, err := p.api.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
			VpcId:              aws.String(vpcID),
			EnableDnsHostnames: &types.AttributeBooleanValue{Value: aws.Bool(true)},
		}); err != nil {
			return nil, fmt.Errorf("failed to enable DNS hostnames on %s: %w", vpcID, err)
		}
	}

	return &pb.RegisterResponse{ID: vpcID, Outputs: withOutputs(req.Inputs, map[string]any{"id": vpcID})}, nil
}

func (p *Provider) createSubnet(ctx context.Context, req *pb.RegisterRequest) (*pb.RegisterResponse, error) {
	var desired SubnetConfig
	if err := decode(req.Inputs, &desired); err != nil {
		return nil, err
	}

	existing, err := p.findSubnet(ctx, req)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return adopt(req, existing, nil), nil
	}

	input := &ec2.CreateSubnetInput{
		VpcId:             aws.String(desired.VpcID),
		CidrBlock:         aws.String(desired.CidrBlock),
		TagSpecifications: tagSpec(types.ResourceTypeSubnet, req.Stack, req.Name, desired.Tags),
	}
	if desired.AvailabilityZone != "" {
		input.AvailabilityZone = aws.String(desired.AvailabilityZone)
	}

	resp, err := p.api.CreateSubnet(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create subnet: %w", err)
	}
	subnetID := aws.ToString(resp.Subnet.SubnetId)

	if desired.MapPublicIpOnLaunch {
		if _, err := p.api.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
			SubnetId:            aws.String(subnetID),
			MapPublicIpOnLaunch: &types.AttributeBooleanValue{Value: aws.Bool(true)},
		}); err != nil {
			return nil, fmt.Errorf("failed to enable public IPs on %s: %w", subnetID, err)
		}
	}

	return &pb.RegisterResponse{ID: subnetID, Outputs: withOutputs(req.Inputs, map[string]any{"id": subnetID})}, nil
}

func (p *Provider) createInternetGateway(ctx context.Context, req *pb.RegisterRequest) (*pb.RegisterResponse, error) {
	var desired InternetGatewayConfig
	if err := decode(req.Inputs, &desired); err != nil {
		return nil, err
	}

	existing, err := p.findInternetGateway(ctx, req)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return adopt(req, existing, nil), nil
	}

	resp, err := p.api.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
		TagSpecifications: tagSpec(types.ResourceTypeInternetGateway, req.Stack, req.Name, desired.Tags),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create internet gateway: %w", err)
	}
	igwID := aws.ToString(resp.InternetGateway.InternetGatewayId)

	if desired.VpcID != "" {
		if _, err := p.api.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
			InternetGatewayId: aws.String(igwID),
			VpcId:             aws.String(desired.VpcID),
		}); err != nil {
			return nil, fmt.Errorf("failed to attach internet gateway %s: %w", igwID, err)
		}
	}

	return &pb.RegisterResponse{ID: igwID, Outputs: withOutputs(req.Inputs, map[string]any{"id": igwID})}, nil
}

func (p *Provider) createRouteTable(ctx context.Context, req *pb.RegisterRequest) (*pb.RegisterResponse, error) {
	var desired RouteTableConfig
	if err := decode(req.Inputs, &desired); err != nil {
		return nil, err
	}

	existing, err := p.findRouteTable(ctx, req)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return adopt(req, existing, nil), nil
	}

	resp, err := p.api.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
		VpcId:             aws.String(desired.VpcID),
		TagSpecifications: tagSpec(types.ResourceTypeRouteTable, req.Stack, req.Name, desired.Tags),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create route table: %w", err)
	}
	rtID := aws.ToString(resp.RouteTable.RouteTableId)

	for _, route := range desired.Routes {
		if _, err := p.api.CreateRoute(ctx, &ec2.CreateRouteInput{
			RouteTableId:         aws.String(rtID),
			DestinationCidrBlock: aws.String(route.CidrBlock),
			GatewayId:            aws.String(route.GatewayID),
		}); err != nil {
			return nil, fmt.Errorf("failed to create route %s in %s: %w", route.CidrBlock, rtID, err)
		}
	}

	return &pb.RegisterResponse{ID: rtID, Outputs: withOutputs(req.Inputs, map[string]any{"id": rtID})}, nil
}

func (p *Provider) createRouteTableAssociation(ctx context.Context, req *pb.RegisterRequest) (*pb.RegisterResponse, error) {
	var desired RouteTableAssociationConfig
	if err := decode(req.Inputs, &desired); err != nil {
		return nil, err
	}

	existing, err := p.findRouteTableAssociation(ctx, desired.RouteTableID, desired.SubnetID)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return adopt(req, existing, nil), nil
	}

	resp, err := p.api.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
		RouteTableId: aws.String(desired.RouteTableID),
		SubnetId:     aws.String(desired.SubnetID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to associate route table: %w", err)
	}
	assocID := aws.ToString(resp.AssociationId)

	if _, err := p.api.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{desired.RouteTableID},
		Tags:      []types.Tag{{Key: aws.String(associationTag(req.Name)), Value: aws.String(desired.SubnetID)}},
	}); err != nil {
		return nil, fmt.Errorf("failed to tag route table %s: %w", desired.RouteTableID, err)
	}

	return &pb.RegisterResponse{ID: assocID, Outputs: withOutputs(req.Inputs, map[string]any{"id": assocID})}, nil
}

func (p *Provider) createSecurityGroup(ctx context.Context, req *pb.RegisterRequest) (*pb.RegisterResponse, error) {
	var desired SecurityGroupConfig
	if err := decode(req.Inputs, &desired); err != nil {
		return nil, err
	}

	existing, err := p.findSecurityGroup(ctx, req)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return adopt(req, existing, nil), nil
	}

	resp, err := p.api.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:         aws.String(req.Stack + "-" + req.Name),
		Description:       aws.String(desired.Description),
		VpcId:             aws.String(desired.VpcID),
		TagSpecifications: tagSpec(types.ResourceTypeSecurityGroup, req.Stack, req.Name, desired.Tags),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create security group: %w", err)
	}
	groupID := aws.ToString(resp.GroupId)

	if len(desired.Ingress) > 0 {
		if _, err := p.api.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       aws.String(groupID),
			IpPermissions: ipPermissions(desired.Ingress),
		}); err != nil {
			return nil, fmt.Errorf("failed to authorize ingress on %s: %w", groupID, err)
		}
	}

	// New groups already allow all egress; that rule comes back as a
	// duplicate.
	for _, rule := range desired.Egress {
		_, err := p.api.AuthorizeSecurityGroupEgress(ctx, &ec2.AuthorizeSecurityGroupEgressInput{
			GroupId:       aws.String(groupID),
			IpPermissions: ipPermissions([]SecurityGroupRule{rule}),
		})
		if err != nil && !isDuplicate(err) {
			return nil, fmt.Errorf("failed to authorize egress on %s: %w", groupID, err)
		}
	}

	return &pb.RegisterResponse{ID: groupID, Outputs: withOutputs(req.Inputs, map[string]any{"id": groupID})}, nil
}

func ipPermissions(rules []SecurityGroupRule) []types.IpPermission {
	perms := make([]types.IpPermission, 0, len(rules))
	for _, rule := range rules {
		perm := types.IpPermission{
			IpProtocol: aws.String(rule.Protocol),
			FromPort:   aws.Int32(rule.FromPort),
			ToPort:     aws.Int32(rule.ToPort),
		}
		for _, cidr := range rule.CidrBlocks {
			r := types.IpRange{CidrIp: aws.String(cidr)}
			if rule.Description != "" {
				r.Description = aws.String(rule.Description)
			}
			perm.IpRanges = append(perm.IpRanges, r)
		}
		perms = append(perms, perm)
	}
	return perms
}

func (p *Provider) deleteVpcs(ctx context.Context, req *pb.DeleteRequest) error {
	ids := []string{req.ID}
	if req.ID == "" {
		resp, err := p.api.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{Filters: ownerFilters(req.Stack, req.Name)})
		if err != nil {
			return fmt.Errorf("failed to describe VPCs: %w", err)
		}
		ids = ids[:0]
		for _, v := range resp.Vpcs {
			ids = append(ids, aws.ToString(v.VpcId))
		}
	}

	for _, id := range ids {
		if _, err := p.api.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: aws.String(id)}); err != nil {
			if isNotFound(err) {
				continue
			}
			return fmt.Errorf("failed to delete VPC %s: %w", id, err)
		}
		logging.Info("deleted VPC", "id", id, "name", req.Name)
	}
	return nil
}

func (p *Provider) deleteSubnets(ctx context.Context, req *pb.DeleteRequest) error {
	ids := []string{req.ID}
	if req.ID == "" {
		resp, err := p.api.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{Filters: ownerFilters(req.Stack, req.Name)})
		if err != nil {
			return fmt.Errorf("failed to describe subnets: %w", err)
		}
		ids = ids[:0]
		for _, s := range resp.Subnets {
			ids = append(ids, aws.ToString(s.SubnetId))
		}
	}

	for _, id := range ids {
		if _, err := p.api.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: aws.String(id)}); err != nil {
			if isNotFound(err) {
				continue
			}
			return fmt.Errorf("failed to delete subnet %s: %w", id, err)
		}
		logging.Info("deleted subnet", "id", id, "name", req.Name)
	}
	return nil
}

func (p *Provider) deleteInternetGateways(ctx context.Context, req *pb.DeleteRequest) error {
	input := &ec2.DescribeInternetGatewaysInput{Filters: ownerFilters(req.Stack, req.Name)}
	if req.ID != "" {
		input = &ec2.DescribeInternetGatewaysInput{InternetGatewayIds: []string{req.ID}}
	}
	resp, err := p.api.DescribeInternetGateways(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to describe internet gateways: %w", err)
	}

	for _, igw := range resp.InternetGateways {
		id := aws.ToString(igw.InternetGatewayId)
		for _, att := range igw.Attachments {
			if _, err := p.api.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
				InternetGatewayId: aws.String(id),
				VpcId:             att.VpcId,
			}); err != nil && !isNotFound(err) {
				return fmt.Errorf("failed to detach internet gateway %s: %w", id, err)
			}
		}
		if _, err := p.api.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{InternetGatewayId: aws.String(id)}); err != nil {
			if isNotFound(err) {
				continue
			}
			return fmt.Errorf("failed to delete internet gateway %s: %w", id, err)
		}
		logging.Info("deleted internet gateway", "id", id, "name", req.Name)
	}
	return nil
}

func (p *Provider) deleteRouteTables(ctx context.Context, req *pb.DeleteRequest) error {
	ids := []string{req.ID}
	if req.ID == "" {
		resp, err := p.api.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{Filters: ownerFilters(req.Stack, req.Name)})
		if err != nil {
			return fmt.Errorf("failed to describe route tables: %w", err)
		}
		ids = ids[:0]
		for _, rt := range resp.RouteTables {
			ids = append(ids, aws.ToString(rt.RouteTableId))
		}
	}

	for _, id := range ids {
		if _, err := p.api.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{RouteTableId: aws.String(id)}); err != nil {
			if isNotFound(err) {
				continue
			}
			return fmt.Errorf("failed to delete route table %s: %w", id, err)
		}
		logging.Info("deleted route table", "id", id, "name", req.Name)
	}
	return nil
}

// deleteRouteTableAssociations finds route tables carrying the association
// tag and removes the association to the recorded subnet.
func (p *Provider) deleteRouteTableAssociations(ctx context.Context, req *pb.DeleteRequest) error {
	if req.ID != "" {
		if _, err := p.api.DisassociateRouteTable(ctx, &ec2.DisassociateRouteTableInput{AssociationId: aws.String(req.ID)}); err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to disassociate %s: %w", req.ID, err)
		}
		return nil
	}

	key := associationTag(req.Name)
	resp, err := p.api.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: []types.Filter{
			{Name: aws.String("tag:" + TagStack), Values: []string{req.Stack}},
			{Name: aws.String("tag-key"), Values: []string{key}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to describe route tables: %w", err)
	}

	for _, rt := range resp.RouteTables {
		subnetID := tagValue(rt.Tags, key)
		for _, assoc := range rt.Associations {
			if aws.ToBool(assoc.Main) || aws.ToString(assoc.SubnetId) != subnetID {
				continue
			}
			id := aws.ToString(assoc.RouteTableAssociationId)
			if _, err := p.api.DisassociateRouteTable(ctx, &ec2.DisassociateRouteTableInput{AssociationId: aws.String(id)}); err != nil {
				if isNotFound(err) {
					continue
				}
				return fmt.Errorf("failed to disassociate %s: %w", id, err)
			}
			logging.Info("deleted route table association", "id", id, "name", req.Name)
		}
	}
	return nil
}

func (p *Provider) deleteSecurityGroups(ctx context.Context, req *pb.DeleteRequest) error {
	ids := []string{req.ID}
	if req.ID == "" {
		resp, err := p.api.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{Filters: ownerFilters(req.Stack, req.Name)})
		if err != nil {
			return fmt.Errorf("failed to describe security groups: %w", err)
		}
		ids = ids[:0]
		for _, sg := range resp.SecurityGroups {
			ids = append(ids, aws.ToString(sg.GroupId))
		}
	}

	for _, id := range ids {
		if _, err := p.api.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: aws.String(id)}); err != nil {
			if isNotFound(err) {
				continue
			}
			return fmt.Errorf("failed to delete security group %s: %w", id, err)
		}
		logging.Info("deleted security group", "id", id, "name", req.Name)
	}
	return nil
}

// tagSpec merges user tags with the ownership tags.
func tagSpec(rt types.ResourceType, stack, name string, tags map[string]string) []types.TagSpecification {
	merged := make(map[string]string, len(tags)+2)
	for k, v := range tags {
		merged[k] = v
	}
	merged[TagStack] = stack
	merged[TagName] = name

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(merged[k])})
	}
	return []types.TagSpecification{{ResourceType: rt, Tags: out}}
}

func ownerFilters(stack, name string) []types.Filter {
	return []types.Filter{
		{Name: aws.String("tag:" + TagStack), Values: []string{stack}},
		{Name: aws.String("tag:" + TagName), Values: []string{name}},
	}
}

func tagValue(tags []types.Tag, key string) string {
	for _, t := range tags {
		if aws.ToString(t.Key) == key {
			return aws.ToString(t.Value)
		}
	}
	return ""
}

// withOutputs returns a copy of inputs with extra keys set.
func withOutputs(inputs map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(inputs)+len(extra))
	for k, v := range inputs {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
