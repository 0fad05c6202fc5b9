package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/picklr-io/craftstack/internal/logging"
	pb "github.com/picklr-io/craftstack/pkg/provider"
)

// adopt answers a register request with an existing resource.
//
// Register is an upsert: before creating anything the provider looks for a
// resource already carrying the request's ownership tags and, if there is
// one, hands it back instead. Running up twice on a stack therefore creates
// nothing new. Adopted resources are not reconciled against the inputs.
func adopt(req *pb.RegisterRequest, id string, extra map[string]any) *pb.RegisterResponse {
	logging.Info("adopting existing resource", "type", req.Type, "name", req.Name, "stack", req.Stack, "id", id)
	outputs := map[string]any{"id": id}
	for k, v := range extra {
		outputs[k] = v
	}
	return &pb.RegisterResponse{ID: id, Outputs: withOutputs(req.Inputs, outputs)}
}

// single returns the only id in ids, "" for none, and an error when the
// stack owns more than one resource under the same name.
func single(req *pb.RegisterRequest, kind string, ids []string) (string, error) {
	switch len(ids) {
	case 0:
		return "", nil
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("stack %s has %d %ss named %s (%v); run destroy to clean up", req.Stack, len(ids), kind, req.Name, ids)
	}
}

func (p *Provider) findVpc(ctx context.Context, req *pb.RegisterRequest) (string, error) {
	resp, err := p.api.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{Filters: ownerFilters(req.Stack, req.Name)})
	if err != nil {
		return "", fmt.Errorf("failed to look up VPC %s: %w", req.Name, err)
	}
	var ids []string
	for _, v := range resp.Vpcs {
		ids = append(ids, aws.ToString(v.VpcId))
	}
	return single(req, "VPC", ids)
}

func (p *Provider) findSubnet(ctx context.Context, req *pb.RegisterRequest) (string, error) {
	resp, err := p.api.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{Filters: ownerFilters(req.Stack, req.Name)})
	if err != nil {
		return "", fmt.Errorf("failed to look up subnet %s: %w", req.Name, err)
	}
	var ids []string
	for _, s := range resp.Subnets {
		ids = append(ids, aws.ToString(s.SubnetId))
	}
	return single(req, "subnet", ids)
}

func (p *Provider) findInternetGateway(ctx context.Context, req *pb.RegisterRequest) (string, error) {
	resp, err := p.api.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{Filters: ownerFilters(req.Stack, req.Name)})
	if err != nil {
		return "", fmt.Errorf("failed to look up internet gateway %s: %w", req.Name, err)
	}
	var ids []string
	for _, g := range resp.InternetGateways {
		ids = append(ids, aws.ToString(g.InternetGatewayId))
	}
	return single(req, "internet gateway", ids)
}

func (p *Provider) findRouteTable(ctx context.Context, req *pb.RegisterRequest) (string, error) {
	resp, err := p.api.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{Filters: ownerFilters(req.Stack, req.Name)})
	if err != nil {
		return "", fmt.Errorf("failed to look up route table %s: %w", req.Name, err)
	}
	var ids []string
	for _, rt := range resp.RouteTables {
		ids = append(ids, aws.ToString(rt.RouteTableId))
	}
	return single(req, "route table", ids)
}

// findRouteTableAssociation looks for subnetID among the associations of
// routeTableID. Associations carry no tags of their own.
func (p *Provider) findRouteTableAssociation(ctx context.Context, routeTableID, subnetID string) (string, error) {
	resp, err := p.api.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{RouteTableIds: []string{routeTableID}})
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to look up associations of %s: %w", routeTableID, err)
	}
	for _, rt := range resp.RouteTables {
		for _, assoc := range rt.Associations {
			if aws.ToBool(assoc.Main) || aws.ToString(assoc.SubnetId) != subnetID {
				continue
			}
			if assoc.AssociationState != nil && assoc.AssociationState.State != types.RouteTableAssociationStateCodeAssociated {
				continue
			}
			return aws.ToString(assoc.RouteTableAssociationId), nil
		}
	}
	return "", nil
}

func (p *Provider) findSecurityGroup(ctx context.Context, req *pb.RegisterRequest) (string, error) {
	resp, err := p.api.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{Filters: ownerFilters(req.Stack, req.Name)})
	if err != nil {
		return "", fmt.Errorf("failed to look up security group %s: %w", req.Name, err)
	}
	var ids []string
	for _, g := range resp.SecurityGroups {
		ids = append(ids, aws.ToString(g.GroupId))
	}
	return single(req, "security group", ids)
}

func (p *Provider) findKeyPair(ctx context.Context, req *pb.RegisterRequest) (*types.KeyPairInfo, error) {
	resp, err := p.api.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{Filters: ownerFilters(req.Stack, req.Name)})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up key pair %s: %w", req.Name, err)
	}
	var ids []string
	for _, kp := range resp.KeyPairs {
		ids = append(ids, aws.ToString(kp.KeyPairId))
	}
	if _, err := single(req, "key pair", ids); err != nil || len(ids) == 0 {
		return nil, err
	}
	return &resp.KeyPairs[0], nil
}

// findInstance returns the stack's live instance for req. A stopped or
// stopping instance is an error: it cannot serve the outputs up promises.
func (p *Provider) findInstance(ctx context.Context, req *pb.RegisterRequest) (string, error) {
	filters := append(ownerFilters(req.Stack, req.Name), types.Filter{
		Name:   aws.String("instance-state-name"),
		Values: []string{"pending", "running", "stopping", "stopped"},
	})
	resp, err := p.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{Filters: filters})
	if err != nil {
		return "", fmt.Errorf("failed to look up instance %s: %w", req.Name, err)
	}

	var ids []string
	for _, r := range resp.Reservations {
		for _, inst := range r.Instances {
			id := aws.ToString(inst.InstanceId)
			if inst.State != nil {
				switch inst.State.Name {
				case types.InstanceStateNameStopping, types.InstanceStateNameStopped:
					return "", fmt.Errorf("instance %s of stack %s is %s; start it or run destroy first", id, req.Stack, inst.State.Name)
				}
			}
			ids = append(ids, id)
		}
	}
	return single(req, "instance", ids)
}
