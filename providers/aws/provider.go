// Package aws is a provisioning backend that creates the game-server
// resources through the EC2 API.
//
// It keeps no state of its own. Every resource it creates is tagged with the
// stack and resource name, and Delete finds resources again through those
// tags.
package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/smithy-go"

	"github.com/picklr-io/craftstack/internal/ir"
	"github.com/picklr-io/craftstack/internal/logging"
	pb "github.com/picklr-io/craftstack/pkg/provider"
)

// Tag keys written on every created resource.
const (
	TagStack = "craftstack:stack"
	TagName  = "craftstack:name"
)

// EC2API is the subset of the EC2 client used by the provider.
type EC2API interface {
	CreateVpc(ctx context.Context, params *ec2.CreateVpcInput, optFns ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error)
	ModifyVpcAttribute(ctx context.Context, params *ec2.ModifyVpcAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifyVpcAttributeOutput, error)
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DeleteVpc(ctx context.Context, params *ec2.DeleteVpcInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error)

	CreateSubnet(ctx context.Context, params *ec2.CreateSubnetInput, optFns ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error)
	ModifySubnetAttribute(ctx context.Context, params *ec2.ModifySubnetAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifySubnetAttributeOutput, error)
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	DeleteSubnet(ctx context.Context, params *ec2.DeleteSubnetInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error)

	CreateInternetGateway(ctx context.Context, params *ec2.CreateInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.CreateInternetGatewayOutput, error)
	AttachInternetGateway(ctx context.Context, params *ec2.AttachInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.AttachInternetGatewayOutput, error)
	DescribeInternetGateways(ctx context.Context, params *ec2.DescribeInternetGatewaysInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInternetGatewaysOutput, error)
	DetachInternetGateway(ctx context.Context, params *ec2.DetachInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DetachInternetGatewayOutput, error)
	DeleteInternetGateway(ctx context.Context, params *ec2.DeleteInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DeleteInternetGatewayOutput, error)

	CreateRouteTable(ctx context.Context, params *ec2.CreateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteTableOutput, error)
	CreateRoute(ctx context.Context, params *ec2.CreateRouteInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error)
	AssociateRouteTable(ctx context.Context, params *ec2.AssociateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.AssociateRouteTableOutput, error)
	DescribeRouteTables(ctx context.Context, params *ec2.DescribeRouteTablesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error)
	DisassociateRouteTable(ctx context.Context, params *ec2.DisassociateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.DisassociateRouteTableOutput, error)
	DeleteRouteTable(ctx context.Context, params *ec2.DeleteRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.DeleteRouteTableOutput, error)

	CreateSecurityGroup(ctx context.Context, params *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	AuthorizeSecurityGroupEgress(ctx context.Context, params *ec2.AuthorizeSecurityGroupEgressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupEgressOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	DeleteSecurityGroup(ctx context.Context, params *ec2.DeleteSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error)

	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)

	ImportKeyPair(ctx context.Context, params *ec2.ImportKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.ImportKeyPairOutput, error)
	DescribeKeyPairs(ctx context.Context, params *ec2.DescribeKeyPairsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error)
	DeleteKeyPair(ctx context.Context, params *ec2.DeleteKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.DeleteKeyPairOutput, error)

	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)

	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
}

// Provider implements pb.Backend on top of EC2.
type Provider struct {
	api EC2API

	// WaitTimeout bounds how long instance create and terminate wait for
	// the target state.
	WaitTimeout time.Duration
}

// LoadConfig loads the shared AWS configuration for region and, if set,
// a named profile.
func LoadConfig(ctx context.Context, region, profile string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return cfg, nil
}

// New returns a provider backed by a real EC2 client.
func New(ctx context.Context, region, profile string) (*Provider, error) {
	cfg, err := LoadConfig(ctx, region, profile)
	if err != nil {
		return nil, err
	}
	return NewWithClient(ec2.NewFromConfig(cfg)), nil
}

// NewWithClient returns a provider that talks to api.
func NewWithClient(api EC2API) *Provider {
	return &Provider{api: api, WaitTimeout: 5 * time.Minute}
}

func (p *Provider) Register(ctx context.Context, req *pb.RegisterRequest) (*pb.RegisterResponse, error) {
	logging.Debug("aws register", "type", req.Type, "name", req.Name)

	switch ir.KindForToken(req.Type) {
	case ir.KindVpc:
		return p.createVpc(ctx, req)
	case ir.KindSubnet:
		return p.createSubnet(ctx, req)
	case ir.KindInternetGateway:
		return p.createInternetGateway(ctx, req)
	case ir.KindRouteTable:
		return p.createRouteTable(ctx, req)
	case ir.KindRouteTableAssociation:
		return p.createRouteTableAssociation(ctx, req)
	case ir.KindSecurityGroup:
		return p.createSecurityGroup(ctx, req)
	case ir.KindKeyPair:
		return p.importKeyPair(ctx, req)
	case ir.KindInstance:
		return p.runInstance(ctx, req)
	}

	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}

func (p *Provider) Invoke(ctx context.Context, req *pb.InvokeRequest) (*pb.InvokeResponse, error) {
	switch pb.ClassifyToken(req.Token) {
	case pb.FunctionImageLookup:
		return p.lookupImage(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported function: %s", req.Token)
	}
}

func (p *Provider) Delete(ctx context.Context, req *pb.DeleteRequest) error {
	logging.Debug("aws delete", "type", req.Type, "name", req.Name, "stack", req.Stack)

	switch ir.KindForToken(req.Type) {
	case ir.KindVpc:
		return p.deleteVpcs(ctx, req)
	case ir.KindSubnet:
		return p.deleteSubnets(ctx, req)
	case ir.KindInternetGateway:
		return p.deleteInternetGateways(ctx, req)
	case ir.KindRouteTable:
		return p.deleteRouteTables(ctx, req)
	case ir.KindRouteTableAssociation:
		return p.deleteRouteTableAssociations(ctx, req)
	case ir.KindSecurityGroup:
		return p.deleteSecurityGroups(ctx, req)
	case ir.KindKeyPair:
		return p.deleteKeyPairs(ctx, req)
	case ir.KindInstance:
		return p.terminateInstances(ctx, req)
	case ir.KindImageQuery:
		return nil
	}

	return fmt.Errorf("unknown resource type: %s", req.Type)
}

// decode converts an input bag into a typed config through its JSON tags.
func decode(inputs map[string]any, out any) error {
	data, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal inputs: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal inputs: %w", err)
	}
	return nil
}

// isNotFound reports whether err is an EC2 "*.NotFound" API error.
func isNotFound(err error) bool {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return strings.HasSuffix(ae.ErrorCode(), ".NotFound") || strings.HasSuffix(ae.ErrorCode(), ".NotFoundException")
	}
	return false
}

// isDuplicate reports whether err is an EC2 "*.Duplicate" API error.
func isDuplicate(err error) bool {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return strings.HasSuffix(ae.ErrorCode(), ".Duplicate")
	}
	return false
}
