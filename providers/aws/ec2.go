package aws

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/picklr-io/craftstack/internal/ir"
	"github.com/picklr-io/craftstack/internal/logging"
	pb "github.com/picklr-io/craftstack/pkg/provider"
)

type ImageFilter struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type ImageQueryConfig struct {
	Filters    []ImageFilter `json:"filters"`
	MostRecent bool          `json:"mostRecent"`
	Owners     []string      `json:"owners"`
}

type KeyPairConfig struct {
	KeyName   string `json:"keyName"`
	PublicKey string `json:"publicKey"`
}

type InstanceConfig struct {
	InstanceType     string            `json:"instanceType"`
	AMI              string            `json:"ami"`
	SubnetID         string            `json:"subnetId"`
	SecurityGroupIDs []string          `json:"vpcSecurityGroupIds"`
	KeyName          string            `json:"keyName"`
	UserData         string            `json:"userData"`
	Tags             map[string]string `json:"tags"`
}

// lookupImage resolves an image query to exactly one image. With mostRecent
// set, the image with the latest creation date wins; images tied on that
// date resolve to whichever EC2 listed first.
func (p *Provider) lookupImage(ctx context.Context, req *pb.InvokeRequest) (*pb.InvokeResponse, error) {
	var q ImageQueryConfig
	if err := decode(req.Args, &q); err != nil {
		return nil, err
	}

	input := &ec2.DescribeImagesInput{Owners: q.Owners}
	for _, f := range q.Filters {
		input.Filters = append(input.Filters, types.Filter{Name: aws.String(f.Name), Values: f.Values})
	}

	resp, err := p.api.DescribeImages(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to describe images: %w", err)
	}
	if len(resp.Images) == 0 {
		return nil, &ir.NoMatchError{Filters: toIRFilters(q.Filters), Owners: q.Owners}
	}
	if len(resp.Images) > 1 && !q.MostRecent {
		return nil, fmt.Errorf("image query matched %d images; narrow the filters or set mostRecent", len(resp.Images))
	}

	best := resp.Images[0]
	for _, img := range resp.Images[1:] {
		// CreationDate is ISO 8601, so string order is time order.
		if aws.ToString(img.CreationDate) > aws.ToString(best.CreationDate) {
			best = img
		}
	}

	logging.Debug("image lookup", "matches", len(resp.Images), "image", aws.ToString(best.ImageId))
	return &pb.InvokeResponse{Result: map[string]any{
		"id":           aws.ToString(best.ImageId),
		"name":         aws.ToString(best.Name),
		"architecture": string(best.Architecture),
		"creationDate": aws.ToString(best.CreationDate),
		"ownerId":      aws.ToString(best.OwnerId),
	}}, nil
}

func toIRFilters(filters []ImageFilter) []ir.Filter {
	out := make([]ir.Filter, len(filters))
	for i, f := range filters {
		out[i] = ir.Filter{Name: f.Name, Values: f.Values}
	}
	return out
}

func (p *Provider) importKeyPair(ctx context.Context, req *pb.RegisterRequest) (*pb.RegisterResponse, error) {
	var desired KeyPairConfig
	if err := decode(req.Inputs, &desired); err != nil {
		return nil, err
	}

	existing, err := p.findKeyPair(ctx, req)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return adopt(req, aws.ToString(existing.KeyPairId), map[string]any{
			"keyName":     aws.ToString(existing.KeyName),
			"fingerprint": aws.ToString(existing.KeyFingerprint),
		}), nil
	}

	resp, err := p.api.ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
		KeyName:           aws.String(desired.KeyName),
		PublicKeyMaterial: []byte(desired.PublicKey),
		TagSpecifications: tagSpec(types.ResourceTypeKeyPair, req.Stack, req.Name, nil),
	})
	if err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("key pair %q exists but does not belong to stack %s; set a different keyName: %w", desired.KeyName, req.Stack, err)
		}
		return nil, fmt.Errorf("failed to import key pair: %w", err)
	}

	keyPairID := aws.ToString(resp.KeyPairId)
	return &pb.RegisterResponse{
		ID: keyPairID,
		Outputs: withOutputs(req.Inputs, map[string]any{
			"id":          keyPairID,
			"keyName":     aws.ToString(resp.KeyName),
			"fingerprint": aws.ToString(resp.KeyFingerprint),
		}),
	}, nil
}

func (p *Provider) runInstance(ctx context.Context, req *pb.RegisterRequest) (*pb.RegisterResponse, error) {
	var desired InstanceConfig
	if err := decode(req.Inputs, &desired); err != nil {
		return nil, err
	}

	input := &ec2.RunInstancesInput{
		ImageId:           aws.String(desired.AMI),
		InstanceType:      types.InstanceType(desired.InstanceType),
		MinCount:          aws.Int32(1),
		MaxCount:          aws.Int32(1),
		SubnetId:          aws.String(desired.SubnetID),
		SecurityGroupIds:  desired.SecurityGroupIDs,
		TagSpecifications: tagSpec(types.ResourceTypeInstance, req.Stack, req.Name, desired.Tags),
	}
	if desired.KeyName != "" {
		input.KeyName = aws.String(desired.KeyName)
	}
	if desired.UserData != "" {
		input.UserData = aws.String(base64.StdEncoding.EncodeToString([]byte(desired.UserData)))
	}

	instanceID, err := p.findInstance(ctx, req)
	if err != nil {
		return nil, err
	}
	if instanceID != "" {
		logging.Info("adopting existing resource", "type", req.Type, "name", req.Name, "stack", req.Stack, "id", instanceID)
	} else {
		resp, err := p.api.RunInstances(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to run instance: %w", err)
		}
		if len(resp.Instances) == 0 {
			return nil, fmt.Errorf("no instances created")
		}
		instanceID = aws.ToString(resp.Instances[0].InstanceId)
	}

	// Wait for running state
	waiter := ec2.NewInstanceRunningWaiter(p.api)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	}, p.WaitTimeout); err != nil {
		return nil, fmt.Errorf("failed to wait for instance %s running: %w", instanceID, err)
	}

	// Public addresses are assigned by the time the instance runs.
	desc, err := p.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance %s: %w", instanceID, err)
	}

	outputs := withOutputs(req.Inputs, map[string]any{"id": instanceID})
	if len(desc.Reservations) > 0 && len(desc.Reservations[0].Instances) > 0 {
		inst := desc.Reservations[0].Instances[0]
		outputs["publicIp"] = aws.ToString(inst.PublicIpAddress)
		outputs["privateIp"] = aws.ToString(inst.PrivateIpAddress)
		outputs["publicDns"] = aws.ToString(inst.PublicDnsName)
	}

	logging.Info("instance running", "id", instanceID, "name", req.Name, "public_ip", outputs["publicIp"])
	return &pb.RegisterResponse{ID: instanceID, Outputs: outputs}, nil
}

func (p *Provider) terminateInstances(ctx context.Context, req *pb.DeleteRequest) error {
	ids := []string{req.ID}
	if req.ID == "" {
		filters := append(ownerFilters(req.Stack, req.Name), types.Filter{
			Name:   aws.String("instance-state-name"),
			Values: []string{"pending", "running", "stopping", "stopped"},
		})
		resp, err := p.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{Filters: filters})
		if err != nil {
			return fmt.Errorf("failed to describe instances: %w", err)
		}
		ids = ids[:0]
		for _, r := range resp.Reservations {
			for _, inst := range r.Instances {
				ids = append(ids, aws.ToString(inst.InstanceId))
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	if _, err := p.api.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to terminate instances: %w", err)
	}

	// Dependent network resources cannot be deleted until the instance is gone.
	waiter := ec2.NewInstanceTerminatedWaiter(p.api)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: ids}, p.WaitTimeout); err != nil {
		return fmt.Errorf("failed to wait for instance termination: %w", err)
	}
	logging.Info("terminated instances", "ids", ids, "name", req.Name)
	return nil
}

func (p *Provider) deleteKeyPairs(ctx context.Context, req *pb.DeleteRequest) error {
	ids := []string{req.ID}
	if req.ID == "" {
		resp, err := p.api.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{Filters: ownerFilters(req.Stack, req.Name)})
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to describe key pairs: %w", err)
		}
		ids = ids[:0]
		for _, kp := range resp.KeyPairs {
			ids = append(ids, aws.ToString(kp.KeyPairId))
		}
	}

	for _, id := range ids {
		if _, err := p.api.DeleteKeyPair(ctx, &ec2.DeleteKeyPairInput{KeyPairId: aws.String(id)}); err != nil {
			if isNotFound(err) {
				continue
			}
			return fmt.Errorf("failed to delete key pair %s: %w", id, err)
		}
		logging.Info("deleted key pair", "id", id, "name", req.Name)
	}
	return nil
}
