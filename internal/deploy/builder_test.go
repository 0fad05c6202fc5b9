package deploy

import (
	"errors"
	"testing"

	"github.com/picklr-io/craftstack/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Declare(t *testing.T) {
	b := NewBuilder("dev")

	vpc, err := b.Vpc("vpc", &ir.VpcProps{CidrBlock: "10.0.0.0/16"})
	require.NoError(t, err)
	assert.Equal(t, "aws:ec2/vpc:Vpc.vpc", vpc.Address())
	assert.Equal(t, ir.IDOf("vpc"), vpc.ID())

	_, err = b.Subnet("subnet", &ir.SubnetProps{VpcID: vpc.ID(), CidrBlock: "10.0.1.0/24"})
	require.NoError(t, err)

	d, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "dev", d.Stack)
	require.Len(t, d.Resources, 2)
	assert.Equal(t, "vpc", d.Resources[0].Name)
	assert.Equal(t, "subnet", d.Resources[1].Name)
}

func TestBuilder_DuplicateName(t *testing.T) {
	b := NewBuilder("dev")
	_, err := b.Vpc("vpc", &ir.VpcProps{CidrBlock: "10.0.0.0/16"})
	require.NoError(t, err)

	_, err = b.Vpc("vpc", &ir.VpcProps{CidrBlock: "10.1.0.0/16"})
	var cfgErr *ir.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "vpc", cfgErr.Resource)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestBuilder_InvalidProps(t *testing.T) {
	tests := []struct {
		name  string
		props ir.Properties
		want  string
	}{
		{"bad cidr", &ir.VpcProps{CidrBlock: "10.0.0.0/33"}, "cidrBlock"},
		{"missing vpc ref", &ir.SubnetProps{CidrBlock: "10.0.1.0/24"}, "vpcId"},
		{"bad port range", &ir.SecurityGroupProps{
			VpcID:   ir.IDOf("vpc"),
			Ingress: []ir.SecurityRule{{Protocol: "tcp", FromPort: 80, ToPort: 22, CidrBlocks: []string{"0.0.0.0/0"}}},
		}, "fromPort"},
		{"bad protocol", &ir.SecurityGroupProps{
			VpcID:  ir.IDOf("vpc"),
			Egress: []ir.SecurityRule{{Protocol: "sctp", CidrBlocks: []string{"0.0.0.0/0"}}},
		}, "protocol"},
		{"empty key", &ir.KeyPairProps{KeyName: "k"}, "publicKey"},
		{"image without owners", &ir.ImageQueryProps{Filters: []ir.Filter{{Name: "name", Values: []string{"x"}}}}, "owners"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder("dev")
			_, err := b.Declare("r", tt.props)
			var cfgErr *ir.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuilder_DanglingReference(t *testing.T) {
	b := NewBuilder("dev")
	_, err := b.Subnet("subnet", &ir.SubnetProps{VpcID: ir.IDOf("missing-vpc"), CidrBlock: "10.0.1.0/24"})
	require.NoError(t, err)

	_, err = b.Build()
	var resErr *ir.ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "subnet", resErr.Resource)
	assert.Equal(t, "missing-vpc", resErr.Ref)
}

func TestBuilder_DanglingDependsOn(t *testing.T) {
	b := NewBuilder("dev")
	_, err := b.Vpc("vpc", &ir.VpcProps{CidrBlock: "10.0.0.0/16"}, DependsOn("ghost"))
	require.NoError(t, err)

	_, err = b.Build()
	var resErr *ir.ResolutionError
	assert.True(t, errors.As(err, &resErr))
}

func TestBuilder_Export(t *testing.T) {
	b := NewBuilder("dev")
	vpc, err := b.Vpc("vpc", &ir.VpcProps{CidrBlock: "10.0.0.0/16"})
	require.NoError(t, err)

	require.NoError(t, b.Export("vpc_id", ir.FromRef(vpc.ID())))
	require.NoError(t, b.Export("greeting", ir.Lit("hello")))

	err = b.Export("greeting", ir.Lit("again"))
	var cfgErr *ir.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))

	d, err := b.Build()
	require.NoError(t, err)
	require.Len(t, d.Outputs, 2)
	assert.Equal(t, "vpc_id", d.Outputs[0].Name)
	assert.Equal(t, "greeting", d.Outputs[1].Name)
}

func TestBuilder_DanglingOutput(t *testing.T) {
	b := NewBuilder("dev")
	require.NoError(t, b.Export("ip", ir.FromRef(ir.RefTo("vm", "publicIp"))))

	_, err := b.Build()
	var resErr *ir.ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "vm.publicIp", resErr.Ref)
}

func TestBuilder_Isolated(t *testing.T) {
	a := NewBuilder("a")
	b := NewBuilder("b")

	_, err := a.Vpc("vpc", &ir.VpcProps{CidrBlock: "10.0.0.0/16"})
	require.NoError(t, err)
	_, err = b.Vpc("vpc", &ir.VpcProps{CidrBlock: "10.0.0.0/16"})
	require.NoError(t, err)

	da, err := a.Build()
	require.NoError(t, err)
	db, err := b.Build()
	require.NoError(t, err)
	assert.Len(t, da.Resources, 1)
	assert.Len(t, db.Resources, 1)
}
