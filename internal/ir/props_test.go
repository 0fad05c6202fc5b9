package ir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_Tokens(t *testing.T) {
	for k := KindVpc; k <= KindInstance; k++ {
		token := k.Token()
		require.NotEmpty(t, token, "kind %s has no token", k)
		assert.Equal(t, k, KindForToken(token))
	}
	assert.Equal(t, KindUnknown, KindForToken("aws:s3/bucket:Bucket"))
	assert.True(t, KindImageQuery.IsDataSource())
	assert.False(t, KindInstance.IsDataSource())
}

func TestResource_References(t *testing.T) {
	res := &Resource{
		Name: "vm",
		Props: &InstanceProps{
			InstanceType:     "t3.xlarge",
			Ami:              IDOf("ami"),
			SubnetID:         IDOf("subnet"),
			SecurityGroupIDs: []Ref{IDOf("sg"), IDOf("sg")},
			KeyName:          RefTo("key", "keyName"),
		},
		DependsOn: []string{"subnet", "igw"},
	}

	assert.Equal(t, []string{"ami", "subnet", "key", "sg", "igw"}, res.References())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		props   Properties
		wantErr string
	}{
		{"valid vpc", &VpcProps{CidrBlock: "10.0.0.0/16"}, ""},
		{"vpc bad cidr", &VpcProps{CidrBlock: "10.0.0.0"}, "invalid CIDR"},
		{"subnet missing vpc", &SubnetProps{CidrBlock: "10.0.48.0/20"}, "vpcId"},
		{"route bad cidr", &RouteTableProps{VpcID: IDOf("vpc"), Routes: []Route{{CidrBlock: "any", GatewayID: IDOf("igw")}}}, "routes[0].cidrBlock"},
		{"association missing table", &RouteTableAssociationProps{SubnetID: IDOf("s")}, "routeTableId"},
		{"sg port out of range", &SecurityGroupProps{
			VpcID:   IDOf("vpc"),
			Ingress: []SecurityRule{{Protocol: "tcp", FromPort: 0, ToPort: 70000, CidrBlocks: []string{"0.0.0.0/0"}}},
		}, "out of bounds"},
		{"sg missing blocks", &SecurityGroupProps{
			VpcID:   IDOf("vpc"),
			Ingress: []SecurityRule{{Protocol: "udp", FromPort: 1, ToPort: 2}},
		}, "at least one block"},
		{"sg all traffic", &SecurityGroupProps{
			VpcID:  IDOf("vpc"),
			Egress: []SecurityRule{{Protocol: "-1", CidrBlocks: []string{"0.0.0.0/0"}}},
		}, ""},
		{"image filter without values", &ImageQueryProps{Filters: []Filter{{Name: "name"}}, Owners: []string{"self"}}, "filters[0]"},
		{"instance missing type", &InstanceProps{Ami: IDOf("ami"), SubnetID: IDOf("s"), KeyName: RefTo("k", "keyName")}, "instanceType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.props.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInputs_ResolvesReferences(t *testing.T) {
	ids := map[string]any{
		"ami":    "ami-123",
		"subnet": "subnet-1",
		"sg":     "sg-1",
	}
	r := ResolverFunc(func(ref Ref) (any, error) {
		if ref.Attribute == "keyName" {
			return "minecraft", nil
		}
		return ids[ref.Resource], nil
	})

	props := &InstanceProps{
		InstanceType:     "t3.xlarge",
		Ami:              IDOf("ami"),
		SubnetID:         IDOf("subnet"),
		SecurityGroupIDs: []Ref{IDOf("sg")},
		KeyName:          RefTo("key", "keyName"),
		UserData:         "#cloud-config",
		Tags:             map[string]string{"Name": "vm"},
	}

	inputs, err := props.Inputs(r)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"instanceType":        "t3.xlarge",
		"ami":                 "ami-123",
		"subnetId":            "subnet-1",
		"vpcSecurityGroupIds": []any{"sg-1"},
		"keyName":             "minecraft",
		"userData":            "#cloud-config",
		"tags":                map[string]any{"Name": "vm"},
	}, inputs)
}

func TestInputs_ResolverError(t *testing.T) {
	boom := errors.New("boom")
	r := ResolverFunc(func(Ref) (any, error) { return nil, boom })

	_, err := (&RouteTableProps{VpcID: IDOf("vpc")}).Inputs(r)
	assert.ErrorIs(t, err, boom)
}

func TestErrors(t *testing.T) {
	inner := errors.New("no such file")
	cfgErr := &ConfigurationError{Resource: "minecraft-keypair", Reason: "failed to read public key", Err: inner}
	assert.ErrorIs(t, cfgErr, inner)
	assert.Equal(t, "configuration error in minecraft-keypair: failed to read public key: no such file", cfgErr.Error())

	resErr := &ResolutionError{Resource: "subnet", Ref: "vpc", Reason: "reference to undeclared resource"}
	assert.Equal(t, "resolution error in subnet (reference vpc): reference to undeclared resource", resErr.Error())

	noMatch := &NoMatchError{Filters: []Filter{{Name: "name", Values: []string{"x*"}}}, Owners: []string{"self"}}
	wrapped := &ResolutionError{Resource: "ami", Reason: "image lookup failed", Err: noMatch}
	var target *NoMatchError
	assert.True(t, errors.As(wrapped, &target))
}
