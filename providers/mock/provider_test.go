package mock

import (
	"context"
	"testing"

	pb "github.com/picklr-io/craftstack/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Register(t *testing.T) {
	p := New()
	ctx := context.Background()

	inputs := map[string]any{
		"instanceType": "t3.xlarge",
		"tags":         map[string]any{"Name": "minecraft"},
	}

	resp, err := p.Register(ctx, &pb.RegisterRequest{
		Type:   "aws:ec2/instance:Instance",
		Name:   "minecraft-instance",
		Inputs: inputs,
	})
	require.NoError(t, err)
	assert.Equal(t, "minecraft-instance_id", resp.ID)
	assert.Equal(t, inputs, resp.Outputs)

	// Outputs must not alias the request inputs
	resp.Outputs["tags"].(map[string]any)["Name"] = "changed"
	assert.Equal(t, "minecraft", inputs["tags"].(map[string]any)["Name"])
}

func TestProvider_RegisterDeterministic(t *testing.T) {
	p := New()
	ctx := context.Background()

	req := &pb.RegisterRequest{
		Type:   "aws:ec2/vpc:Vpc",
		Name:   "minecraft-vpc",
		Inputs: map[string]any{"cidrBlock": "10.0.0.0/16"},
	}

	first, err := p.Register(ctx, req)
	require.NoError(t, err)
	second, err := p.Register(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "minecraft-vpc_id", first.ID)
}

func TestProvider_Invoke(t *testing.T) {
	p := New()
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
		args  map[string]any
		want  map[string]any
	}{
		{
			name:  "image lookup ignores filters",
			token: pb.TokenImageLookup,
			args:  map[string]any{"owners": []any{"099720109477"}},
			want:  map[string]any{"id": ImageID, "architecture": ImageArchitecture},
		},
		{
			name:  "image lookup with no args",
			token: pb.TokenImageLookup,
			want:  map[string]any{"id": ImageID, "architecture": ImageArchitecture},
		},
		{
			name:  "unknown token",
			token: "aws:index/getRegion:getRegion",
			args:  map[string]any{"name": "eu-central-1"},
			want:  map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := p.Invoke(ctx, &pb.InvokeRequest{Token: tt.token, Args: tt.args})
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Result)
		})
	}
}

func TestProvider_Calls(t *testing.T) {
	p := New()
	ctx := context.Background()

	_, err := p.Invoke(ctx, &pb.InvokeRequest{Token: pb.TokenImageLookup})
	require.NoError(t, err)
	_, err = p.Register(ctx, &pb.RegisterRequest{Type: "aws:ec2/vpc:Vpc", Name: "vpc"})
	require.NoError(t, err)
	require.NoError(t, p.Delete(ctx, &pb.DeleteRequest{Type: "aws:ec2/vpc:Vpc", Name: "vpc"}))

	assert.Equal(t, []Call{
		{Method: "invoke", Type: pb.TokenImageLookup},
		{Method: "register", Type: "aws:ec2/vpc:Vpc", Name: "vpc"},
		{Method: "delete", Type: "aws:ec2/vpc:Vpc", Name: "vpc"},
	}, p.Calls())
}
