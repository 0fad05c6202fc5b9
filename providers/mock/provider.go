// Package mock implements a deterministic provisioning backend for tests and
// offline previews. It never talks to a cloud API.
package mock

import (
	"context"
	"sync"

	pb "github.com/picklr-io/craftstack/pkg/provider"
)

// Fabricated image returned for every image lookup.
const (
	ImageID           = "ami-07866401f69c8006d"
	ImageArchitecture = "x86_64"
)

// Call records one request seen by the provider.
type Call struct {
	Method string // "register", "invoke" or "delete"
	Type   string
	Name   string
}

type Provider struct {
	mu    sync.Mutex
	calls []Call
}

func New() *Provider {
	return &Provider{}
}

// Register returns name+"_id" as the id and echoes the inputs as outputs.
// Instances get no fabricated fields such as a public IP.
func (p *Provider) Register(ctx context.Context, req *pb.RegisterRequest) (*pb.RegisterResponse, error) {
	p.record(Call{Method: "register", Type: req.Type, Name: req.Name})

	return &pb.RegisterResponse{
		ID:      req.Name + "_id",
		Outputs: cloneMap(req.Inputs),
	}, nil
}

// Invoke answers image lookups with a fixed image and everything else with
// an empty result.
func (p *Provider) Invoke(ctx context.Context, req *pb.InvokeRequest) (*pb.InvokeResponse, error) {
	p.record(Call{Method: "invoke", Type: req.Token})

	switch pb.ClassifyToken(req.Token) {
	case pb.FunctionImageLookup:
		return &pb.InvokeResponse{Result: map[string]any{
			"id":           ImageID,
			"architecture": ImageArchitecture,
		}}, nil
	default:
		return &pb.InvokeResponse{Result: map[string]any{}}, nil
	}
}

func (p *Provider) Delete(ctx context.Context, req *pb.DeleteRequest) error {
	p.record(Call{Method: "delete", Type: req.Type, Name: req.Name})
	return nil
}

// Calls returns a copy of every request seen so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *Provider) record(c Call) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
