// Package provider defines the contract between the craftstack evaluator and
// a provisioning backend.
//
// A backend registers resources, invokes lookup functions, and deletes what
// it registered. Ordering, reference resolution and policy checks happen
// before a request reaches it.
package provider

import "context"

// Backend is implemented by every provisioning backend.
type Backend interface {
	// Register creates the resource described by req and returns its id and
	// resolved output properties.
	Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error)

	// Invoke calls a provider function such as an image lookup.
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error)

	// Delete removes a previously registered resource.
	Delete(ctx context.Context, req *DeleteRequest) error
}

type RegisterRequest struct {
	Stack  string
	Type   string // provider type token, e.g. "aws:ec2/vpc:Vpc"
	Name   string
	Inputs map[string]any
}

type RegisterResponse struct {
	ID      string
	Outputs map[string]any
}

type InvokeRequest struct {
	Token string
	Args  map[string]any
}

type InvokeResponse struct {
	Result map[string]any
}

type DeleteRequest struct {
	Stack string
	Type  string
	Name  string
	ID    string // empty when the caller holds no prior result
}

// Function classifies invoke tokens into the set of functions a backend
// knows about.
type Function int

const (
	// FunctionOther is the fallback for tokens no backend handles.
	FunctionOther Function = iota
	// FunctionImageLookup resolves a machine image.
	FunctionImageLookup
)

// TokenImageLookup is the invoke token of the image lookup function.
const TokenImageLookup = "aws:ec2/getAmi:getAmi"

// ClassifyToken maps an invoke token to a Function.
func ClassifyToken(token string) Function {
	switch token {
	case TokenImageLookup:
		return FunctionImageLookup
	default:
		return FunctionOther
	}
}

func (f Function) String() string {
	switch f {
	case FunctionImageLookup:
		return "image-lookup"
	default:
		return "other"
	}
}
