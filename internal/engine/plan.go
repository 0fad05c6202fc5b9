package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/picklr-io/craftstack/internal/ir"
	"github.com/picklr-io/craftstack/internal/logging"
	"github.com/picklr-io/craftstack/internal/policy"
	pb "github.com/picklr-io/craftstack/pkg/provider"
)

// Computed is the placeholder rendered for unresolved references.
const Computed = ir.Computed

// Engine evaluates deployments against a backend.
type Engine struct {
	backend         pb.Backend
	pack            *policy.Pack
	ContinueOnError bool // If true, destroy continues past failures instead of stopping
}

// NewEngine returns an engine that checks deployments against pack before
// touching backend. A nil pack disables policy checks.
func NewEngine(backend pb.Backend, pack *policy.Pack) *Engine {
	return &Engine{
		backend: backend,
		pack:    pack,
	}
}

// Preview is the outcome of a dry run: the planned steps and the policy
// report computed from their inputs.
type Preview struct {
	Plan   *ir.Plan
	Policy *policy.Report
}

// Preview renders every resource's inputs in creation order, with
// references replaced by Computed, and runs the policy pack over them.
// Policies cannot decide on Computed values; those are checked again with
// resolved inputs during Up. It never calls the backend.
func (e *Engine) Preview(ctx context.Context, d *ir.Deployment) (*Preview, error) {
	dag, err := BuildDAG(d)
	if err != nil {
		return nil, err
	}
	return e.preview(ctx, d, dag)
}

func (e *Engine) preview(ctx context.Context, d *ir.Deployment, dag *DAG) (*Preview, error) {
	logging.Debug("creating plan", "stack", d.Stack, "resources", len(d.Resources))
	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Stack:     d.Stack,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Summary: &ir.PlanSummary{},
	}

	computed := ir.ResolverFunc(func(ir.Ref) (any, error) { return Computed, nil })

	var candidates []policy.Candidate
	for _, name := range dag.CreationOrder() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("preview cancelled: %w", err)
		}
		res := dag.Resource(name)
		inputs, err := res.Props.Inputs(computed)
		if err != nil {
			return nil, fmt.Errorf("failed to render inputs for %s: %w", res.Address(), err)
		}

		step := &ir.Step{
			Address:      res.Address(),
			Name:         res.Name,
			Kind:         res.Kind(),
			Action:       "create",
			Inputs:       inputs,
			Dependencies: dag.Dependencies(name),
		}
		if res.Kind().IsDataSource() {
			step.Action = "read"
			plan.Summary.Read++
		} else {
			plan.Summary.Create++
		}
		plan.Steps = append(plan.Steps, step)
		candidates = append(candidates, policy.Candidate{Name: res.Name, Type: res.Type(), Props: inputs})
	}

	p := &Preview{Plan: plan}
	if e.pack != nil {
		p.Policy = e.pack.Check(candidates)
		logging.Debug("policy check complete", "pack", p.Policy.Pack, "violations", len(p.Policy.Violations))
	}
	return p, nil
}
