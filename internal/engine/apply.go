package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/picklr-io/craftstack/internal/ir"
	"github.com/picklr-io/craftstack/internal/logging"
	"github.com/picklr-io/craftstack/internal/policy"
	pb "github.com/picklr-io/craftstack/pkg/provider"
)

// ApplyEvent represents a progress event during up or destroy.
type ApplyEvent struct {
	Address  string
	Action   string // "create", "read", "delete"
	Status   string // "started", "completed", "failed"
	Duration time.Duration
	Error    error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// Up evaluates d against the backend.
func (e *Engine) Up(ctx context.Context, d *ir.Deployment) (*ir.Result, error) {
	return e.UpWithCallback(ctx, d, nil)
}

// UpWithCallback builds the dependency graph, previews d, stops on a
// blocking policy report, then walks creation order one resource at a
// time: data sources are invoked, everything else is registered. Each
// resource is checked again against its resolved inputs before the backend
// sees it. The first failure aborts the walk. Outputs are resolved last.
func (e *Engine) UpWithCallback(ctx context.Context, d *ir.Deployment, callback ApplyCallback) (*ir.Result, error) {
	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	dag, err := BuildDAG(d)
	if err != nil {
		return nil, err
	}

	preview, err := e.preview(ctx, d, dag)
	if err != nil {
		return nil, err
	}
	reported := make(map[string]bool)
	if preview.Policy != nil {
		if err := preview.Policy.Err(); err != nil {
			return nil, err
		}
		for _, v := range preview.Policy.Violations {
			reported[violationKey(v)] = true
		}
	}

	result := &ir.Result{Stack: d.Stack, Outputs: make(map[string]any)}
	done := make(map[string]*ir.ResourceState)
	resolver := ir.ResolverFunc(func(ref ir.Ref) (any, error) {
		return resolveRef(done, ref)
	})

	for _, name := range dag.CreationOrder() {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("update cancelled: %w", err)
		}
		res := dag.Resource(name)
		action := "create"
		if res.Kind().IsDataSource() {
			action = "read"
		}

		start := time.Now()
		emit(ApplyEvent{Address: res.Address(), Action: action, Status: "started"})

		state, err := e.evaluate(ctx, d.Stack, res, resolver, reported)
		if err != nil {
			emit(ApplyEvent{Address: res.Address(), Action: action, Status: "failed", Duration: time.Since(start), Error: err})
			return result, err
		}
		state.Dependencies = dag.Dependencies(name)
		done[name] = state
		result.Resources = append(result.Resources, state)

		emit(ApplyEvent{Address: res.Address(), Action: action, Status: "completed", Duration: time.Since(start)})
	}

	for _, out := range d.Outputs {
		if out.Value.Ref == nil {
			result.Outputs[out.Name] = out.Value.Literal
			continue
		}
		v, err := resolveRef(done, *out.Value.Ref)
		if err != nil {
			return result, &ir.ResolutionError{Resource: "output " + out.Name, Ref: out.Value.Ref.String(), Reason: "cannot resolve", Err: err}
		}
		result.Outputs[out.Name] = v
	}

	logging.Info("update complete", "stack", d.Stack, "resources", len(result.Resources), "outputs", len(result.Outputs))
	return result, nil
}

func (e *Engine) evaluate(ctx context.Context, stack string, res *ir.Resource, resolver ir.Resolver, reported map[string]bool) (*ir.ResourceState, error) {
	addr := res.Address()
	inputs, err := res.Props.Inputs(resolver)
	if err != nil {
		return nil, &ir.ResolutionError{Resource: res.Name, Reason: "failed to resolve inputs", Err: err}
	}
	if err := e.checkResolved(res, inputs, reported); err != nil {
		return nil, err
	}

	state := &ir.ResourceState{
		Type:   res.Type(),
		Name:   res.Name,
		Inputs: inputs,
	}

	if res.Kind().IsDataSource() {
		logging.Debug("invoking data source", "address", addr)
		resp, err := e.backend.Invoke(ctx, &pb.InvokeRequest{Token: res.Type(), Args: inputs})
		if err != nil {
			var noMatch *ir.NoMatchError
			if errors.As(err, &noMatch) {
				return nil, &ir.ResolutionError{Resource: res.Name, Reason: "lookup matched nothing", Err: err}
			}
			return nil, fmt.Errorf("invoke failed for %s: %w", addr, err)
		}
		state.Outputs = resp.Result
		if id, ok := resp.Result["id"]; ok {
			state.ID = fmt.Sprintf("%v", id)
		}
		return state, nil
	}

	logging.Debug("registering resource", "address", addr)
	resp, err := e.backend.Register(ctx, &pb.RegisterRequest{
		Stack:  stack,
		Type:   res.Type(),
		Name:   res.Name,
		Inputs: inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("register failed for %s: %w", addr, err)
	}
	state.ID = resp.ID
	state.Outputs = resp.Outputs
	return state, nil
}

// checkResolved runs the pack over one resource's resolved inputs. Only
// violations the preview could not see are reported; a mandatory one stops
// the resource from being created.
func (e *Engine) checkResolved(res *ir.Resource, inputs map[string]any, reported map[string]bool) error {
	if e.pack == nil {
		return nil
	}
	report := e.pack.Check([]policy.Candidate{{Name: res.Name, Type: res.Type(), Props: inputs}})

	fresh := report.Violations[:0]
	for _, v := range report.Violations {
		key := violationKey(v)
		if reported[key] {
			continue
		}
		reported[key] = true
		fresh = append(fresh, v)
	}
	report.Violations = fresh
	return report.Err()
}

func violationKey(v policy.Violation) string {
	return v.Policy + "\x00" + v.Resource + "\x00" + v.Message
}

// resolveRef reads ref from an already-evaluated resource. "id" is the
// provider-assigned id; any other attribute comes from the outputs and is
// nil when the backend did not report it.
func resolveRef(done map[string]*ir.ResourceState, ref ir.Ref) (any, error) {
	state, ok := done[ref.Resource]
	if !ok {
		return nil, fmt.Errorf("%s has not been evaluated", ref.Resource)
	}
	if ref.Attribute == "id" {
		return state.ID, nil
	}
	return state.Outputs[ref.Attribute], nil
}

// Destroy deletes every resource of d in reverse creation order.
func (e *Engine) Destroy(ctx context.Context, d *ir.Deployment) error {
	return e.DestroyWithCallback(ctx, d, nil)
}

// DestroyWithCallback deletes resources in destruction order. Data sources
// are skipped. Unless ContinueOnError is set, the first failure stops the
// walk.
func (e *Engine) DestroyWithCallback(ctx context.Context, d *ir.Deployment, callback ApplyCallback) error {
	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	dag, err := BuildDAG(d)
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range dag.DestructionOrder() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("destroy cancelled: %w", err)
		}
		res := dag.Resource(name)
		if res.Kind().IsDataSource() {
			continue
		}

		start := time.Now()
		emit(ApplyEvent{Address: res.Address(), Action: "delete", Status: "started"})
		err := e.backend.Delete(ctx, &pb.DeleteRequest{
			Stack: d.Stack,
			Type:  res.Type(),
			Name:  res.Name,
		})
		if err != nil {
			err = fmt.Errorf("delete failed for %s: %w", res.Address(), err)
			emit(ApplyEvent{Address: res.Address(), Action: "delete", Status: "failed", Duration: time.Since(start), Error: err})
			if !e.ContinueOnError {
				return err
			}
			errs = append(errs, err)
			continue
		}
		emit(ApplyEvent{Address: res.Address(), Action: "delete", Status: "completed", Duration: time.Since(start)})
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d resource(s) failed: %w", len(errs), errors.Join(errs...))
	}
	logging.Info("destroy complete", "stack", d.Stack)
	return nil
}
