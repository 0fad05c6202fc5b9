package ir

// Result is the outcome of evaluating a deployment against a backend.
// It is held in memory only; persisted infrastructure state belongs to the
// backend.
type Result struct {
	Stack     string
	Resources []*ResourceState
	Outputs   map[string]any
}

type ResourceState struct {
	Type         string
	Name         string
	ID           string
	Inputs       map[string]any
	Outputs      map[string]any
	Dependencies []string
}

// Resource returns the state recorded for name.
func (r *Result) Resource(name string) (*ResourceState, bool) {
	for _, res := range r.Resources {
		if res.Name == name {
			return res, true
		}
	}
	return nil, false
}
