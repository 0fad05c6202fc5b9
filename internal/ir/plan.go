package ir

// Plan is the preview of a deployment: every step the evaluator would take,
// in dependency order, with inputs rendered before any backend call.
type Plan struct {
	Metadata *PlanMetadata
	Steps    []*Step
	Summary  *PlanSummary
}

type PlanMetadata struct {
	Stack     string
	Timestamp string
}

type Step struct {
	Address      string
	Name         string
	Kind         Kind
	Action       string // "create" or "read"
	Inputs       map[string]any
	Dependencies []string
}

type PlanSummary struct {
	Create int
	Read   int
}

// Computed stands in for a value that is only known after the referenced
// resource has been registered.
const Computed = "<computed>"

// IsComputed reports whether v is, or contains, a Computed placeholder.
func IsComputed(v any) bool {
	switch val := v.(type) {
	case string:
		return val == Computed
	case []any:
		for _, e := range val {
			if IsComputed(e) {
				return true
			}
		}
	case []string:
		for _, e := range val {
			if e == Computed {
				return true
			}
		}
	}
	return false
}
