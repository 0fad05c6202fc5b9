// Package policy validates proposed resources against a pack of rules.
//
// Every Policy is a pure function of a resource type and its input
// properties. A Pack runs each policy once per resource and aggregates the
// violations; whether they block an update depends on the pack's
// EnforcementLevel.
package policy

import (
	"fmt"
	"strings"

	"github.com/picklr-io/craftstack/internal/ir"
	"github.com/picklr-io/craftstack/internal/logging"
)

// EnforcementLevel decides what happens to violations.
type EnforcementLevel string

const (
	// Advisory violations are reported but never block.
	Advisory EnforcementLevel = "advisory"
	// Mandatory violations block the update.
	Mandatory EnforcementLevel = "mandatory"
)

// ParseEnforcementLevel accepts "advisory" or "mandatory" in any case.
func ParseEnforcementLevel(s string) (EnforcementLevel, error) {
	switch EnforcementLevel(strings.ToLower(s)) {
	case Advisory:
		return Advisory, nil
	case Mandatory, "":
		return Mandatory, nil
	default:
		return "", fmt.Errorf("unknown enforcement level %q", s)
	}
}

// Policy is a single validation rule.
type Policy interface {
	Name() string
	Description() string
	// Validate returns a human-readable message and true when props violate
	// the policy.
	Validate(resourceType string, props map[string]any) (string, bool)
}

// LeveledPolicy is implemented by policies that override the pack's
// enforcement level.
type LeveledPolicy interface {
	Policy
	Level() EnforcementLevel
}

// Candidate is a resource submitted to a pack.
type Candidate struct {
	Name  string
	Type  string
	Props map[string]any
}

// Violation is a single policy failure.
type Violation struct {
	Policy   string           `json:"policy"`
	Resource string           `json:"resource"`
	Message  string           `json:"message"`
	Level    EnforcementLevel `json:"level"`
}

// Pack is a named bundle of policies with an enforcement level.
type Pack struct {
	Name             string
	EnforcementLevel EnforcementLevel
	Policies         []Policy
}

// DefaultPackName is the name of the built-in pack.
const DefaultPackName = "craftstack-policies"

// DefaultPack returns the built-in pack: mandatory, rejecting t2.micro.
func DefaultPack() *Pack {
	return &Pack{
		Name:             DefaultPackName,
		EnforcementLevel: Mandatory,
		Policies:         []Policy{NewInstanceTypePolicy()},
	}
}

// Check evaluates every policy once per candidate.
func (p *Pack) Check(candidates []Candidate) *Report {
	level := p.EnforcementLevel
	if level == "" {
		level = Mandatory
	}
	report := &Report{Pack: p.Name, Level: level, Violations: []Violation{}}
	for _, c := range candidates {
		for _, pol := range p.Policies {
			msg, violated := pol.Validate(c.Type, c.Props)
			if !violated {
				continue
			}
			vLevel := level
			if lp, ok := pol.(LeveledPolicy); ok && lp.Level() != "" {
				vLevel = lp.Level()
			}
			report.Violations = append(report.Violations, Violation{
				Policy:   pol.Name(),
				Resource: c.Name,
				Message:  msg,
				Level:    vLevel,
			})
		}
	}
	return report
}

// Report aggregates the violations of one Check.
type Report struct {
	Pack       string           `json:"pack"`
	Level      EnforcementLevel `json:"level"`
	Violations []Violation      `json:"violations"`
}

// Blocking reports whether any violation must stop the update.
func (r *Report) Blocking() bool {
	for _, v := range r.Violations {
		if v.Level == Mandatory {
			return true
		}
	}
	return false
}

// Err logs advisory violations and returns a *ViolationError holding the
// mandatory ones, or nil if there are none.
func (r *Report) Err() error {
	var mandatory []Violation
	for _, v := range r.Violations {
		if v.Level == Mandatory {
			mandatory = append(mandatory, v)
			continue
		}
		logging.Warn("advisory policy violation", "pack", r.Pack, "policy", v.Policy, "resource", v.Resource, "message", v.Message)
	}
	if len(mandatory) == 0 {
		return nil
	}
	return &ViolationError{Pack: r.Pack, Violations: mandatory}
}

// ViolationError is returned when a mandatory pack reports violations.
type ViolationError struct {
	Pack       string
	Violations []Violation
}

func (e *ViolationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "policy pack %s reported %d mandatory violation(s)", e.Pack, len(e.Violations))
	for _, v := range e.Violations {
		fmt.Fprintf(&b, "\n  [%s] %s: %s", v.Policy, v.Resource, v.Message)
	}
	return b.String()
}

// InstanceTypePolicy rejects compute instances whose size is too small to
// run the game server.
type InstanceTypePolicy struct {
	Disallowed []string
}

// NewInstanceTypePolicy rejects t2.micro.
func NewInstanceTypePolicy() *InstanceTypePolicy {
	return &InstanceTypePolicy{Disallowed: []string{"t2.micro"}}
}

func (p *InstanceTypePolicy) Name() string { return "ec2-instance-type" }

func (p *InstanceTypePolicy) Description() string {
	return fmt.Sprintf("Prohibits %s EC2 instance types.", strings.Join(p.Disallowed, ", "))
}

func (p *InstanceTypePolicy) Validate(resourceType string, props map[string]any) (string, bool) {
	if resourceType != ir.KindInstance.Token() {
		return "", false
	}
	instanceType, ok := props["instanceType"].(string)
	if !ok {
		return "", false
	}
	for _, d := range p.Disallowed {
		if instanceType == d {
			return fmt.Sprintf("%s instance types are too small to run Minecraft. "+
				"Please use a different instance type.", instanceType), true
		}
	}
	return "", false
}
