package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/picklr-io/craftstack/internal/ir"
)

// RuleFile is a collection of declarative rules loaded from JSON.
//
// Example:
//
//	{
//	  "rules": [
//	    {
//	      "name": "no-graviton",
//	      "description": "The server image is built for x86_64",
//	      "resource_type": "aws:ec2/instance:Instance",
//	      "condition": "property_equals",
//	      "property": "instanceType",
//	      "value": "t4g.large",
//	      "severity": "error"
//	    }
//	  ]
//	}
type RuleFile struct {
	Rules []Rule `json:"rules"`
}

// Rule is a single declarative policy.
type Rule struct {
	RuleName     string `json:"name"`
	Desc         string `json:"description"`
	ResourceType string `json:"resource_type"` // empty = all types
	Condition    string `json:"condition"`     // property_equals, property_not_equals, require_property
	Property     string `json:"property"`
	Value        string `json:"value"`
	Severity     string `json:"severity"` // "error", "warning"
}

// LoadRuleFile reads and validates a JSON rule file.
func LoadRuleFile(path string) ([]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	var rf RuleFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	policies := make([]Policy, 0, len(rf.Rules))
	for i := range rf.Rules {
		rule := rf.Rules[i]
		if err := rule.check(); err != nil {
			return nil, fmt.Errorf("policy file %s: rule %d: %w", path, i, err)
		}
		policies = append(policies, &rule)
	}
	return policies, nil
}

func (r *Rule) check() error {
	if r.RuleName == "" {
		return fmt.Errorf("name is required")
	}
	switch r.Condition {
	case "property_equals", "property_not_equals", "require_property":
	default:
		return fmt.Errorf("unknown condition %q", r.Condition)
	}
	if r.Property == "" {
		return fmt.Errorf("property is required for condition %s", r.Condition)
	}
	switch strings.ToLower(r.Severity) {
	case "", "error", "warning":
	default:
		return fmt.Errorf("unknown severity %q", r.Severity)
	}
	return nil
}

func (r *Rule) Name() string        { return r.RuleName }
func (r *Rule) Description() string { return r.Desc }

// Level maps severity "warning" to Advisory and "error" to Mandatory.
// An empty severity defers to the pack.
func (r *Rule) Level() EnforcementLevel {
	switch strings.ToLower(r.Severity) {
	case "warning":
		return Advisory
	case "error":
		return Mandatory
	default:
		return ""
	}
}

func (r *Rule) Validate(resourceType string, props map[string]any) (string, bool) {
	if r.ResourceType != "" && r.ResourceType != resourceType {
		return "", false
	}

	val, ok := props[r.Property]
	if ok && ir.IsComputed(val) {
		// Unknown until the referenced resource exists.
		return "", false
	}
	switch r.Condition {
	case "property_equals":
		if ok && fmt.Sprintf("%v", val) == r.Value {
			return fmt.Sprintf("property %s=%v violates policy %q", r.Property, val, r.Desc), true
		}
	case "property_not_equals":
		if ok && fmt.Sprintf("%v", val) != r.Value {
			return fmt.Sprintf("property %s=%v violates policy %q (expected %s)", r.Property, val, r.Desc, r.Value), true
		}
	case "require_property":
		if !ok || val == nil || val == "" {
			return fmt.Sprintf("missing required property %q per policy %q", r.Property, r.Desc), true
		}
	}
	return "", false
}
