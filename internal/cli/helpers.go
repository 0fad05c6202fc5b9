package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/picklr-io/craftstack/internal/engine"
	"github.com/picklr-io/craftstack/internal/ir"
	"github.com/picklr-io/craftstack/internal/policy"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// noColor disables ANSI escapes in everything the CLI prints.
var noColor bool

func colorize(code string) string {
	if noColor {
		return ""
	}
	return code
}

// renderPlan prints the planned steps in creation order.
func renderPlan(w io.Writer, plan *ir.Plan) {
	for _, step := range plan.Steps {
		symbol, color := "+", colorGreen
		if step.Action == "read" {
			symbol, color = "<=", colorCyan
		}
		c := colorize(color)
		reset := colorize(colorReset)

		fmt.Fprintf(w, "\n%s  # %s will be %s%s\n", c, step.Address, actionVerb(step.Action), reset)
		fmt.Fprintf(w, "%s  %s %s %q {\n", c, symbol, step.Kind.Token(), step.Name)
		for _, k := range sortedKeys(step.Inputs) {
			fmt.Fprintf(w, "%s      %s = %s\n", c, k, formatValue(step.Inputs[k]))
		}
		fmt.Fprintf(w, "%s    }%s\n", c, reset)
	}
}

func actionVerb(action string) string {
	if action == "read" {
		return "read"
	}
	return "created"
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(w io.Writer, plan *ir.Plan) {
	fmt.Fprintln(w, "\nPlan Summary:")
	fmt.Fprintf(w, "  Create: %d\n", plan.Summary.Create)
	fmt.Fprintf(w, "  Read:   %d\n", plan.Summary.Read)
}

// renderReport prints policy violations, mandatory ones in red.
func renderReport(w io.Writer, report *policy.Report) {
	if report == nil {
		return
	}
	if len(report.Violations) == 0 {
		fmt.Fprintf(w, "\n%sPolicy pack %s: no violations.%s\n", colorize(colorGreen), report.Pack, colorize(colorReset))
		return
	}

	fmt.Fprintf(w, "\nPolicy pack %s (%s): %d violation(s)\n", report.Pack, report.Level, len(report.Violations))
	for _, v := range report.Violations {
		color := colorYellow
		if v.Level == policy.Mandatory {
			color = colorRed
		}
		fmt.Fprintf(w, "%s  [%s] %s %s: %s%s\n", colorize(color), v.Level, v.Policy, v.Resource, v.Message, colorize(colorReset))
	}
}

// progressPrinter reports apply events as they happen.
func progressPrinter(w io.Writer) engine.ApplyCallback {
	return func(e engine.ApplyEvent) {
		switch e.Status {
		case "started":
			fmt.Fprintf(w, "%s: %s...\n", e.Address, e.Action)
		case "completed":
			fmt.Fprintf(w, "%s%s: %s complete (%s)%s\n", colorize(colorGreen), e.Address, e.Action, e.Duration.Round(1e6), colorize(colorReset))
		case "failed":
			fmt.Fprintf(w, "%s%s: %s failed: %v%s\n", colorize(colorRed), e.Address, e.Action, e.Error, colorize(colorReset))
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
