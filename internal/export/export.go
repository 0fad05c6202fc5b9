// Package export renders evaluated stack outputs and writes them to a sink.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects how outputs are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "text", "json", "yaml" and "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown output format %q (expected text, json or yaml)", s)
}

// Document is the serialized form of an evaluated stack's outputs.
type Document struct {
	Stack   string         `json:"stack" yaml:"stack"`
	Outputs map[string]any `json:"outputs" yaml:"outputs"`
}

// Render writes the outputs to w in the given format.
func Render(w io.Writer, doc Document, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode outputs as JSON: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode outputs as YAML: %w", err)
		}
		return enc.Close()
	case FormatText, "":
		return renderText(w, doc)
	}
	return fmt.Errorf("unknown output format %q", f)
}

// Bytes renders the outputs into memory.
func Bytes(doc Document, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Render(&buf, doc, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderText prints one output per line in name order. Multi-line strings
// are printed as an indented block under their name.
func renderText(w io.Writer, doc Document) error {
	if len(doc.Outputs) == 0 {
		_, err := fmt.Fprintln(w, "No outputs defined.")
		return err
	}

	names := make([]string, 0, len(doc.Outputs))
	for name := range doc.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := doc.Outputs[name]
		s, isString := v.(string)
		var err error
		switch {
		case isString && strings.Contains(s, "\n"):
			_, err = fmt.Fprintf(w, "%s:\n", name)
			for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
				if err != nil {
					break
				}
				_, err = fmt.Fprintf(w, "    %s\n", line)
			}
		case v == nil:
			_, err = fmt.Fprintf(w, "%s: <unknown>\n", name)
		default:
			_, err = fmt.Fprintf(w, "%s: %v\n", name, v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
