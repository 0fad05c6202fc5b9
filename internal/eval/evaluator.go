// Package eval loads craftstack project files written in PKL.
package eval

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/apple/pkl-go/pkl"

	"github.com/picklr-io/craftstack/internal/deploy"
)

// Project mirrors a craftstack project module. Every property is optional;
// unset values keep the built-in defaults.
type Project struct {
	Stack            string            `pkl:"stack"`
	Backend          string            `pkl:"backend"`
	Region           string            `pkl:"region"`
	Profile          string            `pkl:"profile"`
	AvailabilityZone string            `pkl:"availabilityZone"`
	InstanceType     string            `pkl:"instanceType"`
	KeyName          string            `pkl:"keyName"`
	PublicKeyPath    string            `pkl:"publicKeyPath"`
	UserDataPath     string            `pkl:"userDataPath"`
	ReadmePath       string            `pkl:"readmePath"`
	Tags             map[string]string `pkl:"tags"`
	Policy           *PolicySettings   `pkl:"policy"`
}

type PolicySettings struct {
	EnforcementLevel string `pkl:"enforcementLevel"`
	RuleFile         string `pkl:"ruleFile"`
}

// Evaluator handles PKL evaluation of project files.
type Evaluator struct {
	properties map[string]string
}

// NewEvaluator returns an evaluator that exposes properties to modules
// through read("prop:<name>").
func NewEvaluator(properties map[string]string) *Evaluator {
	return &Evaluator{properties: properties}
}

// LoadProject evaluates the project file at path. Relative file paths in the
// project are resolved against the project file's directory.
func (e *Evaluator) LoadProject(ctx context.Context, path string) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path %s: %w", path, err)
	}

	opts := []func(*pkl.EvaluatorOptions){pkl.PreconfiguredOptions}
	if len(e.properties) > 0 {
		opts = append(opts, func(o *pkl.EvaluatorOptions) {
			if o.Properties == nil {
				o.Properties = make(map[string]string)
			}
			for k, v := range e.properties {
				o.Properties[k] = v
			}
		})
	}

	evaluator, err := pkl.NewEvaluator(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var p Project
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(abs), &p); err != nil {
		return nil, fmt.Errorf("failed to evaluate project %s: %w", path, err)
	}

	p.resolvePaths(filepath.Dir(abs))
	return &p, nil
}

func (p *Project) resolvePaths(dir string) {
	for _, path := range []*string{&p.PublicKeyPath, &p.UserDataPath, &p.ReadmePath} {
		if *path != "" && !filepath.IsAbs(*path) {
			*path = filepath.Join(dir, *path)
		}
	}
	if p.Policy != nil && p.Policy.RuleFile != "" && !filepath.IsAbs(p.Policy.RuleFile) {
		p.Policy.RuleFile = filepath.Join(dir, p.Policy.RuleFile)
	}
}

// Apply overlays the project's settings onto cfg.
func (p *Project) Apply(cfg *deploy.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Region, p.Region)
	set(&cfg.AvailabilityZone, p.AvailabilityZone)
	set(&cfg.InstanceType, p.InstanceType)
	set(&cfg.KeyName, p.KeyName)
	set(&cfg.PublicKeyPath, p.PublicKeyPath)
	set(&cfg.UserDataPath, p.UserDataPath)
	set(&cfg.ReadmePath, p.ReadmePath)

	if len(p.Tags) > 0 {
		merged := make(map[string]string, len(cfg.Tags)+len(p.Tags))
		for k, v := range cfg.Tags {
			merged[k] = v
		}
		for k, v := range p.Tags {
			merged[k] = v
		}
		cfg.Tags = merged
	}
}
