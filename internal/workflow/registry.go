// Package workflow handles loading and validating declarative run-gate definitions.
package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/checkrun/pkg/types"
)

// Builtin step actions understood by the step runner.
const (
	ActionToolchain = "toolchain"
	ActionCache     = "cache"
)

// Registry manages workflow definitions loaded from YAML files.
type Registry struct {
	workflows map[string]*types.WorkflowConfig
}

// NewRegistry creates a new empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{
		workflows: make(map[string]*types.WorkflowConfig),
	}
}

// LoadDir loads all YAML workflow files from a directory.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading workflow dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		path := filepath.Join(dir, name)
		if err := r.LoadFile(path); err != nil {
			return fmt.Errorf("loading workflow %s: %w", path, err)
		}
	}
	return nil
}

// LoadFile loads a single workflow YAML file.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	var wf types.WorkflowConfig
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	if err := Validate(&wf); err != nil {
		return fmt.Errorf("validating workflow %q: %w", wf.Name, err)
	}

	r.workflows[wf.Name] = &wf
	return nil
}

// Get returns a workflow by name.
func (r *Registry) Get(name string) (*types.WorkflowConfig, error) {
	wf, ok := r.workflows[name]
	if !ok {
		return nil, fmt.Errorf("workflow %q not found", name)
	}
	return wf, nil
}

// List returns all registered workflows.
func (r *Registry) List() []*types.WorkflowConfig {
	result := make([]*types.WorkflowConfig, 0, len(r.workflows))
	for _, wf := range r.workflows {
		result = append(result, wf)
	}
	return result
}

// Register adds a workflow directly to the registry.
func (r *Registry) Register(wf *types.WorkflowConfig) error {
	if err := Validate(wf); err != nil {
		return err
	}
	r.workflows[wf.Name] = wf
	return nil
}

// Validate checks a workflow definition for structural problems.
func Validate(wf *types.WorkflowConfig) error {
	if wf.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(wf.On) == 0 {
		return fmt.Errorf("at least one trigger rule is required")
	}
	for kind := range wf.On {
		if kind != types.ChangePush && kind != types.ChangePullRequest {
			return fmt.Errorf("unknown event kind %q", kind)
		}
	}
	if len(wf.Jobs) == 0 {
		return fmt.Errorf("at least one job is required")
	}

	seen := make(map[string]bool, len(wf.Jobs))
	for _, job := range wf.Jobs {
		if job.Name == "" {
			return fmt.Errorf("job name is required")
		}
		if seen[job.Name] {
			return fmt.Errorf("duplicate job name %q", job.Name)
		}
		seen[job.Name] = true
		if job.TimeoutMinutes < 0 {
			return fmt.Errorf("job %q: timeout-minutes must not be negative", job.Name)
		}
		if len(job.Steps) == 0 {
			return fmt.Errorf("job %q: at least one step is required", job.Name)
		}
		for i, step := range job.Steps {
			if err := validateStep(step); err != nil {
				return fmt.Errorf("job %q step %d: %w", job.Name, i, err)
			}
		}
	}
	return nil
}

func validateStep(step types.StepConfig) error {
	switch {
	case step.Run != "" && step.Uses != "":
		return fmt.Errorf("run and uses are mutually exclusive")
	case step.Run == "" && step.Uses == "":
		return fmt.Errorf("either run or uses is required")
	}
	if step.Uses != "" {
		switch step.Uses {
		case ActionToolchain:
			if step.With["channel"] == "" {
				return fmt.Errorf("toolchain step requires with.channel")
			}
		case ActionCache:
			// key-files optional; fingerprint falls back to the toolchain spec
		default:
			return fmt.Errorf("unknown action %q", step.Uses)
		}
	}
	return nil
}
