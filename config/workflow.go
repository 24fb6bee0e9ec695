package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/flowmesh/workflow"
)

// RetryDef declares a task retry policy in a workflow definition. Zero-value
// fields fall back to the default policy.
type RetryDef struct {
	MaxAttempts int      `yaml:"max_attempts" json:"max_attempts"`
	Backoff     string   `yaml:"backoff" json:"backoff"`
	BaseDelay   Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay" json:"max_delay"`
	Jitter      *bool    `yaml:"jitter" json:"jitter"`
}

// TaskDef declares one task in a workflow definition.
type TaskDef struct {
	ID         string           `yaml:"id" json:"id"`
	Name       string           `yaml:"name" json:"name"`
	Capability string           `yaml:"capability" json:"capability"`
	Input      workflow.Payload `yaml:"input" json:"input"`
	DependsOn  []string         `yaml:"depends_on" json:"depends_on"`
	Timeout    Duration         `yaml:"timeout" json:"timeout"`
	Retry      *RetryDef        `yaml:"retry" json:"retry"`
}

// StageDef declares one stage in a workflow definition.
type StageDef struct {
	Name            string    `yaml:"name" json:"name"`
	Parallel        bool      `yaml:"parallel" json:"parallel"`
	FailureStrategy string    `yaml:"failure_strategy" json:"failure_strategy"`
	Tasks           []TaskDef `yaml:"tasks" json:"tasks"`
}

// Definition is a declarative workflow description, loadable from YAML or
// JSON. Build turns it into a validated workflow.
type Definition struct {
	Name      string           `yaml:"name" json:"name"`
	ProjectID string           `yaml:"project_id" json:"project_id"`
	Metadata  workflow.Payload `yaml:"metadata" json:"metadata"`
	Stages    []StageDef       `yaml:"stages" json:"stages"`
}

// LoadDefinition reads a workflow definition file. The format is chosen by
// extension: .json parses as JSON, everything else as YAML.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow definition: %w", err)
	}

	var def Definition
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parse workflow definition %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parse workflow definition %s: %w", path, err)
		}
	}

	return &def, nil
}

// Build constructs a validated workflow from the definition.
func (d *Definition) Build() (*workflow.Workflow, error) {
	stages := make([]*workflow.Stage, 0, len(d.Stages))

	for _, sd := range d.Stages {
		tasks := make([]*workflow.Task, 0, len(sd.Tasks))
		for _, td := range sd.Tasks {
			tasks = append(tasks, buildTask(td))
		}

		var stageOpts []workflow.StageOption
		if sd.Parallel {
			stageOpts = append(stageOpts, workflow.WithParallel())
		}
		if sd.FailureStrategy != "" {
			stageOpts = append(stageOpts, workflow.WithFailureStrategy(workflow.FailureStrategy(sd.FailureStrategy)))
		}

		stages = append(stages, workflow.NewStage(sd.Name, tasks, stageOpts...))
	}

	var opts []workflow.Option
	if d.Metadata != nil {
		opts = append(opts, workflow.WithMetadata(d.Metadata))
	}

	return workflow.New(d.Name, d.ProjectID, stages, opts...)
}

func buildTask(td TaskDef) *workflow.Task {
	var opts []workflow.TaskOption
	if td.Input != nil {
		opts = append(opts, workflow.WithInput(td.Input))
	}
	if len(td.DependsOn) > 0 {
		opts = append(opts, workflow.WithDependsOn(td.DependsOn...))
	}
	if td.Timeout > 0 {
		opts = append(opts, workflow.WithTimeout(td.Timeout.Std()))
	}
	if td.Retry != nil {
		opts = append(opts, workflow.WithRetryPolicy(buildRetry(*td.Retry)))
	}
	return workflow.NewTask(td.ID, td.Name, workflow.Capability(td.Capability), opts...)
}

func buildRetry(rd RetryDef) workflow.RetryPolicy {
	p := workflow.DefaultRetryPolicy()
	if rd.MaxAttempts > 0 {
		p.MaxAttempts = rd.MaxAttempts
	}
	if rd.Backoff != "" {
		p.Backoff = workflow.BackoffStrategy(rd.Backoff)
	}
	if rd.BaseDelay > 0 {
		p.BaseDelay = rd.BaseDelay.Std()
	}
	if rd.MaxDelay > 0 {
		p.MaxDelay = rd.MaxDelay.Std()
	}
	if rd.Jitter != nil {
		p.Jitter = *rd.Jitter
	}
	return p
}
