package testutil

import (
	"testing"
	"time"

	"github.com/hupe1980/flowmesh/workflow"
)

// GraphBuilder provides a fluent helper for constructing workflow graphs in
// tests. Example:
//
//	wf := testutil.NewGraph("demo").
//	    Stage("prepare").
//	    Task("fetch", workflow.CapabilityRequirementAnalysis).
//	    Stage("build", workflow.WithParallel()).
//	    Task("compile", workflow.CapabilityCodeGeneration, workflow.WithDependsOn("fetch")).
//	    Build(t)
//
// Chain only the parts you need; sensible defaults are applied (fast
// timeouts and a single-attempt no-jitter retry policy so tests stay quick
// and deterministic).
type GraphBuilder struct {
	name      string
	projectID string
	stages    []*workflow.Stage
}

// NewGraph creates a builder with default project "proj-test".
func NewGraph(name string) *GraphBuilder {
	return &GraphBuilder{name: name, projectID: "proj-test"}
}

// Project overrides the project ID (chainable).
func (b *GraphBuilder) Project(id string) *GraphBuilder { b.projectID = id; return b }

// Stage starts a new stage; subsequent Task calls append to it (chainable).
func (b *GraphBuilder) Stage(name string, opts ...workflow.StageOption) *GraphBuilder {
	b.stages = append(b.stages, workflow.NewStage(name, nil, opts...))
	return b
}

// Task appends a task to the current stage (chainable). Tasks default to a
// one second timeout and a single attempt without jitter; override per task
// via workflow options.
func (b *GraphBuilder) Task(id string, capability workflow.Capability, opts ...workflow.TaskOption) *GraphBuilder {
	defaults := []workflow.TaskOption{
		workflow.WithTimeout(time.Second),
		workflow.WithRetryPolicy(workflow.RetryPolicy{
			MaxAttempts: 1,
			Backoff:     workflow.BackoffFixed,
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
		}),
	}

	t := workflow.NewTask(id, id, capability, append(defaults, opts...)...)
	stage := b.stages[len(b.stages)-1]
	stage.Tasks = append(stage.Tasks, t)

	return b
}

// Build constructs the validated workflow, failing the test on error.
func (b *GraphBuilder) Build(t *testing.T) *workflow.Workflow {
	t.Helper()

	wf, err := workflow.New(b.name, b.projectID, b.stages)
	if err != nil {
		t.Fatalf("build workflow graph: %v", err)
	}

	return wf
}

// Retry is a shorthand for a deterministic multi-attempt policy with a tiny
// fixed backoff, keeping retry tests fast.
func Retry(maxAttempts int) workflow.RetryPolicy {
	return workflow.RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     workflow.BackoffFixed,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	}
}
