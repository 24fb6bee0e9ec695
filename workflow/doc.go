// Package workflow defines the data model for FlowMesh orchestration:
// workflows composed of ordered stages, stages composed of capability-typed
// tasks, and the retry policies attached to each task.
//
// The task graph is static: a Workflow is created once via New with all
// stages and tasks fully defined, and construction validates the graph
// (unique task IDs, resolvable dependency references, closed enum values,
// positive timeouts). After construction the entities are pure state
// holders mutated only by the orchestrator during a run.
//
// Construction uses small option funcs:
//
//	task := workflow.NewTask("fetch", "Fetch Inputs", workflow.CapabilityRequirementAnalysis,
//	    workflow.WithTimeout(30*time.Second),
//	    workflow.WithDependsOn("seed"),
//	)
//	stage := workflow.NewStage("prepare", []*workflow.Task{task}, workflow.WithParallel())
//	wf, err := workflow.New("Nightly Build", "proj-001", []*workflow.Stage{stage})
//
// NewFullStackAppWorkflow assembles the canonical application generation
// pipeline used by the examples and the CLI.
package workflow
