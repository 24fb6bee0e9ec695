package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status enumerates the workflow state machine. Transitions are monotonic
// toward a terminal state except for the RUNNING/PAUSED pair.
type Status string

const (
	// StatusPending means the workflow has been constructed but not executed.
	StatusPending Status = "pending"
	// StatusRunning means a run is in progress.
	StatusRunning Status = "running"
	// StatusPaused means execution is suspended; observed between stages.
	StatusPaused Status = "paused"
	// StatusCompleted is terminal: every stage finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed is terminal: a stage failed under stop_on_error or the
	// run hit an internal fault.
	StatusFailed Status = "failed"
	// StatusCancelled is terminal: the run was cancelled administratively.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// FailureStrategy determines how a stage reacts to task failures.
type FailureStrategy string

const (
	// ContinueOnError keeps walking the stage and reports it successful
	// regardless of individual task failures.
	ContinueOnError FailureStrategy = "continue_on_error"
	// StopOnError aborts the remaining tasks of a sequential stage on the
	// first failure and fails the workflow.
	StopOnError FailureStrategy = "stop_on_error"
	// RetryFailed keeps walking like ContinueOnError but reports the stage
	// failed when any task ended failed. Tasks already exhaust their own
	// retry budgets, so no additional execution pass happens.
	RetryFailed FailureStrategy = "retry_failed"
)

// Valid reports whether the strategy is one of the known variants.
func (f FailureStrategy) Valid() bool {
	switch f {
	case ContinueOnError, StopOnError, RetryFailed:
		return true
	default:
		return false
	}
}

// Stage groups tasks sharing an execution mode and a failure policy. It is
// owned exclusively by its Workflow.
type Stage struct {
	Name string
	// Tasks execute in declared order for sequential stages and define the
	// fan-out set for parallel stages.
	Tasks []*Task
	// Parallel launches all eligible tasks concurrently instead of walking
	// them one at a time.
	Parallel  bool
	OnFailure FailureStrategy
}

// StageOption customizes stage construction.
type StageOption func(*Stage)

// WithParallel switches the stage to concurrent task dispatch.
func WithParallel() StageOption {
	return func(s *Stage) { s.Parallel = true }
}

// WithFailureStrategy overrides the default stop_on_error strategy.
func WithFailureStrategy(f FailureStrategy) StageOption {
	return func(s *Stage) { s.OnFailure = f }
}

// NewStage constructs a sequential stop_on_error stage by default.
func NewStage(name string, tasks []*Task, opts ...StageOption) *Stage {
	s := &Stage{
		Name:      name,
		Tasks:     tasks,
		OnFailure: StopOnError,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Workflow is the top-level orchestrated unit: an ordered sequence of stages
// plus run state. The stage/task graph is static after construction.
type Workflow struct {
	ID        string
	Name      string
	ProjectID string
	Stages    []*Stage

	Status Status
	// CurrentStage is the index of the stage currently (or last) executing.
	CurrentStage int
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Metadata     Payload
	Error        string
}

// Option customizes workflow construction.
type Option func(*Workflow)

// WithID pins the workflow ID instead of generating one. Useful when task
// IDs embed the workflow ID, as the factory does.
func WithID(id string) Option {
	return func(w *Workflow) { w.ID = id }
}

// WithMetadata attaches free-form metadata to the workflow.
func WithMetadata(md Payload) Option {
	return func(w *Workflow) { w.Metadata = md }
}

// New constructs a pending workflow and validates the whole graph: closed
// enum values, retry policies, positive timeouts, unique task IDs, and
// dependency references that resolve within the workflow.
func New(name, projectID string, stages []*Stage, opts ...Option) (*Workflow, error) {
	w := &Workflow{
		ID:        uuid.NewString(),
		Name:      name,
		ProjectID: projectID,
		Stages:    stages,
		Status:    StatusPending,
		Metadata:  Payload{},
	}

	for _, opt := range opts {
		opt(w)
	}

	if err := w.validate(); err != nil {
		return nil, fmt.Errorf("workflow %q: %w", name, err)
	}

	return w, nil
}

func (w *Workflow) validate() error {
	ids := make(map[string]struct{})

	for _, stage := range w.Stages {
		if stage.Name == "" {
			return fmt.Errorf("stage without a name")
		}
		if !stage.OnFailure.Valid() {
			return fmt.Errorf("stage %s: unknown failure strategy %q", stage.Name, stage.OnFailure)
		}
		for _, task := range stage.Tasks {
			if task.ID == "" {
				return fmt.Errorf("stage %s: task without an id", stage.Name)
			}
			if _, dup := ids[task.ID]; dup {
				return fmt.Errorf("duplicate task id %q", task.ID)
			}
			ids[task.ID] = struct{}{}

			if task.Capability == "" {
				return fmt.Errorf("task %s: missing capability", task.ID)
			}
			if task.Timeout <= 0 {
				return fmt.Errorf("task %s: timeout must be positive, got %v", task.ID, task.Timeout)
			}
			if err := task.Retry.Validate(); err != nil {
				return fmt.Errorf("task %s: %w", task.ID, err)
			}
		}
	}

	for _, stage := range w.Stages {
		for _, task := range stage.Tasks {
			for _, dep := range task.DependsOn {
				if dep == task.ID {
					return fmt.Errorf("task %s: depends on itself", task.ID)
				}
				if _, ok := ids[dep]; !ok {
					return fmt.Errorf("task %s: dependency %q does not exist in workflow", task.ID, dep)
				}
			}
		}
	}

	return nil
}

// Tasks returns every task across all stages in declared order.
func (w *Workflow) Tasks() []*Task {
	var tasks []*Task
	for _, stage := range w.Stages {
		tasks = append(tasks, stage.Tasks...)
	}
	return tasks
}

// TaskByID resolves a task anywhere in the workflow.
func (w *Workflow) TaskByID(id string) (*Task, bool) {
	for _, stage := range w.Stages {
		for _, task := range stage.Tasks {
			if task.ID == id {
				return task, true
			}
		}
	}
	return nil, false
}
