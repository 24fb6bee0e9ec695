package workflow

import "time"

// Payload carries loosely typed task inputs, outputs and workflow metadata.
type Payload map[string]any

// Capability identifies the kind of worker a task requires. The type is open:
// new capabilities register agent implementations rather than extending a
// closed enum.
type Capability string

// Capabilities used by the application generation pipeline.
const (
	CapabilityOrchestrator         Capability = "orchestrator"
	CapabilityRequirementAnalysis  Capability = "requirement_analysis"
	CapabilityArchitecturePlanning Capability = "architecture_planning"
	CapabilityTemplateSelection    Capability = "template_selection"
	CapabilityCodeGeneration       Capability = "code_generation"
	CapabilityTesting              Capability = "testing"
	CapabilityDeployment           Capability = "deployment"
)

// TaskStatus enumerates the task state machine.
type TaskStatus string

const (
	// TaskStatusPending means the task has not been dispatched yet.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning means an attempt is currently executing.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusRetrying means the last attempt failed and the task is
	// waiting out its backoff delay before the next attempt.
	TaskStatusRetrying TaskStatus = "retrying"
	// TaskStatusCompleted is terminal: the task produced an output.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed is terminal: every attempt failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusSkipped is terminal: a dependency ended in failure, so the
	// task can never become eligible for dispatch.
	TaskStatusSkipped TaskStatus = "skipped"
)

// Terminal reports whether the status is final and immutable.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusSkipped
}

// DefaultTaskTimeout bounds a single task attempt when no timeout is set.
const DefaultTaskTimeout = 300 * time.Second

// Task is the smallest dispatchable unit of work. It is owned exclusively by
// its Workflow and mutated only by the orchestrator during execution.
type Task struct {
	// ID is unique within the workflow and is the key other tasks reference
	// in DependsOn.
	ID   string
	Name string
	// Capability selects the agent pool the task dispatches to.
	Capability Capability
	Input      Payload
	// DependsOn lists task IDs whose results must be recorded before this
	// task becomes eligible.
	DependsOn []string
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	Retry   RetryPolicy

	Status TaskStatus
	// Output is set only on success.
	Output Payload
	// Error is set only on terminal failure.
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	// Attempts counts dispatches; it is monotonic and never exceeds
	// Retry.MaxAttempts.
	Attempts int
}

// TaskOption customizes task construction.
type TaskOption func(*Task)

// WithInput sets the task input payload.
func WithInput(in Payload) TaskOption {
	return func(t *Task) { t.Input = in }
}

// WithDependsOn declares the task IDs this task waits for.
func WithDependsOn(ids ...string) TaskOption {
	return func(t *Task) { t.DependsOn = append(t.DependsOn, ids...) }
}

// WithTimeout bounds each attempt of the task.
func WithTimeout(d time.Duration) TaskOption {
	return func(t *Task) { t.Timeout = d }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) TaskOption {
	return func(t *Task) { t.Retry = p }
}

// NewTask constructs a pending task with default timeout and retry policy.
// Validation happens at workflow construction, not here.
func NewTask(id, name string, capability Capability, opts ...TaskOption) *Task {
	t := &Task{
		ID:         id,
		Name:       name,
		Capability: capability,
		Timeout:    DefaultTaskTimeout,
		Retry:      DefaultRetryPolicy(),
		Status:     TaskStatusPending,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}
