package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/flowmesh/workflow"
)

// Sentinel errors returned by orchestrator entry points.
var (
	// ErrWorkflowNotFound is returned by Status for an unknown workflow ID.
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrAlreadyStarted is returned by Execute when the workflow is not
	// pending, closing the double-execution hazard.
	ErrAlreadyStarted = errors.New("workflow already started")
	// ErrCancelled is returned by Execute when a run is cancelled, either
	// administratively or through context cancellation.
	ErrCancelled = errors.New("workflow cancelled")
)

// DependencyUnmetError reports that a task's dependency has no recorded
// result yet. It is a gating outcome, not a failure: the task is skipped for
// the current stage pass and stays pending.
type DependencyUnmetError struct {
	TaskID       string
	DependencyID string
}

func (e *DependencyUnmetError) Error() string {
	return fmt.Sprintf("task %s: dependency %s has no recorded result", e.TaskID, e.DependencyID)
}

// AgentUnavailableError reports that no healthy agent of the required
// capability could be selected. Fed to the ordinary retry path.
type AgentUnavailableError struct {
	TaskID     string
	Capability workflow.Capability
}

func (e *AgentUnavailableError) Error() string {
	return fmt.Sprintf("task %s: no available agent for capability %q", e.TaskID, e.Capability)
}

// TaskTimeoutError reports that an attempt exceeded the task's deadline.
type TaskTimeoutError struct {
	TaskID  string
	Timeout time.Duration
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("task %s: timed out after %s", e.TaskID, e.Timeout)
}

// TaskExecutionError wraps a failure reported by the agent itself.
type TaskExecutionError struct {
	TaskID string
	Err    error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s: execution failed: %v", e.TaskID, e.Err)
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }

// RetryExhaustedError is the terminal task failure: every attempt allowed by
// the retry policy failed. Err carries the last underlying failure.
type RetryExhaustedError struct {
	TaskID   string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("task %s: failed after %d attempts: %v", e.TaskID, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// StageFailureError reports a stage failure that halted the workflow under
// the stop_on_error strategy.
type StageFailureError struct {
	WorkflowID string
	StageName  string
	StageIndex int
}

func (e *StageFailureError) Error() string {
	return fmt.Sprintf("workflow %s: stage %s failed", e.WorkflowID, e.StageName)
}

// WorkflowExecutionError wraps an unexpected internal fault recovered at the
// top of a run. The caller never observes the raw panic.
type WorkflowExecutionError struct {
	WorkflowID string
	Err        error
}

func (e *WorkflowExecutionError) Error() string {
	return fmt.Sprintf("workflow %s: internal fault: %v", e.WorkflowID, e.Err)
}

func (e *WorkflowExecutionError) Unwrap() error { return e.Err }
