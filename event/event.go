package event

import (
	"time"

	"github.com/google/uuid"
)

// Event types published by the orchestrator. The set is fixed; observers
// subscribe by type string.
const (
	TypeWorkflowStarted   = "workflow.started"
	TypeStageCompleted    = "workflow.stage_completed"
	TypeWorkflowCompleted = "workflow.completed"
	TypeWorkflowFailed    = "workflow.failed"
	TypeTaskCompleted     = "task.completed"
	TypeTaskFailed        = "task.failed"
	TypeAgentUnavailable  = "agent.unavailable"
)

// Types lists every event type the orchestrator publishes, in a stable order.
// Useful for observers (metrics, recorders) that subscribe to everything.
func Types() []string {
	return []string{
		TypeWorkflowStarted,
		TypeStageCompleted,
		TypeWorkflowCompleted,
		TypeWorkflowFailed,
		TypeTaskCompleted,
		TypeTaskFailed,
		TypeAgentUnavailable,
	}
}

// Event is the envelope delivered to subscribers. After publication it should
// be treated as immutable. Payload holds one of the typed payload structs
// below, matching Type.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewEvent creates an envelope with a generated ID and UTC timestamp.
// Prefer the typed constructors for the fixed event set.
func NewEvent(eventType string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// WorkflowStarted is published once when a workflow run begins.
type WorkflowStarted struct {
	WorkflowID string    `json:"workflow_id"`
	ProjectID  string    `json:"project_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewWorkflowStarted builds a workflow.started event.
func NewWorkflowStarted(workflowID, projectID string, ts time.Time) Event {
	return NewEvent(TypeWorkflowStarted, WorkflowStarted{
		WorkflowID: workflowID,
		ProjectID:  projectID,
		Timestamp:  ts,
	})
}

// StageCompleted is published after every executed stage, successful or not.
type StageCompleted struct {
	WorkflowID string `json:"workflow_id"`
	StageName  string `json:"stage_name"`
	StageIndex int    `json:"stage_index"`
	Success    bool   `json:"success"`
}

// NewStageCompleted builds a workflow.stage_completed event.
func NewStageCompleted(workflowID, stageName string, stageIndex int, success bool) Event {
	return NewEvent(TypeStageCompleted, StageCompleted{
		WorkflowID: workflowID,
		StageName:  stageName,
		StageIndex: stageIndex,
		Success:    success,
	})
}

// WorkflowCompleted is published when every stage finished successfully.
type WorkflowCompleted struct {
	WorkflowID      string    `json:"workflow_id"`
	DurationSeconds float64   `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewWorkflowCompleted builds a workflow.completed event.
func NewWorkflowCompleted(workflowID string, duration time.Duration, ts time.Time) Event {
	return NewEvent(TypeWorkflowCompleted, WorkflowCompleted{
		WorkflowID:      workflowID,
		DurationSeconds: duration.Seconds(),
		Timestamp:       ts,
	})
}

// WorkflowFailed is published when a run ends in failure, whether from a
// stage failure under stop_on_error or an internal fault.
type WorkflowFailed struct {
	WorkflowID string    `json:"workflow_id"`
	Error      string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewWorkflowFailed builds a workflow.failed event.
func NewWorkflowFailed(workflowID, errMsg string, ts time.Time) Event {
	return NewEvent(TypeWorkflowFailed, WorkflowFailed{
		WorkflowID: workflowID,
		Error:      errMsg,
		Timestamp:  ts,
	})
}

// TaskCompleted is published when a task attempt succeeds. Duration covers
// the successful attempt only.
type TaskCompleted struct {
	WorkflowID      string  `json:"workflow_id"`
	TaskID          string  `json:"task_id"`
	DurationSeconds float64 `json:"duration_seconds"`
	Result          any     `json:"result"`
}

// NewTaskCompleted builds a task.completed event.
func NewTaskCompleted(workflowID, taskID string, duration time.Duration, result any) Event {
	return NewEvent(TypeTaskCompleted, TaskCompleted{
		WorkflowID:      workflowID,
		TaskID:          taskID,
		DurationSeconds: duration.Seconds(),
		Result:          result,
	})
}

// TaskFailed is published once a task has exhausted its retry budget.
type TaskFailed struct {
	WorkflowID string `json:"workflow_id"`
	TaskID     string `json:"task_id"`
	Error      string `json:"error"`
	Attempts   int    `json:"attempts"`
}

// NewTaskFailed builds a task.failed event.
func NewTaskFailed(workflowID, taskID, errMsg string, attempts int) Event {
	return NewEvent(TypeTaskFailed, TaskFailed{
		WorkflowID: workflowID,
		TaskID:     taskID,
		Error:      errMsg,
		Attempts:   attempts,
	})
}

// AgentUnavailable is published when no healthy agent of the required
// capability could be selected for a dispatch attempt.
type AgentUnavailable struct {
	WorkflowID string    `json:"workflow_id"`
	TaskID     string    `json:"task_id"`
	Capability string    `json:"capability"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewAgentUnavailable builds an agent.unavailable event.
func NewAgentUnavailable(workflowID, taskID, capability string, ts time.Time) Event {
	return NewEvent(TypeAgentUnavailable, AgentUnavailable{
		WorkflowID: workflowID,
		TaskID:     taskID,
		Capability: capability,
		Timestamp:  ts,
	})
}
