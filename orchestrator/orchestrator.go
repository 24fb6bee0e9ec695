package orchestrator

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/hupe1980/flowmesh/agent"
	"github.com/hupe1980/flowmesh/event"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/workflow"
)

// JitterFunc draws a value from [0, 1). Injected so backoff jitter is
// deterministic in tests.
type JitterFunc func() float64

// DefaultPausePollInterval is how often a paused run re-checks its status
// between stages.
const DefaultPausePollInterval = 100 * time.Millisecond

// Options configures an Orchestrator instance using the functional options
// pattern.
type Options struct {
	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// Bus delivers workflow/task events to observers. Defaults to a fresh bus.
	Bus *event.Bus

	// Registry holds the agent pools tasks dispatch against. Defaults to a
	// fresh empty registry.
	Registry *agent.Registry

	// Jitter is the random source for backoff jitter. Defaults to
	// math/rand/v2 Float64.
	Jitter JitterFunc

	// PausePollInterval is the delay between status polls while a run is
	// paused. Defaults to DefaultPausePollInterval.
	PausePollInterval time.Duration
}

// Orchestrator drives workflow runs end to end: stage iteration, dependency
// gating, agent selection, retry/backoff, timeout enforcement and event
// publication. All mutable run state is owned by the instance; there is no
// ambient global state.
type Orchestrator struct {
	opts     Options
	logger   logging.Logger
	bus      *event.Bus
	registry *agent.Registry

	mu   sync.RWMutex
	runs map[string]*run
}

// run tracks one workflow execution. The entry stays registered after the
// run finishes so status snapshots remain queryable; only the result store
// is discarded.
type run struct {
	// mu covers workflow/task mutation during execution and snapshot reads.
	mu sync.Mutex
	wf *workflow.Workflow
	// results is the per-run result store keyed by task ID. Written once per
	// task (on success only), read during dependency gating, discarded when
	// the run reaches a terminal state.
	results map[string]workflow.Payload
}

func (r *run) status() workflow.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wf.Status
}

// New creates an orchestrator with optional overrides.
func New(optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Logger:            logging.NoOpLogger{},
		Jitter:            rand.Float64,
		PausePollInterval: DefaultPausePollInterval,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Bus == nil {
		opts.Bus = event.NewBus(func(o *event.BusOptions) { o.Logger = opts.Logger })
	}
	if opts.Registry == nil {
		opts.Registry = agent.NewRegistry(func(o *agent.RegistryOptions) { o.Logger = opts.Logger })
	}

	o := &Orchestrator{
		opts:     opts,
		logger:   opts.Logger,
		bus:      opts.Bus,
		registry: opts.Registry,
		runs:     make(map[string]*run),
	}

	o.subscribeObservers()

	return o
}

// subscribeObservers attaches the orchestrator's own logging handlers to the
// task and agent event types.
func (o *Orchestrator) subscribeObservers() {
	o.bus.Subscribe(event.TypeTaskCompleted, func(_ context.Context, e event.Event) error {
		if p, ok := e.Payload.(event.TaskCompleted); ok {
			o.logger.Debug("Task completed", "workflow_id", p.WorkflowID, "task_id", p.TaskID, "duration_seconds", p.DurationSeconds)
		}
		return nil
	})
	o.bus.Subscribe(event.TypeTaskFailed, func(_ context.Context, e event.Event) error {
		if p, ok := e.Payload.(event.TaskFailed); ok {
			o.logger.Warn("Task failed", "workflow_id", p.WorkflowID, "task_id", p.TaskID, "error", p.Error, "attempts", p.Attempts)
		}
		return nil
	})
	o.bus.Subscribe(event.TypeAgentUnavailable, func(_ context.Context, e event.Event) error {
		if p, ok := e.Payload.(event.AgentUnavailable); ok {
			o.logger.Warn("Agent unavailable", "workflow_id", p.WorkflowID, "task_id", p.TaskID, "capability", p.Capability)
		}
		return nil
	})
}

// Bus returns the event bus observers subscribe to.
func (o *Orchestrator) Bus() *event.Bus { return o.bus }

// Registry returns the agent registry.
func (o *Orchestrator) Registry() *agent.Registry { return o.registry }

// RegisterAgent adds an agent to the registry pool for its capability.
func (o *Orchestrator) RegisterAgent(a agent.Agent) { o.registry.Register(a) }

// lookup resolves a registered run by workflow ID.
func (o *Orchestrator) lookup(workflowID string) (*run, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.runs[workflowID]
	return r, ok
}

// Pause suspends a running workflow. Status-only mutation: an in-flight
// stage finishes first and the pause takes effect before the next stage.
// No-op on unknown IDs or workflows that are not running.
func (o *Orchestrator) Pause(workflowID string) {
	r, ok := o.lookup(workflowID)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.wf.Status != workflow.StatusRunning {
		return
	}
	r.wf.Status = workflow.StatusPaused
	o.logger.Info("Workflow paused", "workflow_id", workflowID)
}

// Resume continues a paused workflow. No-op on unknown IDs and on workflows
// that are not paused.
func (o *Orchestrator) Resume(workflowID string) {
	r, ok := o.lookup(workflowID)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.wf.Status != workflow.StatusPaused {
		return
	}
	r.wf.Status = workflow.StatusRunning
	o.logger.Info("Workflow resumed", "workflow_id", workflowID)
}

// Cancel terminates a workflow between stages. No-op on unknown IDs and on
// workflows that already reached a terminal state.
func (o *Orchestrator) Cancel(workflowID string) {
	r, ok := o.lookup(workflowID)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.wf.Status.Terminal() {
		return
	}
	now := time.Now()
	r.wf.Status = workflow.StatusCancelled
	r.wf.CompletedAt = &now
	o.logger.Info("Workflow cancelled", "workflow_id", workflowID)
}

// Status is the queryable run snapshot.
type Status struct {
	WorkflowID   string          `json:"workflow_id"`
	Status       workflow.Status `json:"status"`
	Progress     float64         `json:"progress"`
	CurrentStage int             `json:"current_stage"`
	TotalStages  int             `json:"total_stages"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Status returns a snapshot of the workflow's run state. Snapshots stay
// available after the run completes. Returns ErrWorkflowNotFound for an
// unknown ID.
func (o *Orchestrator) Status(workflowID string) (*Status, error) {
	r, ok := o.lookup(workflowID)
	if !ok {
		return nil, ErrWorkflowNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var total, completed int
	for _, stage := range r.wf.Stages {
		for _, t := range stage.Tasks {
			total++
			if t.Status == workflow.TaskStatusCompleted {
				completed++
			}
		}
	}

	var progress float64
	if total > 0 {
		progress = math.Round(float64(completed)/float64(total)*100*100) / 100
	}

	return &Status{
		WorkflowID:   r.wf.ID,
		Status:       r.wf.Status,
		Progress:     progress,
		CurrentStage: r.wf.CurrentStage,
		TotalStages:  len(r.wf.Stages),
		StartedAt:    r.wf.StartedAt,
		CompletedAt:  r.wf.CompletedAt,
		Error:        r.wf.Error,
	}, nil
}
