// Package flowmesh provides a high-level façade over the orchestrator and its
// supporting services (agents, events, logging) enabling rapid construction of
// multi-stage workflow systems. Most applications interact with this package
// by:
//  1. Creating a FlowMesh via New() (optionally overriding the bus, registry
//     or logger)
//  2. Registering one or more agents (simulated, model-backed, custom)
//  3. Executing workflows and observing them via Subscribe and Status
//
// The façade delegates execution to orchestrator.Orchestrator while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a
// structured logger and Prometheus instrumentation.
package flowmesh

import (
	"context"
	"time"

	"github.com/hupe1980/flowmesh/agent"
	"github.com/hupe1980/flowmesh/event"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/orchestrator"
	"github.com/hupe1980/flowmesh/workflow"
)

// Options configures the FlowMesh instance.
type Options struct {
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Bus delivers workflow and task events to observers. Defaults to a
	// fresh in-process bus.
	Bus *event.Bus

	// Registry holds the agent pools tasks dispatch against. Defaults to a
	// fresh empty registry.
	Registry *agent.Registry

	// PausePollInterval is how often a paused run re-checks its status
	// between stages.
	PausePollInterval time.Duration
}

// FlowMesh is the high-level façade aggregating the orchestrator and its services.
type FlowMesh struct {
	opts Options
	orch *orchestrator.Orchestrator
}

// New creates a new FlowMesh instance with optional overrides.
func New(optFns ...func(o *Options)) *FlowMesh {
	opts := Options{
		Logger:            logging.NoOpLogger{},
		PausePollInterval: orchestrator.DefaultPausePollInterval,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	orch := orchestrator.New(func(o *orchestrator.Options) {
		o.Logger = opts.Logger
		o.Bus = opts.Bus
		o.Registry = opts.Registry
		o.PausePollInterval = opts.PausePollInterval
	})

	return &FlowMesh{opts: opts, orch: orch}
}

// Orchestrator exposes the underlying orchestrator for advanced use.
func (m *FlowMesh) Orchestrator() *orchestrator.Orchestrator { return m.orch }

// RegisterAgent adds an agent to the pool for its capability.
func (m *FlowMesh) RegisterAgent(a agent.Agent) { m.orch.RegisterAgent(a) }

// Subscribe registers an event handler for one of the orchestrator's event
// types (see the event package constants).
func (m *FlowMesh) Subscribe(eventType string, h event.Handler) {
	m.orch.Bus().Subscribe(eventType, h)
}

// Execute runs the workflow to a terminal state. It blocks until the run
// finishes; use a goroutine plus Status for asynchronous supervision.
func (m *FlowMesh) Execute(ctx context.Context, wf *workflow.Workflow) error {
	return m.orch.Execute(ctx, wf)
}

// Status returns a snapshot of a run's state.
func (m *FlowMesh) Status(workflowID string) (*orchestrator.Status, error) {
	return m.orch.Status(workflowID)
}

// Pause suspends a running workflow before its next stage.
func (m *FlowMesh) Pause(workflowID string) { m.orch.Pause(workflowID) }

// Resume continues a paused workflow.
func (m *FlowMesh) Resume(workflowID string) { m.orch.Resume(workflowID) }

// Cancel terminates a workflow between stages.
func (m *FlowMesh) Cancel(workflowID string) { m.orch.Cancel(workflowID) }
