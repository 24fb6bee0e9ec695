package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/flowmesh/workflow"
)

// Agent is the contract fulfilled by capability workers. The orchestrator
// selects an agent by capability and invokes Execute under the task's
// deadline; Healthy must be non-blocking.
type Agent interface {
	// Name returns the human-readable agent identifier.
	Name() string

	// Capability returns the task type this agent fulfills.
	Capability() workflow.Capability

	// Execute performs the task and returns its output payload. Blocking;
	// implementations must honor ctx cancellation.
	Execute(ctx context.Context, task *workflow.Task) (workflow.Payload, error)

	// Healthy reports whether the agent is active and has spare capacity.
	Healthy() bool
}

// DefaultMaxConcurrent is the per-agent ceiling on simultaneous task
// executions when none is configured.
const DefaultMaxConcurrent = 5

// ErrAgentSaturated is returned by AcquireSlot when the agent is already
// executing its maximum number of concurrent tasks.
var ErrAgentSaturated = errors.New("agent at concurrency ceiling")

// BaseAgent bundles shared identity, lifecycle (Start/Stop) and load-slot
// accounting. Embed it in concrete agent implementations and supply an
// Execute method to satisfy the Agent interface. All exported methods are
// goroutine-safe.
type BaseAgent struct {
	name          string
	capability    workflow.Capability
	maxConcurrent int

	mu     sync.Mutex
	active bool
	load   int
}

// BaseOptions configures a BaseAgent.
type BaseOptions struct {
	// MaxConcurrent caps simultaneous executions. Defaults to DefaultMaxConcurrent.
	MaxConcurrent int
}

// NewBaseAgent constructs an active BaseAgent for the given capability.
func NewBaseAgent(name string, capability workflow.Capability, optFns ...func(o *BaseOptions)) BaseAgent {
	opts := BaseOptions{
		MaxConcurrent: DefaultMaxConcurrent,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return BaseAgent{
		name:          name,
		capability:    capability,
		maxConcurrent: opts.MaxConcurrent,
		active:        true,
	}
}

// Name returns the agent identifier.
func (b *BaseAgent) Name() string { return b.name }

// Capability returns the task type this agent fulfills.
func (b *BaseAgent) Capability() workflow.Capability { return b.capability }

// Start marks the agent active. Agents are constructed active; Start only
// matters after a Stop.
func (b *BaseAgent) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = true
}

// Stop marks the agent inactive. In-flight executions finish normally; the
// agent simply stops passing health checks.
func (b *BaseAgent) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = false
}

// Healthy reports active status and spare capacity. Non-blocking.
func (b *BaseAgent) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active && b.load < b.maxConcurrent
}

// AcquireSlot claims one concurrency slot for an execution. Callers must
// release it via ReleaseSlot when the execution finishes.
func (b *BaseAgent) AcquireSlot() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.load >= b.maxConcurrent {
		return ErrAgentSaturated
	}
	b.load++

	return nil
}

// ReleaseSlot returns a previously acquired concurrency slot.
func (b *BaseAgent) ReleaseSlot() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.load > 0 {
		b.load--
	}
}

// Load returns the number of executions currently holding a slot.
func (b *BaseAgent) Load() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load
}
