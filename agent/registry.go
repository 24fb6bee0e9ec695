package agent

import (
	"fmt"
	"sync"

	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/workflow"
)

// Registry groups agents into pools keyed by capability, preserving
// registration order within each pool.
type Registry struct {
	mu     sync.RWMutex
	pools  map[workflow.Capability][]Agent
	logger logging.Logger
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Logger records registrations. Defaults to NoOpLogger.
	Logger logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		pools:  make(map[workflow.Capability][]Agent),
		logger: opts.Logger,
	}
}

// Register appends the agent to its capability pool.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pools[a.Capability()] = append(r.pools[a.Capability()], a)
	r.logger.Info("Registered agent", "agent", a.Name(), "capability", string(a.Capability()))
}

// Select returns the first healthy agent of the capability, scanning the
// pool in registration order. No load balancing: unavailability surfaces as
// an error and is handled by the caller's retry path.
func (r *Registry) Select(capability workflow.Capability) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.pools[capability] {
		if a.Healthy() {
			return a, nil
		}
	}

	return nil, fmt.Errorf("no available agent for capability %q", capability)
}

// Agents returns a copy of the pool for a capability in registration order.
func (r *Registry) Agents(capability workflow.Capability) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pool := r.pools[capability]
	out := make([]Agent, len(pool))
	copy(out, pool)
	return out
}

// Capabilities returns the capabilities that have at least one registered agent.
func (r *Registry) Capabilities() []workflow.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make([]workflow.Capability, 0, len(r.pools))
	for c := range r.pools {
		caps = append(caps, c)
	}
	return caps
}
