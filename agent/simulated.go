package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/flowmesh/workflow"
)

// SimulatedAgent is a concrete agent that fakes work: it sleeps for a
// configurable latency, then returns a canned success payload. Failures can
// be injected for the first N calls to exercise the retry path, or scripted
// entirely via an execute func. Used by the examples and the simulated
// engine configuration.
type SimulatedAgent struct {
	BaseAgent
	latency   time.Duration
	execFn    func(ctx context.Context, task *workflow.Task) (workflow.Payload, error)
	mu        sync.Mutex
	failures  int
	failErr   error
	callCount int
}

// SimulatedOptions configures a SimulatedAgent.
type SimulatedOptions struct {
	// Latency is slept (ctx-aware) before every execution. Defaults to 100ms.
	Latency time.Duration
	// MaxConcurrent caps simultaneous executions.
	MaxConcurrent int
	// FailFirst makes the first N executions return FailWith.
	FailFirst int
	// FailWith is the injected error; defaults to a generic simulated failure.
	FailWith error
	// ExecuteFunc fully scripts the outcome, bypassing the canned payload.
	// Latency and failure injection still apply before it runs.
	ExecuteFunc func(ctx context.Context, task *workflow.Task) (workflow.Payload, error)
}

// NewSimulatedAgent creates a simulated agent for the capability.
func NewSimulatedAgent(name string, capability workflow.Capability, optFns ...func(o *SimulatedOptions)) *SimulatedAgent {
	opts := SimulatedOptions{
		Latency:       100 * time.Millisecond,
		MaxConcurrent: DefaultMaxConcurrent,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.FailWith == nil {
		opts.FailWith = fmt.Errorf("simulated failure")
	}

	return &SimulatedAgent{
		BaseAgent: NewBaseAgent(name, capability, func(o *BaseOptions) {
			o.MaxConcurrent = opts.MaxConcurrent
		}),
		latency:  opts.Latency,
		execFn:   opts.ExecuteFunc,
		failures: opts.FailFirst,
		failErr:  opts.FailWith,
	}
}

// Execute implements Agent.
func (s *SimulatedAgent) Execute(ctx context.Context, task *workflow.Task) (workflow.Payload, error) {
	if err := s.AcquireSlot(); err != nil {
		return nil, err
	}
	defer s.ReleaseSlot()

	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.latency):
		}
	}

	s.mu.Lock()
	s.callCount++
	inject := s.failures > 0
	if inject {
		s.failures--
	}
	s.mu.Unlock()

	if inject {
		return nil, s.failErr
	}

	if s.execFn != nil {
		return s.execFn(ctx, task)
	}

	return workflow.Payload{
		"status":    "success",
		"message":   fmt.Sprintf("Task %s completed successfully", task.ID),
		"artifacts": []any{},
	}, nil
}

// Calls returns how many executions reached the agent, including injected
// failures.
func (s *SimulatedAgent) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}
