// Package agent contains the worker side of FlowMesh: the Agent contract the
// orchestrator dispatches tasks against, shared plumbing for concrete
// implementations, and the capability-keyed Registry used for selection.
//
// The package focuses on three concerns:
//
//  1. Base lifecycle + load-slot accounting (BaseAgent)
//  2. Registration and health-gated selection (Registry)
//  3. Concrete workers: SimulatedAgent for development/testing and
//     ModelAgent for LLM-backed capabilities
//
// Design principles:
//   - No hidden global state: pools live in a Registry owned by the orchestrator
//   - New capabilities register Agent implementations instead of adding
//     dispatch branches
//   - Selection is a plain linear scan in registration order; unavailability
//     is an ordinary failure fed to the orchestrator's retry path
package agent
