// Package orchestrator implements the FlowMesh execution engine: it drives
// workflow runs stage by stage, gates tasks on their dependencies, selects
// healthy agents by capability, enforces per-task deadlines, applies retry
// and backoff policies, and publishes lifecycle events for observers.
//
// One Orchestrator instance owns all mutable run state (the active-run map
// and each run's transient result store); there is no process-global state.
// Execute blocks for the duration of a run and returns a typed error on
// failure. Pause, Resume and Cancel only mutate the workflow status and are
// observed between stages: an in-flight task or stage is never interrupted.
//
// Dependency gating is single-pass: eligibility is snapshotted once per
// stage pass, so results recorded during one parallel fan-out become visible
// to later stages only. A task whose dependency ended in failure is marked
// SKIPPED; a task whose dependency merely has no result yet stays PENDING
// for this pass.
package orchestrator
