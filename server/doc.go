// Package server exposes the orchestrator over a small JSON HTTP API built
// on chi: workflow submission, status polling, pause/resume/cancel, a health
// probe and optional Prometheus metrics.
package server
