// Package metrics exposes Prometheus instrumentation for workflow execution.
// A Collector subscribes to the orchestrator's event bus and translates the
// event stream into counters, gauges and histograms. Cancelled runs end
// without a terminal event, so the running gauge only tracks runs that
// complete or fail.
package metrics
