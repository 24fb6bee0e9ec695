package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/flowmesh/event"
)

// Collector holds the Prometheus instruments fed by orchestrator events.
type Collector struct {
	workflowsStarted  prometheus.Counter
	workflowsFinished *prometheus.CounterVec
	workflowsRunning  prometheus.Gauge
	stagesCompleted   *prometheus.CounterVec
	tasksCompleted    prometheus.Counter
	tasksFailed       prometheus.Counter
	agentUnavailable  prometheus.Counter
	taskDuration      prometheus.Histogram
	workflowDuration  prometheus.Histogram
}

// NewCollector creates the instruments and registers them with reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry or a fresh
// registry in tests.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		workflowsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "flowmesh_workflows_started_total",
				Help: "Total number of workflow runs started",
			},
		),
		workflowsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowmesh_workflows_finished_total",
				Help: "Total number of workflow runs finished",
			},
			[]string{"status"},
		),
		workflowsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowmesh_workflows_running",
				Help: "Current number of workflow runs in flight",
			},
		),
		stagesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowmesh_stages_completed_total",
				Help: "Total number of executed stages",
			},
			[]string{"success"},
		),
		tasksCompleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "flowmesh_tasks_completed_total",
				Help: "Total number of tasks that completed successfully",
			},
		),
		tasksFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "flowmesh_tasks_failed_total",
				Help: "Total number of tasks that exhausted their retry budget",
			},
		),
		agentUnavailable: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "flowmesh_agent_unavailable_total",
				Help: "Total number of dispatch attempts that found no healthy agent",
			},
		),
		taskDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flowmesh_task_duration_seconds",
				Help:    "Duration of successful task attempts in seconds",
				Buckets: []float64{.05, .1, .5, 1, 2.5, 5, 10, 30, 60, 300, 600},
			},
		),
		workflowDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flowmesh_workflow_duration_seconds",
				Help:    "Duration of successful workflow runs in seconds",
				Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300, 600, 1800, 3600},
			},
		),
	}

	reg.MustRegister(
		c.workflowsStarted,
		c.workflowsFinished,
		c.workflowsRunning,
		c.stagesCompleted,
		c.tasksCompleted,
		c.tasksFailed,
		c.agentUnavailable,
		c.taskDuration,
		c.workflowDuration,
	)

	return c
}

// Bind subscribes the collector to every orchestrator event type on the bus.
func (c *Collector) Bind(bus *event.Bus) {
	bus.Subscribe(event.TypeWorkflowStarted, func(_ context.Context, _ event.Event) error {
		c.workflowsStarted.Inc()
		c.workflowsRunning.Inc()
		return nil
	})

	bus.Subscribe(event.TypeWorkflowCompleted, func(_ context.Context, e event.Event) error {
		c.workflowsFinished.WithLabelValues("completed").Inc()
		c.workflowsRunning.Dec()
		if p, ok := e.Payload.(event.WorkflowCompleted); ok {
			c.workflowDuration.Observe(p.DurationSeconds)
		}
		return nil
	})

	bus.Subscribe(event.TypeWorkflowFailed, func(_ context.Context, _ event.Event) error {
		c.workflowsFinished.WithLabelValues("failed").Inc()
		c.workflowsRunning.Dec()
		return nil
	})

	bus.Subscribe(event.TypeStageCompleted, func(_ context.Context, e event.Event) error {
		success := false
		if p, ok := e.Payload.(event.StageCompleted); ok {
			success = p.Success
		}
		c.stagesCompleted.WithLabelValues(strconv.FormatBool(success)).Inc()
		return nil
	})

	bus.Subscribe(event.TypeTaskCompleted, func(_ context.Context, e event.Event) error {
		c.tasksCompleted.Inc()
		if p, ok := e.Payload.(event.TaskCompleted); ok {
			c.taskDuration.Observe(p.DurationSeconds)
		}
		return nil
	})

	bus.Subscribe(event.TypeTaskFailed, func(_ context.Context, _ event.Event) error {
		c.tasksFailed.Inc()
		return nil
	})

	bus.Subscribe(event.TypeAgentUnavailable, func(_ context.Context, _ event.Event) error {
		c.agentUnavailable.Inc()
		return nil
	})
}
