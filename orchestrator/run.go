package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/flowmesh/event"
	"github.com/hupe1980/flowmesh/workflow"
)

// Execute drives one workflow run end to end and blocks until it reaches a
// terminal state. Only pending workflows are accepted. The returned error is
// nil on success; otherwise it carries the typed failure (StageFailureError,
// WorkflowExecutionError, ErrCancelled, ErrAlreadyStarted).
//
// Stages run sequentially. Between stages the loop observes administrative
// status: a pause suspends the loop until resumed, a cancel (or context
// cancellation) terminates the run. In-flight tasks and stages are never
// interrupted by admin operations.
func (o *Orchestrator) Execute(ctx context.Context, wf *workflow.Workflow) (err error) {
	r, regErr := o.register(wf)
	if regErr != nil {
		return regErr
	}

	o.logger.Info("Starting workflow execution", "workflow_id", wf.ID, "stages", len(wf.Stages))
	o.bus.Publish(ctx, event.NewWorkflowStarted(wf.ID, wf.ProjectID, *wf.StartedAt))

	// An internal fault must surface as a failed workflow, never as a panic
	// escaping to the caller.
	defer func() {
		if rec := recover(); rec != nil {
			fault := fmt.Errorf("%v", rec)
			o.failWorkflow(ctx, r, fault.Error())
			err = &WorkflowExecutionError{WorkflowID: wf.ID, Err: fault}
		}
		r.mu.Lock()
		r.results = nil
		r.mu.Unlock()
	}()

	for i, stage := range wf.Stages {
		if err := o.awaitRunnable(ctx, r); err != nil {
			return err
		}

		r.mu.Lock()
		r.wf.CurrentStage = i
		r.mu.Unlock()

		o.logger.Info("Executing stage", "workflow_id", wf.ID, "stage", stage.Name, "stage_index", i, "parallel", stage.Parallel)

		success, err := o.executeStage(ctx, r, stage)
		if err != nil {
			return o.cancelRun(r, err)
		}

		o.bus.Publish(ctx, event.NewStageCompleted(wf.ID, stage.Name, i, success))

		if !success && stage.OnFailure == workflow.StopOnError {
			msg := fmt.Sprintf("stage %s failed", stage.Name)
			o.failWorkflow(ctx, r, msg)
			return &StageFailureError{WorkflowID: wf.ID, StageName: stage.Name, StageIndex: i}
		}
	}

	r.mu.Lock()
	now := time.Now()
	r.wf.Status = workflow.StatusCompleted
	r.wf.CompletedAt = &now
	elapsed := now.Sub(*r.wf.StartedAt)
	r.mu.Unlock()

	o.bus.Publish(ctx, event.NewWorkflowCompleted(wf.ID, elapsed, now))
	o.logger.Info("Workflow completed", "workflow_id", wf.ID, "duration", elapsed)

	return nil
}

// register guards against double execution and moves the workflow to RUNNING.
func (o *Orchestrator) register(wf *workflow.Workflow) (*run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.runs[wf.ID]; exists || wf.Status != workflow.StatusPending {
		return nil, fmt.Errorf("workflow %s: %w", wf.ID, ErrAlreadyStarted)
	}

	now := time.Now()
	wf.Status = workflow.StatusRunning
	wf.StartedAt = &now

	r := &run{
		wf:      wf,
		results: make(map[string]workflow.Payload),
	}
	o.runs[wf.ID] = r

	return r, nil
}

// awaitRunnable blocks while the run is paused and reports cancellation.
// Called between stages; this is the only point where admin status changes
// take effect.
func (o *Orchestrator) awaitRunnable(ctx context.Context, r *run) error {
	for {
		switch r.status() {
		case workflow.StatusCancelled:
			return fmt.Errorf("workflow %s: %w", r.wf.ID, ErrCancelled)
		case workflow.StatusPaused:
			select {
			case <-ctx.Done():
				return o.cancelRun(r, ctx.Err())
			case <-time.After(o.opts.PausePollInterval):
			}
		default:
			return nil
		}
	}
}

// cancelRun maps a context cancellation to the CANCELLED terminal state.
func (o *Orchestrator) cancelRun(r *run, cause error) error {
	r.mu.Lock()
	if !r.wf.Status.Terminal() {
		now := time.Now()
		r.wf.Status = workflow.StatusCancelled
		r.wf.CompletedAt = &now
	}
	r.mu.Unlock()

	o.logger.Info("Workflow run cancelled", "workflow_id", r.wf.ID, "cause", cause.Error())

	return fmt.Errorf("workflow %s: %w", r.wf.ID, ErrCancelled)
}

// failWorkflow moves the run to FAILED and publishes workflow.failed.
func (o *Orchestrator) failWorkflow(ctx context.Context, r *run, msg string) {
	r.mu.Lock()
	if r.wf.Status.Terminal() {
		r.mu.Unlock()
		return
	}
	now := time.Now()
	r.wf.Status = workflow.StatusFailed
	r.wf.Error = msg
	r.wf.CompletedAt = &now
	r.mu.Unlock()

	o.bus.Publish(ctx, event.NewWorkflowFailed(r.wf.ID, msg, now))
	o.logger.Error("Workflow failed", "workflow_id", r.wf.ID, "error", msg)
}

// executeStage runs one stage pass. The returned bool is the stage outcome
// per its failure strategy; the error is non-nil only for run cancellation.
func (o *Orchestrator) executeStage(ctx context.Context, r *run, stage *workflow.Stage) (bool, error) {
	if stage.Parallel {
		return o.executeParallel(ctx, r, stage)
	}
	return o.executeSequential(ctx, r, stage)
}

// executeSequential walks the stage's tasks in declared order, dispatching
// each eligible task to a terminal state before the next. Dependency gating
// is evaluated once per task at its position in the walk: a task whose
// dependencies are unmet at that point stays pending for this pass even if
// the dependency completes moments later.
func (o *Orchestrator) executeSequential(ctx context.Context, r *run, stage *workflow.Stage) (bool, error) {
	failed := false

	for _, t := range stage.Tasks {
		if !o.eligible(r, t) {
			continue
		}

		if err := o.runTask(ctx, r, t); err != nil {
			if ctx.Err() != nil {
				return false, err
			}
			failed = true
			// stop_on_error aborts the remaining tasks of the stage; their
			// attempt counters stay untouched.
			if stage.OnFailure == workflow.StopOnError {
				return false, nil
			}
		}
	}

	return o.stageOutcome(stage, failed), nil
}

// executeParallel computes the eligible set once, launches every eligible
// task concurrently and joins: all launched tasks reach a terminal state
// before the stage outcome is computed. No sibling is cancelled because
// another failed. Results recorded during the fan-out become visible to the
// next stage, not to this pass.
func (o *Orchestrator) executeParallel(ctx context.Context, r *run, stage *workflow.Stage) (bool, error) {
	var eligible []*workflow.Task
	for _, t := range stage.Tasks {
		if o.eligible(r, t) {
			eligible = append(eligible, t)
		}
	}

	if len(eligible) == 0 {
		return o.stageOutcome(stage, false), nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(eligible))

	for _, t := range eligible {
		wg.Add(1)
		go func(t *workflow.Task) {
			defer wg.Done()
			if err := o.runTask(ctx, r, t); err != nil {
				errCh <- err
			}
		}(t)
	}

	wg.Wait()
	close(errCh)

	failed := false
	for range errCh {
		failed = true
	}

	if ctx.Err() != nil {
		return false, o.cancelRun(r, ctx.Err())
	}

	return o.stageOutcome(stage, failed), nil
}

// stageOutcome maps task failures to the stage result per failure strategy.
// continue_on_error always reports success; stop_on_error and retry_failed
// report the conjunction of task outcomes.
func (o *Orchestrator) stageOutcome(stage *workflow.Stage, failed bool) bool {
	if stage.OnFailure == workflow.ContinueOnError {
		return true
	}
	return !failed
}

// eligible evaluates dependency gating for one task. A dependency with a
// recorded result passes. A dependency that ended FAILED or SKIPPED can
// never produce a result, so the task is marked SKIPPED (terminal). A
// dependency with no result yet leaves the task pending for this pass.
func (o *Orchestrator) eligible(r *run, t *workflow.Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.Status.Terminal() {
		return false
	}

	for _, dep := range t.DependsOn {
		if _, ok := r.results[dep]; ok {
			continue
		}

		if depTask, ok := r.wf.TaskByID(dep); ok {
			switch depTask.Status {
			case workflow.TaskStatusFailed, workflow.TaskStatusSkipped:
				t.Status = workflow.TaskStatusSkipped
				o.logger.Info("Task skipped", "workflow_id", r.wf.ID, "task_id", t.ID, "failed_dependency", dep)
				return false
			}
		}

		unmet := &DependencyUnmetError{TaskID: t.ID, DependencyID: dep}
		o.logger.Debug("Task not eligible this pass", "workflow_id", r.wf.ID, "reason", unmet.Error())
		return false
	}

	return true
}

// runTask drives one task to a terminal state through a bounded retry loop:
// each attempt selects an agent, invokes it under the task deadline, and on
// failure waits out the backoff before re-dispatching, until the retry
// budget is exhausted.
func (o *Orchestrator) runTask(ctx context.Context, r *run, t *workflow.Task) error {
	var lastErr error

	for t.Attempts < t.Retry.MaxAttempts {
		r.mu.Lock()
		t.Attempts++
		t.Status = workflow.TaskStatusRunning
		started := time.Now()
		t.StartedAt = &started
		r.mu.Unlock()

		o.logger.Info("Executing task", "workflow_id", r.wf.ID, "task_id", t.ID, "attempt", t.Attempts)

		out, err := o.attempt(ctx, r, t)
		if err == nil {
			r.mu.Lock()
			now := time.Now()
			t.Status = workflow.TaskStatusCompleted
			t.CompletedAt = &now
			t.Output = out
			r.results[t.ID] = out
			duration := now.Sub(started)
			r.mu.Unlock()

			o.bus.Publish(ctx, event.NewTaskCompleted(r.wf.ID, t.ID, duration, map[string]any(out)))
			return nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}

		o.logger.Warn("Task attempt failed", "workflow_id", r.wf.ID, "task_id", t.ID, "attempt", t.Attempts, "error", err.Error())

		if t.Attempts < t.Retry.MaxAttempts {
			r.mu.Lock()
			t.Status = workflow.TaskStatusRetrying
			r.mu.Unlock()

			delay := o.retryDelay(t.Retry, t.Attempts)
			o.logger.Info("Retrying task", "workflow_id", r.wf.ID, "task_id", t.ID, "delay", delay)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	r.mu.Lock()
	now := time.Now()
	t.Status = workflow.TaskStatusFailed
	t.Error = lastErr.Error()
	t.CompletedAt = &now
	attempts := t.Attempts
	r.mu.Unlock()

	o.bus.Publish(ctx, event.NewTaskFailed(r.wf.ID, t.ID, lastErr.Error(), attempts))

	return &RetryExhaustedError{TaskID: t.ID, Attempts: attempts, Err: lastErr}
}

// attempt performs a single dispatch: agent selection, then invocation
// raced against the task deadline. All failure modes come back as typed
// errors for the retry decision; none escape upward raw.
func (o *Orchestrator) attempt(ctx context.Context, r *run, t *workflow.Task) (workflow.Payload, error) {
	ag, err := o.registry.Select(t.Capability)
	if err != nil {
		o.bus.Publish(ctx, event.NewAgentUnavailable(r.wf.ID, t.ID, string(t.Capability), time.Now()))
		return nil, &AgentUnavailableError{TaskID: t.ID, Capability: t.Capability}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	type result struct {
		out workflow.Payload
		err error
	}

	// Buffered so a late completion after the deadline does not leak the
	// goroutine.
	resCh := make(chan result, 1)
	go func() {
		// A panicking agent must surface as an ordinary attempt failure;
		// the top-level recover only covers the orchestrator's goroutine.
		defer func() {
			if rec := recover(); rec != nil {
				resCh <- result{err: fmt.Errorf("agent panic: %v", rec)}
			}
		}()
		out, err := ag.Execute(attemptCtx, t)
		resCh <- result{out: out, err: err}
	}()

	select {
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TaskTimeoutError{TaskID: t.ID, Timeout: t.Timeout}
	case res := <-resCh:
		if res.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &TaskExecutionError{TaskID: t.ID, Err: res.err}
		}
		return res.out, nil
	}
}

// retryDelay computes the realized backoff delay for the attempt that just
// failed: the policy's clamped delay, scaled into [0.5, 1.0] when jitter is
// enabled.
func (o *Orchestrator) retryDelay(p workflow.RetryPolicy, attempt int) time.Duration {
	d := p.Delay(attempt)
	if p.Jitter {
		d = time.Duration(float64(d) * (0.5 + 0.5*o.opts.Jitter()))
	}
	return d
}
