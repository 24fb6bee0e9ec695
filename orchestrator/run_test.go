package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/flowmesh/event"
	"github.com/hupe1980/flowmesh/internal/testutil"
	"github.com/hupe1980/flowmesh/workflow"
	"github.com/stretchr/testify/assert"
)

func TestExecute_SequentialHappyPath(t *testing.T) {
	rec := testutil.NewRecorder()
	o := newTestOrchestrator(
		newTestAgent("analyzer-001", workflow.CapabilityRequirementAnalysis, nil),
		newTestAgent("planner-001", workflow.CapabilityArchitecturePlanning, nil),
	)
	rec.BindAll(o.Bus())

	wf := testutil.NewGraph("demo").
		Stage("analysis").
		Task("req", workflow.CapabilityRequirementAnalysis).
		Task("arch", workflow.CapabilityArchitecturePlanning, workflow.WithDependsOn("req")).
		Build(t)

	assert.NoError(t, o.Execute(context.Background(), wf))

	assert.Equal(t, workflow.StatusCompleted, wf.Status)
	assert.NotNil(t, wf.StartedAt)
	assert.NotNil(t, wf.CompletedAt)
	for _, task := range wf.Tasks() {
		assert.Equal(t, workflow.TaskStatusCompleted, task.Status)
		assert.Equal(t, 1, task.Attempts)
		assert.Equal(t, "success", task.Output["status"])
	}

	assert.Equal(t, []string{
		event.TypeWorkflowStarted,
		event.TypeTaskCompleted,
		event.TypeTaskCompleted,
		event.TypeStageCompleted,
		event.TypeWorkflowCompleted,
	}, rec.Types())

	stage := rec.OfType(event.TypeStageCompleted)[0].Payload.(event.StageCompleted)
	assert.True(t, stage.Success)
	assert.Equal(t, "analysis", stage.StageName)
}

func TestExecute_StopOnErrorAbortsStage(t *testing.T) {
	rec := testutil.NewRecorder()
	o := newTestOrchestrator(
		newTestAgent("tester-001", workflow.CapabilityTesting, func(_ context.Context, _ *workflow.Task) (workflow.Payload, error) {
			return nil, errors.New("tests are red")
		}),
		newTestAgent("deployer-001", workflow.CapabilityDeployment, nil),
	)
	rec.BindAll(o.Bus())

	wf := testutil.NewGraph("demo").
		Stage("ship", workflow.WithFailureStrategy(workflow.StopOnError)).
		Task("test", workflow.CapabilityTesting, workflow.WithRetryPolicy(testutil.Retry(2))).
		Task("deploy", workflow.CapabilityDeployment).
		Build(t)

	err := o.Execute(context.Background(), wf)

	var stageErr *StageFailureError
	assert.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "ship", stageErr.StageName)

	assert.Equal(t, workflow.StatusFailed, wf.Status)
	assert.Equal(t, "stage ship failed", wf.Error)

	failing, _ := wf.TaskByID("test")
	assert.Equal(t, workflow.TaskStatusFailed, failing.Status)
	assert.Equal(t, 2, failing.Attempts)
	assert.Contains(t, failing.Error, "tests are red")

	// The aborted successor was never dispatched.
	aborted, _ := wf.TaskByID("deploy")
	assert.Equal(t, workflow.TaskStatusPending, aborted.Status)
	assert.Equal(t, 0, aborted.Attempts)

	// The failed stage still reports stage_completed before workflow.failed.
	assert.Equal(t, []string{
		event.TypeWorkflowStarted,
		event.TypeTaskFailed,
		event.TypeStageCompleted,
		event.TypeWorkflowFailed,
	}, rec.Types())
	assert.False(t, rec.OfType(event.TypeStageCompleted)[0].Payload.(event.StageCompleted).Success)
}

func TestExecute_ContinueOnError(t *testing.T) {
	rec := testutil.NewRecorder()
	o := newTestOrchestrator(
		newTestAgent("tester-001", workflow.CapabilityTesting, nil),
		newTestAgent("deployer-001", workflow.CapabilityDeployment, func(_ context.Context, _ *workflow.Task) (workflow.Payload, error) {
			return nil, errors.New("always broken")
		}),
	)
	rec.BindAll(o.Bus())

	wf := testutil.NewGraph("demo").
		Stage("mixed", workflow.WithFailureStrategy(workflow.ContinueOnError)).
		Task("t1", workflow.CapabilityTesting).
		Task("t2", workflow.CapabilityDeployment, workflow.WithRetryPolicy(testutil.Retry(3))).
		Task("t3", workflow.CapabilityTesting).
		Build(t)

	assert.NoError(t, o.Execute(context.Background(), wf))
	assert.Equal(t, workflow.StatusCompleted, wf.Status)

	t1, _ := wf.TaskByID("t1")
	t2, _ := wf.TaskByID("t2")
	t3, _ := wf.TaskByID("t3")
	assert.Equal(t, workflow.TaskStatusCompleted, t1.Status)
	assert.Equal(t, workflow.TaskStatusFailed, t2.Status)
	assert.Equal(t, 3, t2.Attempts)
	assert.Equal(t, workflow.TaskStatusCompleted, t3.Status)

	// continue_on_error reports the stage successful regardless.
	assert.True(t, rec.OfType(event.TypeStageCompleted)[0].Payload.(event.StageCompleted).Success)
}

func TestExecute_RetryFailedReportsStrictStageOutcome(t *testing.T) {
	rec := testutil.NewRecorder()
	o := newTestOrchestrator(
		newTestAgent("tester-001", workflow.CapabilityTesting, nil),
		newTestAgent("deployer-001", workflow.CapabilityDeployment, func(_ context.Context, _ *workflow.Task) (workflow.Payload, error) {
			return nil, errors.New("always broken")
		}),
	)
	rec.BindAll(o.Bus())

	wf := testutil.NewGraph("demo").
		Stage("mixed", workflow.WithFailureStrategy(workflow.RetryFailed)).
		Task("t1", workflow.CapabilityDeployment).
		Task("t2", workflow.CapabilityTesting).
		Build(t)

	// The stage walk continues and the workflow still completes, but the
	// stage itself is reported unsuccessful.
	assert.NoError(t, o.Execute(context.Background(), wf))
	assert.Equal(t, workflow.StatusCompleted, wf.Status)

	t2, _ := wf.TaskByID("t2")
	assert.Equal(t, workflow.TaskStatusCompleted, t2.Status)
	assert.False(t, rec.OfType(event.TypeStageCompleted)[0].Payload.(event.StageCompleted).Success)
}

func TestExecute_AttemptsNeverExceedMaxAttempts(t *testing.T) {
	var calls atomic.Int32

	o := newTestOrchestrator(
		newTestAgent("tester-001", workflow.CapabilityTesting, func(_ context.Context, _ *workflow.Task) (workflow.Payload, error) {
			calls.Add(1)
			return nil, errors.New("always broken")
		}),
	)

	wf := testutil.NewGraph("demo").
		Stage("only", workflow.WithFailureStrategy(workflow.ContinueOnError)).
		Task("t1", workflow.CapabilityTesting, workflow.WithRetryPolicy(testutil.Retry(3))).
		Build(t)

	assert.NoError(t, o.Execute(context.Background(), wf))

	task, _ := wf.TaskByID("t1")
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, task.Attempts)
}

func TestExecute_UnmetDependencyStaysPending(t *testing.T) {
	o := newTestOrchestrator(newTestAgent("tester-001", workflow.CapabilityTesting, nil))

	// "late" is walked before its dependency completes: single-pass gating
	// leaves it pending for the whole run.
	wf := testutil.NewGraph("demo").
		Stage("only").
		Task("late", workflow.CapabilityTesting, workflow.WithDependsOn("early")).
		Task("early", workflow.CapabilityTesting).
		Build(t)

	assert.NoError(t, o.Execute(context.Background(), wf))

	late, _ := wf.TaskByID("late")
	assert.Equal(t, workflow.TaskStatusPending, late.Status)
	assert.Equal(t, 0, late.Attempts)

	early, _ := wf.TaskByID("early")
	assert.Equal(t, workflow.TaskStatusCompleted, early.Status)
}

func TestExecute_DependencyResultVisibleToNextStage(t *testing.T) {
	o := newTestOrchestrator(newTestAgent("tester-001", workflow.CapabilityTesting, nil))

	wf := testutil.NewGraph("demo").
		Stage("first").
		Task("producer", workflow.CapabilityTesting).
		Stage("second").
		Task("consumer", workflow.CapabilityTesting, workflow.WithDependsOn("producer")).
		Build(t)

	assert.NoError(t, o.Execute(context.Background(), wf))

	consumer, _ := wf.TaskByID("consumer")
	assert.Equal(t, workflow.TaskStatusCompleted, consumer.Status)
}

func TestExecute_FailedDependencySkipsDependents(t *testing.T) {
	o := newTestOrchestrator(
		newTestAgent("tester-001", workflow.CapabilityTesting, func(_ context.Context, _ *workflow.Task) (workflow.Payload, error) {
			return nil, errors.New("always broken")
		}),
		newTestAgent("deployer-001", workflow.CapabilityDeployment, nil),
	)

	wf := testutil.NewGraph("demo").
		Stage("first", workflow.WithFailureStrategy(workflow.ContinueOnError)).
		Task("flaky", workflow.CapabilityTesting).
		Stage("second", workflow.WithFailureStrategy(workflow.ContinueOnError)).
		Task("dependent", workflow.CapabilityDeployment, workflow.WithDependsOn("flaky")).
		Stage("third", workflow.WithFailureStrategy(workflow.ContinueOnError)).
		Task("transitive", workflow.CapabilityDeployment, workflow.WithDependsOn("dependent")).
		Build(t)

	assert.NoError(t, o.Execute(context.Background(), wf))

	// A terminally failed dependency can never produce a result: dependents
	// are skipped rather than left pending, transitively.
	dependent, _ := wf.TaskByID("dependent")
	assert.Equal(t, workflow.TaskStatusSkipped, dependent.Status)
	assert.Equal(t, 0, dependent.Attempts)

	transitive, _ := wf.TaskByID("transitive")
	assert.Equal(t, workflow.TaskStatusSkipped, transitive.Status)
}

func TestExecute_ParallelFanOutAndJoin(t *testing.T) {
	const n = 4

	var mu sync.Mutex
	var inFlight, maxInFlight int

	probe := func(_ context.Context, _ *workflow.Task) (workflow.Payload, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()

		return workflow.Payload{"status": "success"}, nil
	}

	o := newTestOrchestrator(
		newTestAgent("gen-001", workflow.CapabilityCodeGeneration, probe),
		newTestAgent("gen-002", workflow.CapabilityCodeGeneration, probe),
		newTestAgent("gen-003", workflow.CapabilityCodeGeneration, probe),
		newTestAgent("gen-004", workflow.CapabilityCodeGeneration, probe),
	)

	g := testutil.NewGraph("demo").Stage("fanout", workflow.WithParallel())
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		g.Task(id, workflow.CapabilityCodeGeneration)
	}
	wf := g.Build(t)

	assert.NoError(t, o.Execute(context.Background(), wf))

	// All eligible tasks were launched together, not serialized.
	assert.Equal(t, n, maxInFlight)
	for _, task := range wf.Tasks() {
		assert.Equal(t, workflow.TaskStatusCompleted, task.Status)
	}
}

func TestExecute_ParallelStageOutcomeIsConjunction(t *testing.T) {
	rec := testutil.NewRecorder()
	o := newTestOrchestrator(
		newTestAgent("tester-001", workflow.CapabilityTesting, nil),
		newTestAgent("deployer-001", workflow.CapabilityDeployment, func(_ context.Context, _ *workflow.Task) (workflow.Payload, error) {
			return nil, errors.New("always broken")
		}),
	)
	rec.BindAll(o.Bus())

	wf := testutil.NewGraph("demo").
		Stage("fanout", workflow.WithParallel(), workflow.WithFailureStrategy(workflow.StopOnError)).
		Task("ok", workflow.CapabilityTesting).
		Task("bad", workflow.CapabilityDeployment).
		Build(t)

	err := o.Execute(context.Background(), wf)

	var stageErr *StageFailureError
	assert.ErrorAs(t, err, &stageErr)

	// The sibling already in flight ran to completion despite the failure.
	ok, _ := wf.TaskByID("ok")
	assert.Equal(t, workflow.TaskStatusCompleted, ok.Status)
	assert.False(t, rec.OfType(event.TypeStageCompleted)[0].Payload.(event.StageCompleted).Success)
}

func TestExecute_TaskTimeoutFeedsRetryPath(t *testing.T) {
	o := newTestOrchestrator(
		newTestAgent("tester-001", workflow.CapabilityTesting, func(ctx context.Context, _ *workflow.Task) (workflow.Payload, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	)

	wf := testutil.NewGraph("demo").
		Stage("only", workflow.WithFailureStrategy(workflow.ContinueOnError)).
		Task("slow", workflow.CapabilityTesting,
			workflow.WithTimeout(10*time.Millisecond),
			workflow.WithRetryPolicy(testutil.Retry(2))).
		Build(t)

	assert.NoError(t, o.Execute(context.Background(), wf))

	task, _ := wf.TaskByID("slow")
	assert.Equal(t, workflow.TaskStatusFailed, task.Status)
	assert.Equal(t, 2, task.Attempts)
	assert.Contains(t, task.Error, "timed out after")
}

func TestExecute_AgentUnavailableIsATaskFailure(t *testing.T) {
	rec := testutil.NewRecorder()
	o := New() // no agents registered at all
	rec.BindAll(o.Bus())

	wf := testutil.NewGraph("demo").
		Stage("only", workflow.WithFailureStrategy(workflow.ContinueOnError)).
		Task("orphan", workflow.CapabilityTesting, workflow.WithRetryPolicy(testutil.Retry(2))).
		Build(t)

	assert.NoError(t, o.Execute(context.Background(), wf))

	task, _ := wf.TaskByID("orphan")
	assert.Equal(t, workflow.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "no available agent")

	// One agent.unavailable event per dispatch attempt.
	assert.Len(t, rec.OfType(event.TypeAgentUnavailable), 2)

	failed := rec.OfType(event.TypeTaskFailed)[0].Payload.(event.TaskFailed)
	assert.Equal(t, 2, failed.Attempts)
}

func TestExecute_AgentPanicIsAnAttemptFailure(t *testing.T) {
	o := newTestOrchestrator(
		newTestAgent("tester-001", workflow.CapabilityTesting, func(_ context.Context, _ *workflow.Task) (workflow.Payload, error) {
			panic("agent exploded")
		}),
	)

	wf := testutil.NewGraph("demo").
		Stage("only", workflow.WithFailureStrategy(workflow.ContinueOnError)).
		Task("t1", workflow.CapabilityTesting).
		Build(t)

	assert.NotPanics(t, func() {
		assert.NoError(t, o.Execute(context.Background(), wf))
	})

	task, _ := wf.TaskByID("t1")
	assert.Equal(t, workflow.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "agent panic")
}

func TestExecute_PauseAndResumeBetweenStages(t *testing.T) {
	o := newTestOrchestrator(newTestAgent("tester-001", workflow.CapabilityTesting, nil))

	var wfID string
	pauser := newTestAgent("pauser-001", workflow.CapabilityDeployment, func(_ context.Context, _ *workflow.Task) (workflow.Payload, error) {
		o.Pause(wfID)
		return workflow.Payload{"status": "success"}, nil
	})
	o.RegisterAgent(pauser)

	wf := testutil.NewGraph("demo").
		Stage("first").
		Task("pause-trigger", workflow.CapabilityDeployment).
		Stage("second").
		Task("after", workflow.CapabilityTesting).
		Build(t)
	wfID = wf.ID

	done := make(chan error, 1)
	go func() { done <- o.Execute(context.Background(), wf) }()

	// The pause lands mid-run; the loop must hold before the second stage.
	assert.Eventually(t, func() bool {
		st, err := o.Status(wfID)
		return err == nil && st.Status == workflow.StatusPaused
	}, time.Second, 5*time.Millisecond)

	after, _ := wf.TaskByID("after")
	assert.Equal(t, workflow.TaskStatusPending, after.Status)

	o.Resume(wfID)

	assert.NoError(t, <-done)
	assert.Equal(t, workflow.StatusCompleted, wf.Status)
	assert.Equal(t, workflow.TaskStatusCompleted, after.Status)
}

func TestExecute_CancelBetweenStages(t *testing.T) {
	o := newTestOrchestrator(newTestAgent("tester-001", workflow.CapabilityTesting, nil))

	var wfID string
	canceller := newTestAgent("canceller-001", workflow.CapabilityDeployment, func(_ context.Context, _ *workflow.Task) (workflow.Payload, error) {
		o.Cancel(wfID)
		return workflow.Payload{"status": "success"}, nil
	})
	o.RegisterAgent(canceller)

	wf := testutil.NewGraph("demo").
		Stage("first").
		Task("cancel-trigger", workflow.CapabilityDeployment).
		Stage("second").
		Task("after", workflow.CapabilityTesting).
		Build(t)
	wfID = wf.ID

	err := o.Execute(context.Background(), wf)
	assert.ErrorIs(t, err, ErrCancelled)

	assert.Equal(t, workflow.StatusCancelled, wf.Status)
	assert.NotNil(t, wf.CompletedAt)

	after, _ := wf.TaskByID("after")
	assert.Equal(t, workflow.TaskStatusPending, after.Status)
	assert.Equal(t, 0, after.Attempts)
}

func TestExecute_ContextCancellationMapsToCancelled(t *testing.T) {
	o := newTestOrchestrator(
		newTestAgent("tester-001", workflow.CapabilityTesting, func(ctx context.Context, _ *workflow.Task) (workflow.Payload, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	)

	wf := testutil.NewGraph("demo").
		Stage("only").
		Task("slow", workflow.CapabilityTesting, workflow.WithTimeout(time.Minute)).
		Build(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := o.Execute(ctx, wf)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, workflow.StatusCancelled, wf.Status)
}

func TestExecute_RetryExhaustedErrorWrapsLastFailure(t *testing.T) {
	sentinel := errors.New("root cause")

	o := newTestOrchestrator(
		newTestAgent("tester-001", workflow.CapabilityTesting, func(_ context.Context, _ *workflow.Task) (workflow.Payload, error) {
			return nil, sentinel
		}),
	)

	wf := testutil.NewGraph("demo").
		Stage("only", workflow.WithFailureStrategy(workflow.StopOnError)).
		Task("t1", workflow.CapabilityTesting, workflow.WithRetryPolicy(testutil.Retry(2))).
		Build(t)

	err := o.Execute(context.Background(), wf)

	// The run error is the stage failure; the task carries the exhausted
	// retry chain on its recorded error message.
	var stageErr *StageFailureError
	assert.ErrorAs(t, err, &stageErr)

	task, _ := wf.TaskByID("t1")
	assert.Contains(t, task.Error, "root cause")
}
