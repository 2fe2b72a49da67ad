package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/parkerduff/squadron/internal/bus"
	"github.com/parkerduff/squadron/internal/delegation"
	"github.com/parkerduff/squadron/internal/reasoner"
	"github.com/parkerduff/squadron/internal/state"
	"github.com/parkerduff/squadron/internal/workflow"
	"github.com/parkerduff/squadron/pkg/models"
)

// dbRoster adapts the state store to the delegation roster interface.
type dbRoster struct {
	db *state.DB
}

func (r *dbRoster) Members(squadID string, activeOnly bool) ([]*models.SquadMember, error) {
	return r.db.ListMembers(squadID, activeOnly)
}

type fixture struct {
	orch *Orchestrator
	db   *state.DB
	bus  *bus.InMemoryBus
}

func newFixture(t *testing.T, members ...*models.SquadMember) *fixture {
	t.Helper()

	db, err := state.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, m := range members {
		if err := db.UpsertMember(m); err != nil {
			t.Fatalf("seed member %s: %v", m.ID, err)
		}
	}

	b := bus.NewInMemoryBus()
	engine := workflow.NewEngine(db)
	deleg := delegation.NewEngine(&dbRoster{db: db})
	orch := New(db, engine, deleg, b, reasoner.NewStatic("the task needs a backend endpoint and tests"))

	return &fixture{orch: orch, db: db, bus: b}
}

func backendMember() *models.SquadMember {
	return &models.SquadMember{
		ID: "backend", SquadID: "squad-1", Name: "Ben",
		Role: models.RoleBackendDeveloper, Specialization: "api", Active: true,
	}
}

func sampleTask() *models.Task {
	return &models.Task{
		Title:       "Add password reset endpoint",
		Description: "New api endpoint with database migration for reset tokens",
	}
}

func TestExecuteHappyPathReachesInProgress(t *testing.T) {
	f := newFixture(t, backendMember())
	ctx := context.Background()

	execID, err := f.orch.Execute(ctx, sampleTask(), "squad-1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	exec, err := f.db.GetExecution(execID)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if exec.State != models.StateInProgress {
		t.Fatalf("state = %s, want in_progress", exec.State)
	}

	// The assignee received the task on the bus.
	msgs, err := f.bus.Messages("backend", bus.FetchOptions{Type: models.MessageTypeTaskAssignment})
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("backend got %d assignments, want 1", len(msgs))
	}
	if msgs[0].From != "orchestrator" || msgs[0].ExecutionID != execID {
		t.Errorf("assignment = %+v", msgs[0])
	}
	if msgs[0].Metadata["task_id"] != exec.TaskID {
		t.Errorf("assignment metadata = %v", msgs[0].Metadata)
	}

	// The originating task is marked in progress.
	task, _ := f.db.GetTask(exec.TaskID)
	if task.Status != models.TaskStatusInProgress {
		t.Errorf("task status = %s, want in_progress", task.Status)
	}

	// Every intermediate hop is on the transition log.
	transitions, _ := f.db.GetTransitions(execID)
	wantHops := [][2]models.WorkflowState{
		{models.StatePending, models.StateAnalyzing},
		{models.StateAnalyzing, models.StatePlanning},
		{models.StatePlanning, models.StateDelegated},
		{models.StateDelegated, models.StateInProgress},
	}
	if len(transitions) != len(wantHops) {
		t.Fatalf("got %d transitions, want %d", len(transitions), len(wantHops))
	}
	for i, hop := range wantHops {
		if transitions[i].From != hop[0] || transitions[i].To != hop[1] {
			t.Errorf("hop %d = %s -> %s, want %s -> %s", i,
				transitions[i].From, transitions[i].To, hop[0], hop[1])
		}
	}
}

func TestMonitorRunningExecution(t *testing.T) {
	f := newFixture(t, backendMember())
	execID, err := f.orch.Execute(context.Background(), sampleTask(), "squad-1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	snap, err := f.orch.Monitor(execID)
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if snap.State != models.StateInProgress {
		t.Errorf("state = %s", snap.State)
	}
	if snap.Progress.IsTerminal || snap.Progress.IsBlocked {
		t.Errorf("running execution reported terminal=%v blocked=%v", snap.Progress.IsTerminal, snap.Progress.IsBlocked)
	}
	if snap.Progress.Percent <= 0 || snap.Progress.Percent >= 100 {
		t.Errorf("percent = %d, want strictly between 0 and 100", snap.Progress.Percent)
	}
	if snap.Metrics.TransitionCount != 4 {
		t.Errorf("transition count = %d, want 4", snap.Metrics.TransitionCount)
	}
}

func TestMonitorUnknownExecution(t *testing.T) {
	f := newFixture(t)
	if _, err := f.orch.Monitor("ghost"); !state.IsNotFound(err) {
		t.Errorf("got %v, want NotFoundError", err)
	}
}

func TestExecuteBlocksWithoutEligibleMember(t *testing.T) {
	f := newFixture(t) // empty roster
	execID, err := f.orch.Execute(context.Background(), sampleTask(), "squad-1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	exec, _ := f.db.GetExecution(execID)
	if exec.State != models.StateBlocked {
		t.Fatalf("state = %s, want blocked", exec.State)
	}

	snap, _ := f.orch.Monitor(execID)
	if !snap.Progress.IsBlocked {
		t.Error("monitor should report blocked")
	}
	if snap.Progress.Percent != 50 {
		t.Errorf("blocked percent = %d, want 50", snap.Progress.Percent)
	}
}

func TestBlockerRoundTrip(t *testing.T) {
	f := newFixture(t, backendMember())
	ctx := context.Background()
	execID, err := f.orch.Execute(ctx, sampleTask(), "squad-1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if err := f.orch.HandleBlocker(ctx, execID, "waiting on credentials", nil); err != nil {
		t.Fatalf("handle blocker: %v", err)
	}
	exec, _ := f.db.GetExecution(execID)
	if exec.State != models.StateBlocked {
		t.Fatalf("state = %s, want blocked", exec.State)
	}

	if err := f.orch.ResolveBlocker(ctx, execID, "credentials provisioned", models.StateInProgress); err != nil {
		t.Fatalf("resolve blocker: %v", err)
	}
	exec, _ = f.db.GetExecution(execID)
	if exec.State != models.StateInProgress {
		t.Fatalf("state = %s, want in_progress", exec.State)
	}

	// Resolving a blocker that is no longer there must be rejected.
	err = f.orch.ResolveBlocker(ctx, execID, "again", models.StateInProgress)
	var invalid *workflow.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want InvalidTransitionError", err)
	}
}

func TestCompleteTaskFinalizes(t *testing.T) {
	f := newFixture(t, backendMember())
	ctx := context.Background()
	execID, err := f.orch.Execute(ctx, sampleTask(), "squad-1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if err := f.orch.TransitionToReview(ctx, execID, "work ready"); err != nil {
		t.Fatalf("to review: %v", err)
	}
	if err := f.orch.TransitionToTesting(ctx, execID, "review passed"); err != nil {
		t.Fatalf("to testing: %v", err)
	}
	if err := f.orch.CompleteTask(ctx, execID, "endpoint shipped"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	exec, _ := f.db.GetExecution(execID)
	if exec.State != models.StateCompleted {
		t.Errorf("state = %s, want completed", exec.State)
	}
	if exec.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}

	task, _ := f.db.GetTask(exec.TaskID)
	if task.Status != models.TaskStatusCompleted || task.Result != "endpoint shipped" {
		t.Errorf("task = status %s result %q", task.Status, task.Result)
	}

	snap, _ := f.orch.Monitor(execID)
	if !snap.Progress.IsTerminal || snap.Progress.Percent != 100 {
		t.Errorf("progress = %+v, want terminal at 100", snap.Progress)
	}
}

func TestCompleteTaskRejectedLeavesTaskUntouched(t *testing.T) {
	f := newFixture(t, backendMember())
	ctx := context.Background()
	execID, err := f.orch.Execute(ctx, sampleTask(), "squad-1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	// Completion straight from InProgress is not a legal move.
	err = f.orch.CompleteTask(ctx, execID, "premature")
	var invalid *workflow.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want InvalidTransitionError", err)
	}

	exec, _ := f.db.GetExecution(execID)
	if exec.State != models.StateInProgress {
		t.Errorf("state = %s, rejection must not move it", exec.State)
	}
	task, _ := f.db.GetTask(exec.TaskID)
	if task.Status != models.TaskStatusInProgress {
		t.Errorf("task status = %s, rejection must not finalize", task.Status)
	}
	if task.CompletedAt != nil {
		t.Error("task completed_at set on rejected completion")
	}
}

func TestFailTask(t *testing.T) {
	f := newFixture(t, backendMember())
	ctx := context.Background()
	execID, err := f.orch.Execute(ctx, sampleTask(), "squad-1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if err := f.orch.FailTask(ctx, execID, "migration corrupted staging", nil); err != nil {
		t.Fatalf("fail: %v", err)
	}

	exec, _ := f.db.GetExecution(execID)
	if exec.State != models.StateFailed {
		t.Errorf("state = %s, want failed", exec.State)
	}
	if exec.Error != "migration corrupted staging" {
		t.Errorf("error = %q", exec.Error)
	}

	task, _ := f.db.GetTask(exec.TaskID)
	if task.Status != models.TaskStatusFailed {
		t.Errorf("task status = %s, want failed", task.Status)
	}

	snap, _ := f.orch.Monitor(execID)
	if !snap.Progress.IsTerminal || snap.Progress.Percent != 0 {
		t.Errorf("progress = %+v, want terminal at 0", snap.Progress)
	}

	// Terminal executions reject further moves.
	if err := f.orch.HandleBlocker(ctx, execID, "too late", nil); err == nil {
		t.Error("blocking a failed execution should be rejected")
	}
}

func TestEscalateToHuman(t *testing.T) {
	f := newFixture(t, backendMember())
	ctx := context.Background()
	execID, err := f.orch.Execute(ctx, sampleTask(), "squad-1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	esc, err := f.orch.EscalateToHuman(ctx, execID, "stuck on flaky dependency",
		"third retry failed", []string{"retried twice", "pinned version"})
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if esc.ID == "" || esc.ExecutionID != execID {
		t.Errorf("escalation = %+v", esc)
	}

	// Persisted.
	stored, err := f.db.ListEscalations(execID)
	if err != nil {
		t.Fatalf("list escalations: %v", err)
	}
	if len(stored) != 1 || stored[0].Reason != "stuck on flaky dependency" {
		t.Errorf("stored = %v", stored)
	}

	// Broadcast to the squad: the assignee's queue was materialized by the
	// task assignment, so the escalation lands there.
	msgs, _ := f.bus.Messages("backend", bus.FetchOptions{Type: models.MessageTypeEscalation})
	if len(msgs) != 1 {
		t.Errorf("backend got %d escalation broadcasts, want 1", len(msgs))
	}
}

func TestEventsEmittedInOrder(t *testing.T) {
	f := newFixture(t, backendMember())
	execID, err := f.orch.Execute(context.Background(), sampleTask(), "squad-1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	var types []EventType
drain:
	for {
		select {
		case ev := <-f.orch.Events():
			if ev.ExecutionID != execID {
				t.Errorf("event for unexpected execution %s", ev.ExecutionID)
			}
			types = append(types, ev.Type)
		default:
			break drain
		}
	}

	if len(types) == 0 || types[0] != EventExecutionStarted {
		t.Fatalf("events = %v, want execution_started first", types)
	}
	var delegated bool
	for _, typ := range types {
		if typ == EventTaskDelegated {
			delegated = true
		}
	}
	if !delegated {
		t.Errorf("events = %v, want a task_delegated event", types)
	}
}
