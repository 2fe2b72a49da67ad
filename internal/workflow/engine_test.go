package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/parkerduff/squadron/internal/state"
	"github.com/parkerduff/squadron/pkg/models"
)

func newTestDB(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestExecution(t *testing.T, db *state.DB, initial models.WorkflowState) string {
	t.Helper()
	task := &models.Task{ID: "task-" + string(initial), Title: "test task", Status: models.TaskStatusOpen, CreatedAt: time.Now()}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	exec := &models.TaskExecution{
		ID:        "exec-" + string(initial),
		TaskID:    task.ID,
		SquadID:   "squad-1",
		State:     initial,
		StartedAt: time.Now(),
	}
	if err := db.CreateExecution(exec); err != nil {
		t.Fatalf("create execution: %v", err)
	}
	return exec.ID
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name  string
		from  models.WorkflowState
		to    models.WorkflowState
		valid bool
	}{
		{"pending to analyzing", models.StatePending, models.StateAnalyzing, true},
		{"pending to completed", models.StatePending, models.StateCompleted, false},
		{"pending to planning skips analyzing", models.StatePending, models.StatePlanning, false},
		{"analyzing to planning", models.StateAnalyzing, models.StatePlanning, true},
		{"in progress to reviewing", models.StateInProgress, models.StateReviewing, true},
		{"in progress to testing", models.StateInProgress, models.StateTesting, true},
		{"reviewing back to in progress", models.StateReviewing, models.StateInProgress, true},
		{"testing to completed", models.StateTesting, models.StateCompleted, true},
		{"testing back to in progress", models.StateTesting, models.StateInProgress, true},
		{"blocked to in progress", models.StateBlocked, models.StateInProgress, true},
		{"blocked to completed", models.StateBlocked, models.StateCompleted, false},
		{"any active to failed", models.StateDelegated, models.StateFailed, true},
		{"completed is terminal", models.StateCompleted, models.StateAnalyzing, false},
		{"failed is terminal", models.StateFailed, models.StatePending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidTransition(tt.from, tt.to); got != tt.valid {
				t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.valid)
			}
		})
	}
}

func TestTerminalStatesHaveNoTransitions(t *testing.T) {
	for _, s := range []models.WorkflowState{models.StateCompleted, models.StateFailed} {
		if got := ValidTransitions(s); len(got) != 0 {
			t.Errorf("ValidTransitions(%s) = %v, want empty", s, got)
		}
	}
}

func TestTransitionRejectsInvalidMoveWithoutMutation(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	execID := newTestExecution(t, db, models.StatePending)

	err := engine.Transition(context.Background(), execID, models.StatePending, models.StateCompleted, "", nil)
	var invalidErr *InvalidTransitionError
	if !errors.As(err, &invalidErr) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalidErr.From != models.StatePending || invalidErr.To != models.StateCompleted {
		t.Errorf("error reports %s -> %s, want pending -> completed", invalidErr.From, invalidErr.To)
	}
	if len(invalidErr.Valid) == 0 {
		t.Error("error should list the legal next states")
	}

	exec, err := db.GetExecution(execID)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if exec.State != models.StatePending {
		t.Errorf("state mutated to %s after rejected transition", exec.State)
	}
	transitions, err := db.GetTransitions(execID)
	if err != nil {
		t.Fatalf("get transitions: %v", err)
	}
	if len(transitions) != 0 {
		t.Errorf("rejected transition left %d log entries", len(transitions))
	}
}

func TestTransitionPersistsStateAndLog(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	execID := newTestExecution(t, db, models.StatePending)

	if err := engine.Transition(context.Background(), execID, models.StatePending, models.StateAnalyzing, "kickoff", nil); err != nil {
		t.Fatalf("transition: %v", err)
	}

	exec, err := db.GetExecution(execID)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if exec.State != models.StateAnalyzing {
		t.Errorf("state = %s, want analyzing", exec.State)
	}

	transitions, err := db.GetTransitions(execID)
	if err != nil {
		t.Fatalf("get transitions: %v", err)
	}
	if len(transitions) != 1 {
		t.Fatalf("got %d transitions, want 1", len(transitions))
	}
	if transitions[0].From != models.StatePending || transitions[0].To != models.StateAnalyzing {
		t.Errorf("logged %s -> %s, want pending -> analyzing", transitions[0].From, transitions[0].To)
	}
	if transitions[0].Reason != "kickoff" {
		t.Errorf("reason = %q, want kickoff", transitions[0].Reason)
	}
}

func TestTransitionStaleFromState(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	execID := newTestExecution(t, db, models.StateAnalyzing)

	// Claim the execution is still pending; the store knows better.
	err := engine.Transition(context.Background(), execID, models.StatePending, models.StateAnalyzing, "", nil)
	var invalidErr *InvalidTransitionError
	if !errors.As(err, &invalidErr) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalidErr.From != models.StateAnalyzing {
		t.Errorf("error reports actual state %s, want analyzing", invalidErr.From)
	}
}

func TestTransitionRunsEntryAction(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	execID := newTestExecution(t, db, models.StatePending)

	// The Analyzing action chains the next transition itself.
	var chained bool
	engine.RegisterStateAction(models.StateAnalyzing, func(ctx context.Context, id string, _ map[string]any) error {
		chained = true
		return engine.Transition(ctx, id, models.StateAnalyzing, models.StatePlanning, "chained", nil)
	})

	if err := engine.Transition(context.Background(), execID, models.StatePending, models.StateAnalyzing, "", nil); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !chained {
		t.Fatal("entry action did not run")
	}

	exec, err := db.GetExecution(execID)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if exec.State != models.StatePlanning {
		t.Errorf("state = %s, want planning after chained action", exec.State)
	}
}

func TestTransitionWrapsActionError(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	execID := newTestExecution(t, db, models.StatePending)

	boom := errors.New("analysis exploded")
	engine.RegisterStateAction(models.StateAnalyzing, func(context.Context, string, map[string]any) error {
		return boom
	})

	err := engine.Transition(context.Background(), execID, models.StatePending, models.StateAnalyzing, "", nil)
	var cbErr *CallbackError
	if !errors.As(err, &cbErr) {
		t.Fatalf("expected CallbackError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("CallbackError should wrap the original error")
	}

	// The state change itself stands; only the action failed.
	exec, _ := db.GetExecution(execID)
	if exec.State != models.StateAnalyzing {
		t.Errorf("state = %s, want analyzing", exec.State)
	}
}

func TestTransitionUnknownExecution(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	err := engine.Transition(context.Background(), "missing", models.StatePending, models.StateAnalyzing, "", nil)
	if !state.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		state    models.WorkflowState
		percent  int
		terminal bool
		blocked  bool
	}{
		{models.StatePending, 0, false, false},
		{models.StateAnalyzing, 14, false, false},
		{models.StatePlanning, 28, false, false},
		{models.StateDelegated, 42, false, false},
		{models.StateInProgress, 57, false, false},
		{models.StateReviewing, 71, false, false},
		{models.StateTesting, 85, false, false},
		{models.StateCompleted, 100, true, false},
		{models.StateFailed, 0, true, false},
		{models.StateBlocked, 50, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			p := Progress(tt.state)
			if p.Percent != tt.percent {
				t.Errorf("percent = %d, want %d", p.Percent, tt.percent)
			}
			if p.IsTerminal != tt.terminal {
				t.Errorf("terminal = %v, want %v", p.IsTerminal, tt.terminal)
			}
			if p.IsBlocked != tt.blocked {
				t.Errorf("blocked = %v, want %v", p.IsBlocked, tt.blocked)
			}
		})
	}
}

func TestComputeMetrics(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	transitions := []models.Transition{
		{From: models.StatePending, To: models.StateAnalyzing, Timestamp: base},
		{From: models.StateAnalyzing, To: models.StatePlanning, Timestamp: base.Add(2 * time.Minute)},
		{From: models.StatePlanning, To: models.StateDelegated, Timestamp: base.Add(5 * time.Minute)},
	}

	m := ComputeMetrics(transitions)
	if m.TransitionCount != 3 {
		t.Errorf("count = %d, want 3", m.TransitionCount)
	}
	if m.TotalDuration != 5*time.Minute {
		t.Errorf("total = %s, want 5m", m.TotalDuration)
	}
	if m.TimePerState[models.StateAnalyzing] != 2*time.Minute {
		t.Errorf("analyzing time = %s, want 2m", m.TimePerState[models.StateAnalyzing])
	}
	if m.TimePerState[models.StatePlanning] != 3*time.Minute {
		t.Errorf("planning time = %s, want 3m", m.TimePerState[models.StatePlanning])
	}

	empty := ComputeMetrics(nil)
	if empty.TotalDuration != 0 || empty.TransitionCount != 0 {
		t.Errorf("empty log should yield zero metrics, got %+v", empty)
	}
}
