// Package workflow implements the task execution state machine.
// The transition table is the single source of truth for legality; it is
// immutable at runtime and checked before every mutation.
package workflow

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/parkerduff/squadron/internal/state"
	"github.com/parkerduff/squadron/pkg/models"
)

// transitionTable maps each state to its legal next states.
// Every non-terminal state can reach failed, and blocked can return to any
// active state it may have blocked from.
var transitionTable = map[models.WorkflowState][]models.WorkflowState{
	models.StatePending:    {models.StateAnalyzing, models.StateFailed},
	models.StateAnalyzing:  {models.StatePlanning, models.StateBlocked, models.StateFailed},
	models.StatePlanning:   {models.StateDelegated, models.StateBlocked, models.StateFailed},
	models.StateDelegated:  {models.StateInProgress, models.StateBlocked, models.StateFailed},
	models.StateInProgress: {models.StateReviewing, models.StateTesting, models.StateBlocked, models.StateFailed},
	models.StateReviewing:  {models.StateTesting, models.StateInProgress, models.StateBlocked, models.StateFailed},
	models.StateTesting:    {models.StateCompleted, models.StateInProgress, models.StateBlocked, models.StateFailed},
	models.StateBlocked: {
		models.StateAnalyzing, models.StatePlanning, models.StateDelegated,
		models.StateInProgress, models.StateReviewing, models.StateTesting,
		models.StateFailed,
	},
	models.StateCompleted: {},
	models.StateFailed:    {},
}

// happyPath is the nominal forward ordering used for progress estimation.
var happyPath = []models.WorkflowState{
	models.StatePending, models.StateAnalyzing, models.StatePlanning,
	models.StateDelegated, models.StateInProgress, models.StateReviewing,
	models.StateTesting, models.StateCompleted,
}

// stateDescriptions are the human-readable names for each state.
var stateDescriptions = map[models.WorkflowState]string{
	models.StatePending:    "Waiting to start",
	models.StateAnalyzing:  "Analyzing requirements",
	models.StatePlanning:   "Breaking down into subtasks",
	models.StateDelegated:  "Assigned to squad members",
	models.StateInProgress: "Work in progress",
	models.StateReviewing:  "Under code review",
	models.StateTesting:    "Testing",
	models.StateBlocked:    "Blocked, waiting on resolution",
	models.StateCompleted:  "Completed",
	models.StateFailed:     "Failed",
}

// StateAction is a callback executed when an execution enters a state.
// Actions may themselves trigger the next transition; errors propagate to
// the transition caller wrapped in CallbackError.
type StateAction func(ctx context.Context, executionID string, metadata map[string]any) error

// Engine validates and executes workflow transitions against the
// persistence-of-record, and runs registered per-state entry actions.
type Engine struct {
	db *state.DB

	// actionsMu guards actions.
	actionsMu sync.RWMutex
	// actions maps a state to its single registered entry action.
	actions map[models.WorkflowState]StateAction

	// locksMu guards locks.
	locksMu sync.Mutex
	// locks serializes transitions per execution id. Transitions on
	// different executions proceed fully in parallel.
	locks map[string]*sync.Mutex

	metrics *Metrics
}

// NewEngine creates a workflow engine backed by the given database.
func NewEngine(db *state.DB) *Engine {
	return &Engine{
		db:      db,
		actions: make(map[models.WorkflowState]StateAction),
		locks:   make(map[string]*sync.Mutex),
		metrics: defaultMetrics(),
	}
}

// IsValidTransition reports whether from -> to is in the transition table.
func IsValidTransition(from, to models.WorkflowState) bool {
	for _, next := range transitionTable[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidTransitions returns the legal next states from a state.
// Terminal states return an empty slice.
func ValidTransitions(from models.WorkflowState) []models.WorkflowState {
	next := transitionTable[from]
	out := make([]models.WorkflowState, len(next))
	copy(out, next)
	return out
}

// RegisterStateAction registers the entry action for a state.
// At most one action per state; registering again replaces the previous one.
func (e *Engine) RegisterStateAction(s models.WorkflowState, action StateAction) {
	e.actionsMu.Lock()
	defer e.actionsMu.Unlock()
	e.actions[s] = action
}

// Transition moves an execution from one state to another.
//
// The move is validated against the static table before any mutation. On
// success the new state and a log entry describing the move are persisted
// atomically, metadata (if any) is appended as a best-effort audit entry,
// and the destination's entry action (if registered) runs to completion
// before Transition returns. Action errors propagate as CallbackError.
func (e *Engine) Transition(ctx context.Context, executionID string, from, to models.WorkflowState, reason string, metadata map[string]any) error {
	if !IsValidTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to, Valid: ValidTransitions(from)}
	}

	if err := e.applyTransition(executionID, from, to, reason, metadata); err != nil {
		return err
	}

	e.metrics.observeTransition(from, to)

	// The entry action runs outside the per-execution lock: actions chain
	// the next transition themselves, which re-enters Transition for the
	// same execution.
	e.actionsMu.RLock()
	action := e.actions[to]
	e.actionsMu.RUnlock()

	if action != nil {
		if err := action(ctx, executionID, metadata); err != nil {
			return &CallbackError{State: to, Err: err}
		}
	}

	return nil
}

// applyTransition performs the persisted part of a transition under the
// execution's lock.
func (e *Engine) applyTransition(executionID string, from, to models.WorkflowState, reason string, metadata map[string]any) error {
	lock := e.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	if err := e.db.TransitionExecution(executionID, from, to, reason, now); err != nil {
		if err == state.ErrStaleState {
			// The persisted state no longer matches "from": report the
			// attempted move against the actual current state.
			actual := from
			if exec, gerr := e.db.GetExecution(executionID); gerr == nil {
				actual = exec.State
			}
			return &InvalidTransitionError{From: actual, To: to, Valid: ValidTransitions(actual)}
		}
		return err
	}

	// Audit entry for supplied metadata. Best-effort: a failed audit write
	// never unwinds the committed state change.
	if len(metadata) > 0 {
		entry := models.LogEntry{
			Timestamp: now,
			Level:     "info",
			Message:   fmt.Sprintf("transition metadata for %s -> %s", from, to),
			Metadata:  metadata,
		}
		if err := e.db.AppendLog(executionID, entry); err != nil {
			log.Printf("[workflow] warning: failed to append metadata audit log for execution %s: %v", executionID, err)
		}
	}

	return nil
}

// lockFor returns the mutex serializing transitions for an execution.
func (e *Engine) lockFor(executionID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	lock, ok := e.locks[executionID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[executionID] = lock
	}
	return lock
}

// Progress computes the human-readable progress heuristic for a state.
// Completed is 100, failed is 0, blocked is 50 and flagged, everything else
// is its position on the happy path.
func Progress(s models.WorkflowState) models.Progress {
	switch s {
	case models.StateCompleted:
		return models.Progress{Percent: 100, IsTerminal: true}
	case models.StateFailed:
		return models.Progress{Percent: 0, IsTerminal: true}
	case models.StateBlocked:
		return models.Progress{Percent: 50, IsBlocked: true}
	}

	for i, step := range happyPath {
		if step == s {
			return models.Progress{Percent: i * 100 / (len(happyPath) - 1)}
		}
	}
	return models.Progress{}
}

// Describe returns the human-readable description of a state.
func Describe(s models.WorkflowState) string {
	if d, ok := stateDescriptions[s]; ok {
		return d
	}
	return string(s)
}

// ComputeMetrics summarizes a transition log: wall-clock time per state,
// total duration, and average time per transition. Empty and single-entry
// logs yield all-zero metrics.
func ComputeMetrics(transitions []models.Transition) models.WorkflowMetrics {
	m := models.WorkflowMetrics{
		TransitionCount: len(transitions),
		TimePerState:    make(map[models.WorkflowState]time.Duration),
	}
	if len(transitions) < 2 {
		return m
	}

	for i := 0; i < len(transitions)-1; i++ {
		cur := transitions[i]
		next := transitions[i+1]
		m.TimePerState[cur.To] += next.Timestamp.Sub(cur.Timestamp)
	}

	m.TotalDuration = transitions[len(transitions)-1].Timestamp.Sub(transitions[0].Timestamp)
	m.AvgPerTransition = m.TotalDuration / time.Duration(len(transitions))
	return m
}
