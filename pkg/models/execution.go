package models

import "time"

// LogEntry is one line in a task execution's append-only log.
type LogEntry struct {
	// Timestamp is when the entry was appended.
	Timestamp time.Time `json:"timestamp"`
	// Level is the severity of the entry (info, warn, error).
	Level string `json:"level"`
	// Message is the human-readable log line.
	Message string `json:"message"`
	// Metadata carries structured context for the entry, if any.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Transition records one workflow state change for metrics and audit.
type Transition struct {
	// From is the state the execution left.
	From WorkflowState `json:"from"`
	// To is the state the execution entered.
	To WorkflowState `json:"to"`
	// Reason is why the transition happened.
	Reason string `json:"reason,omitempty"`
	// Timestamp is when the transition was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// TaskExecution represents one in-flight unit of work moving through the workflow.
type TaskExecution struct {
	// ID is the unique identifier for this execution.
	ID string `json:"id"`
	// TaskID references the originating task.
	TaskID string `json:"task_id"`
	// SquadID references the squad working on the task.
	SquadID string `json:"squad_id"`
	// State is the current workflow state.
	State WorkflowState `json:"state"`
	// Metadata accumulates results, errors, and delegation decisions.
	Metadata map[string]any `json:"metadata,omitempty"`
	// Error holds the failure message when State is failed.
	Error string `json:"error,omitempty"`
	// StartedAt is when orchestration began.
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when the execution reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Progress is a human-readable snapshot of how far an execution has come.
type Progress struct {
	// Percent is a monotonically increasing heuristic, not a precise ETA.
	Percent int `json:"percent"`
	// IsTerminal is true for completed and failed executions.
	IsTerminal bool `json:"is_terminal"`
	// IsBlocked is true while the execution sits in the blocked state.
	IsBlocked bool `json:"is_blocked"`
}

// WorkflowMetrics summarizes a transition log.
type WorkflowMetrics struct {
	// TransitionCount is the number of recorded transitions.
	TransitionCount int `json:"transition_count"`
	// TimePerState maps each visited state to wall-clock time spent in it.
	TimePerState map[WorkflowState]time.Duration `json:"time_per_state"`
	// TotalDuration is the first-to-last timestamp delta.
	TotalDuration time.Duration `json:"total_duration"`
	// AvgPerTransition is TotalDuration divided by TransitionCount.
	AvgPerTransition time.Duration `json:"avg_per_transition"`
}
