package models

// WorkflowState represents where a task execution sits in its lifecycle.
type WorkflowState string

const (
	// StatePending indicates the execution has been created but not started.
	StatePending WorkflowState = "pending"
	// StateAnalyzing indicates requirements are being analyzed.
	StateAnalyzing WorkflowState = "analyzing"
	// StatePlanning indicates the task is being broken down into subtasks.
	StatePlanning WorkflowState = "planning"
	// StateDelegated indicates work has been assigned to squad members.
	StateDelegated WorkflowState = "delegated"
	// StateInProgress indicates squad members are actively working.
	StateInProgress WorkflowState = "in_progress"
	// StateReviewing indicates the work is under code review.
	StateReviewing WorkflowState = "reviewing"
	// StateTesting indicates the work is being tested.
	StateTesting WorkflowState = "testing"
	// StateBlocked indicates the execution cannot proceed until a blocker is resolved.
	StateBlocked WorkflowState = "blocked"
	// StateCompleted indicates the execution finished successfully. Terminal.
	StateCompleted WorkflowState = "completed"
	// StateFailed indicates the execution failed. Terminal.
	StateFailed WorkflowState = "failed"
)

// Valid returns true if the state is a known value.
func (s WorkflowState) Valid() bool {
	switch s {
	case StatePending, StateAnalyzing, StatePlanning, StateDelegated,
		StateInProgress, StateReviewing, StateTesting, StateBlocked,
		StateCompleted, StateFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the state has no outgoing transitions.
func (s WorkflowState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
