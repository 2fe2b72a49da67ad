package workflow

import (
	"fmt"

	"github.com/parkerduff/squadron/pkg/models"
)

// InvalidTransitionError indicates an attempted move not present in the
// transition table. It is always rejected before any mutation.
type InvalidTransitionError struct {
	// From is the state the transition was attempted from.
	From models.WorkflowState
	// To is the requested destination state.
	To models.WorkflowState
	// Valid lists the legal next states from From.
	Valid []models.WorkflowState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s (valid: %v)", e.From, e.To, e.Valid)
}

// CallbackError wraps a failure from a state-entry action. The engine never
// retries these; the orchestrator decides whether to retry or fail.
type CallbackError struct {
	// State is the state whose entry action failed.
	State models.WorkflowState
	// Err is the underlying error.
	Err error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("state action for %s: %v", e.State, e.Err)
}

// Unwrap returns the underlying error.
func (e *CallbackError) Unwrap() error {
	return e.Err
}
