package orchestrator

import (
	"time"

	"github.com/parkerduff/squadron/pkg/models"
)

// EventType identifies an orchestrator event.
type EventType string

const (
	// EventExecutionStarted indicates a task execution has begun.
	EventExecutionStarted EventType = "execution_started"
	// EventStateChanged indicates an execution moved to a new state.
	EventStateChanged EventType = "state_changed"
	// EventTaskDelegated indicates a task assignment was sent to a member.
	EventTaskDelegated EventType = "task_delegated"
	// EventExecutionBlocked indicates an execution hit a blocker.
	EventExecutionBlocked EventType = "execution_blocked"
	// EventBlockerResolved indicates a blocked execution resumed.
	EventBlockerResolved EventType = "blocker_resolved"
	// EventEscalationRaised indicates a human was asked to intervene.
	EventEscalationRaised EventType = "escalation_raised"
	// EventExecutionCompleted indicates an execution finished successfully.
	EventExecutionCompleted EventType = "execution_completed"
	// EventExecutionFailed indicates an execution failed.
	EventExecutionFailed EventType = "execution_failed"
)

// Event is emitted by the orchestrator for monitors and the TUI.
type Event struct {
	// Type is the event type.
	Type EventType
	// ExecutionID identifies the execution the event concerns.
	ExecutionID string
	// TaskID identifies the originating task.
	TaskID string
	// State is the execution's state after the event, when relevant.
	State models.WorkflowState
	// Message is a human-readable description.
	Message string
	// Timestamp is when the event was emitted.
	Timestamp time.Time
}

// Events returns the orchestrator's event channel. Events are a monitoring
// aid, not a durability mechanism: they are dropped when no consumer keeps
// up.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

func (o *Orchestrator) emitEvent(event Event) {
	event.Timestamp = time.Now()
	select {
	case o.events <- event:
	default:
		// Channel full, drop event to avoid blocking
	}
}
