package models

import "time"

// TaskStatus represents the current state of an originating task.
type TaskStatus string

const (
	// TaskStatusOpen indicates the task has not been picked up.
	TaskStatusOpen TaskStatus = "open"
	// TaskStatusInProgress indicates an execution is working the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusOpen, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Task is a unit of work submitted to a squad.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// AcceptanceCriteria lists the criteria for task completion.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Result holds the final result payload once completed.
	Result string `json:"result,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task was completed, if applicable.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskRequirements is derived from a task by the delegation engine.
// It is never persisted; every analysis is recomputed from the task text.
type TaskRequirements struct {
	// TaskType classifies the task (feature, bug_fix, refactoring, ...).
	TaskType string `json:"task_type"`
	// Skills lists inferred skill tags.
	Skills []string `json:"skills"`
	// Complexity is an integer score in [1,10].
	Complexity int `json:"complexity"`
	// NeedsFrontend is true when frontend work is involved.
	NeedsFrontend bool `json:"needs_frontend"`
	// NeedsBackend is true when backend work is involved.
	NeedsBackend bool `json:"needs_backend"`
	// NeedsTesting is true when explicit testing work is involved.
	NeedsTesting bool `json:"needs_testing"`
	// NeedsDesign is true when design work is involved.
	NeedsDesign bool `json:"needs_design"`
	// NeedsDatabase is true when database work is involved.
	NeedsDatabase bool `json:"needs_database"`
	// NeedsDevOps is true when infrastructure work is involved.
	NeedsDevOps bool `json:"needs_devops"`
	// EstimatedSubtasks is the expected subtask count for breakdown.
	EstimatedSubtasks int `json:"estimated_subtasks"`
}

// Subtask is one node in the breakdown of a composite task.
type Subtask struct {
	// Title is the short description of the subtask.
	Title string `json:"title"`
	// Description provides detail for the assignee.
	Description string `json:"description"`
	// Type tags the subtask (planning, backend_implementation, ...).
	Type string `json:"type"`
	// Priority orders subtasks of the same readiness (lower is earlier).
	Priority int `json:"priority"`
	// DependsOn lists subtask type tags that must complete first.
	// The list only ever references subtasks emitted earlier, so the
	// resulting graph is acyclic by construction.
	DependsOn []string `json:"depends_on,omitempty"`
}
