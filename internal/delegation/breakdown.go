package delegation

import (
	"fmt"

	"github.com/parkerduff/squadron/pkg/models"
)

// BreakdownTask decomposes a task into an ordered, dependency-aware subtask
// list. Planning always comes first with no dependencies, implementation
// subtasks depend on planning, testing depends on whatever implementation
// exists, and a trailing code review depends on everything before it. Each
// subtask only ever depends on subtasks emitted earlier, so the graph is
// acyclic by construction.
func BreakdownTask(task *models.Task, req models.TaskRequirements) []models.Subtask {
	var subtasks []models.Subtask

	subtasks = append(subtasks, models.Subtask{
		Title:       fmt.Sprintf("Plan: %s", task.Title),
		Description: "Establish the implementation approach, identify risks, and agree on interfaces.",
		Type:        SubtaskPlanning,
		Priority:    1,
	})

	var implTypes []string

	if req.NeedsBackend {
		subtasks = append(subtasks, models.Subtask{
			Title:       fmt.Sprintf("Backend: %s", task.Title),
			Description: "Implement the server-side changes, including data access and API surface.",
			Type:        SubtaskBackendImpl,
			Priority:    2,
			DependsOn:   []string{SubtaskPlanning},
		})
		implTypes = append(implTypes, SubtaskBackendImpl)
	}

	if req.NeedsFrontend {
		deps := []string{SubtaskPlanning}
		if req.NeedsBackend {
			// Frontend integrates against the backend surface when both
			// areas are in play.
			deps = append(deps, SubtaskBackendImpl)
		}
		subtasks = append(subtasks, models.Subtask{
			Title:       fmt.Sprintf("Frontend: %s", task.Title),
			Description: "Implement the client-side changes and wire them to the backend.",
			Type:        SubtaskFrontendImpl,
			Priority:    3,
			DependsOn:   deps,
		})
		implTypes = append(implTypes, SubtaskFrontendImpl)
	}

	testingEmitted := false
	if req.NeedsTesting || req.Complexity >= 5 {
		deps := implTypes
		if len(deps) == 0 {
			deps = []string{SubtaskPlanning}
		}
		subtasks = append(subtasks, models.Subtask{
			Title:       fmt.Sprintf("Test: %s", task.Title),
			Description: "Write and run tests covering the acceptance criteria.",
			Type:        SubtaskTesting,
			Priority:    4,
			DependsOn:   append([]string(nil), deps...),
		})
		testingEmitted = true
	}

	reviewDeps := append([]string(nil), implTypes...)
	if testingEmitted {
		reviewDeps = append(reviewDeps, SubtaskTesting)
	}
	if len(reviewDeps) == 0 {
		reviewDeps = []string{SubtaskPlanning}
	}
	subtasks = append(subtasks, models.Subtask{
		Title:       fmt.Sprintf("Review: %s", task.Title),
		Description: "Review the combined changes before completion.",
		Type:        SubtaskCodeReview,
		Priority:    5,
		DependsOn:   reviewDeps,
	})

	return subtasks
}
