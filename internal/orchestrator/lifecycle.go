package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/parkerduff/squadron/pkg/models"
)

// TransitionToReview moves an execution from its current state to Reviewing.
// Called externally when the assignee reports the work ready for review.
func (o *Orchestrator) TransitionToReview(ctx context.Context, executionID, reason string) error {
	return o.phaseTransition(ctx, executionID, models.StateReviewing, reason)
}

// TransitionToTesting moves an execution from its current state to Testing.
func (o *Orchestrator) TransitionToTesting(ctx context.Context, executionID, reason string) error {
	return o.phaseTransition(ctx, executionID, models.StateTesting, reason)
}

func (o *Orchestrator) phaseTransition(ctx context.Context, executionID string, to models.WorkflowState, reason string) error {
	exec, err := o.db.GetExecution(executionID)
	if err != nil {
		return err
	}
	if err := o.engine.Transition(ctx, executionID, exec.State, to, reason, nil); err != nil {
		return err
	}
	o.emitEvent(Event{Type: EventStateChanged, ExecutionID: executionID, TaskID: exec.TaskID,
		State: to, Message: reason})
	return nil
}

// CompleteTask transitions an execution to Completed and then finalizes the
// originating task with the result payload. Finalization runs only after
// the transition succeeds; a rejected transition leaves the task untouched.
func (o *Orchestrator) CompleteTask(ctx context.Context, executionID, result string) error {
	exec, err := o.db.GetExecution(executionID)
	if err != nil {
		return err
	}

	if err := o.engine.Transition(ctx, executionID, exec.State, models.StateCompleted, "task completed", nil); err != nil {
		return err
	}

	now := time.Now()
	if err := o.db.FinalizeTask(exec.TaskID, models.TaskStatusCompleted, result, "", now); err != nil {
		// The state change stands; finalization is a follow-up write.
		log.Printf("[orchestrator] warning: failed to finalize task %s: %v", exec.TaskID, err)
	}
	exec.State = models.StateCompleted
	exec.CompletedAt = &now
	if err := o.db.UpdateExecution(exec); err != nil {
		log.Printf("[orchestrator] warning: failed to stamp completion on execution %s: %v", executionID, err)
	}

	o.emitEvent(Event{Type: EventExecutionCompleted, ExecutionID: executionID, TaskID: exec.TaskID,
		State: models.StateCompleted, Message: result})
	log.Printf("[orchestrator] execution %s completed", executionID)
	return nil
}

// FailTask transitions an execution to Failed and finalizes the originating
// task with the error. Like CompleteTask, finalization never runs if the
// transition is rejected.
func (o *Orchestrator) FailTask(ctx context.Context, executionID, errMsg string, metadata map[string]any) error {
	exec, err := o.db.GetExecution(executionID)
	if err != nil {
		return err
	}

	if err := o.engine.Transition(ctx, executionID, exec.State, models.StateFailed, errMsg, metadata); err != nil {
		return err
	}

	now := time.Now()
	if err := o.db.FinalizeTask(exec.TaskID, models.TaskStatusFailed, "", errMsg, now); err != nil {
		log.Printf("[orchestrator] warning: failed to finalize task %s: %v", exec.TaskID, err)
	}
	exec.State = models.StateFailed
	exec.Error = errMsg
	exec.CompletedAt = &now
	if err := o.db.UpdateExecution(exec); err != nil {
		log.Printf("[orchestrator] warning: failed to stamp failure on execution %s: %v", executionID, err)
	}

	o.emitEvent(Event{Type: EventExecutionFailed, ExecutionID: executionID, TaskID: exec.TaskID,
		State: models.StateFailed, Message: errMsg})
	log.Printf("[orchestrator] execution %s failed: %s", executionID, errMsg)
	return nil
}
