package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/parkerduff/squadron/internal/state"
	"github.com/parkerduff/squadron/pkg/models"
)

// HandleBlocker moves an execution from its current state to Blocked,
// recording the blocker description. The move is validated like any other
// transition, so blocking an already-terminal execution fails with
// InvalidTransitionError.
func (o *Orchestrator) HandleBlocker(ctx context.Context, executionID, description string, metadata map[string]any) error {
	exec, err := o.db.GetExecution(executionID)
	if err != nil {
		return err
	}

	meta := map[string]any{"blocked_from": string(exec.State)}
	for k, v := range metadata {
		meta[k] = v
	}

	if err := o.engine.Transition(ctx, executionID, exec.State, models.StateBlocked, description, meta); err != nil {
		return err
	}

	o.emitEvent(Event{Type: EventExecutionBlocked, ExecutionID: executionID, TaskID: exec.TaskID,
		State: models.StateBlocked, Message: description})
	log.Printf("[orchestrator] execution %s blocked: %s", executionID, description)
	return nil
}

// ResolveBlocker moves a blocked execution to the given destination state.
// This is the only way out of Blocked; the engine rejects destinations not
// reachable from it. A resolution suggestion from the reasoner is recorded
// alongside, best-effort.
func (o *Orchestrator) ResolveBlocker(ctx context.Context, executionID, resolution string, nextState models.WorkflowState) error {
	exec, err := o.db.GetExecution(executionID)
	if err != nil {
		return err
	}

	if err := o.engine.Transition(ctx, executionID, exec.State, nextState, resolution, nil); err != nil {
		return err
	}

	o.emitEvent(Event{Type: EventBlockerResolved, ExecutionID: executionID, TaskID: exec.TaskID,
		State: nextState, Message: resolution})
	log.Printf("[orchestrator] execution %s unblocked to %s: %s", executionID, nextState, resolution)
	return nil
}

// SuggestResolution asks the reasoner for a way past a blocker, using the
// execution's conversation as context. Purely advisory.
func (o *Orchestrator) SuggestResolution(ctx context.Context, executionID, description string) (string, error) {
	if _, err := o.db.GetExecution(executionID); err != nil {
		return "", err
	}
	prompt := fmt.Sprintf("The squad is blocked: %s\nSuggest a concrete way forward.", description)
	return o.reasoner.Process(ctx, prompt, o.conversationContext(executionID))
}

// EscalateToHuman records an escalation and broadcasts it on the bus so
// every squad member knows a human has been pulled in. The persisted record
// is the source of truth; the broadcast is best-effort.
func (o *Orchestrator) EscalateToHuman(ctx context.Context, executionID, reason, details string, attemptedSolutions []string) (*state.Escalation, error) {
	exec, err := o.db.GetExecution(executionID)
	if err != nil {
		return nil, err
	}

	esc := &state.Escalation{
		ID:                 uuid.New().String(),
		ExecutionID:        executionID,
		Reason:             reason,
		Details:            details,
		AttemptedSolutions: attemptedSolutions,
		CreatedAt:          time.Now(),
	}
	if err := o.db.CreateEscalation(esc); err != nil {
		return nil, err
	}

	if _, err := o.msgBus.Broadcast(ctx, orchestratorIdentity, reason,
		models.MessageTypeEscalation, map[string]any{
			"escalation_id": esc.ID,
			"details":       details,
		}, executionID); err != nil {
		log.Printf("[orchestrator] warning: escalation broadcast failed for execution %s: %v", executionID, err)
	}

	o.emitEvent(Event{Type: EventEscalationRaised, ExecutionID: executionID, TaskID: exec.TaskID,
		State: exec.State, Message: reason})
	log.Printf("[orchestrator] execution %s escalated to human: %s", executionID, reason)
	return esc, nil
}
