// Package orchestrator is the single entry point for running a task through
// its execution lifecycle. It composes the workflow engine, delegation
// engine, and message bus: the engine enforces legality, delegation picks
// who acts, the bus tells them.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/parkerduff/squadron/internal/bus"
	"github.com/parkerduff/squadron/internal/delegation"
	"github.com/parkerduff/squadron/internal/reasoner"
	"github.com/parkerduff/squadron/internal/state"
	"github.com/parkerduff/squadron/internal/workflow"
	"github.com/parkerduff/squadron/pkg/models"
)

// orchestratorIdentity is the orchestrator's own bus identity.
const orchestratorIdentity = "orchestrator"

// eventBufferSize is the capacity of the event channel. Events beyond it
// are dropped rather than blocking orchestration.
const eventBufferSize = 256

// conversationContextLimit caps how much prior conversation is handed to
// the reasoner.
const conversationContextLimit = 20

// Orchestrator drives task executions through the workflow.
type Orchestrator struct {
	db         *state.DB
	engine     *workflow.Engine
	delegation *delegation.Engine
	msgBus     bus.Bus
	reasoner   reasoner.Reasoner

	events chan Event
}

// New creates an orchestrator and pre-registers the state-entry callbacks
// that drive automatic forward progression through the planning stages.
func New(db *state.DB, engine *workflow.Engine, deleg *delegation.Engine, msgBus bus.Bus, r reasoner.Reasoner) *Orchestrator {
	o := &Orchestrator{
		db:         db,
		engine:     engine,
		delegation: deleg,
		msgBus:     msgBus,
		reasoner:   r,
		events:     make(chan Event, eventBufferSize),
	}

	engine.RegisterStateAction(models.StateAnalyzing, o.onAnalyzing)
	engine.RegisterStateAction(models.StatePlanning, o.onPlanning)
	engine.RegisterStateAction(models.StateDelegated, o.onDelegated)

	return o
}

// Execute persists the task, creates an execution in Pending, and kicks off
// the workflow. The pre-registered callbacks chain the execution forward
// through Analyzing, Planning, and Delegated into InProgress before Execute
// returns; external calls drive it the rest of the way.
func (o *Orchestrator) Execute(ctx context.Context, task *models.Task, squadID string) (string, error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusOpen
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if err := o.db.CreateTask(task); err != nil {
		return "", err
	}

	exec := &models.TaskExecution{
		// Short ids keep monitor commands typeable; messages use full uuids.
		ID:        uuid.New().String()[:8],
		TaskID:    task.ID,
		SquadID:   squadID,
		State:     models.StatePending,
		StartedAt: time.Now(),
	}
	if err := o.db.CreateExecution(exec); err != nil {
		return "", err
	}

	o.emitEvent(Event{
		Type:        EventExecutionStarted,
		ExecutionID: exec.ID,
		TaskID:      task.ID,
		State:       models.StatePending,
		Message:     task.Title,
	})
	log.Printf("[orchestrator] execution %s started for task %q", exec.ID, task.Title)

	if err := o.engine.Transition(ctx, exec.ID, models.StatePending, models.StateAnalyzing, "execution started", nil); err != nil {
		return exec.ID, err
	}
	return exec.ID, nil
}

// Snapshot is a point-in-time view of an execution for monitors.
type Snapshot struct {
	// ExecutionID identifies the execution.
	ExecutionID string `json:"execution_id"`
	// TaskID identifies the originating task.
	TaskID string `json:"task_id"`
	// State is the current workflow state.
	State models.WorkflowState `json:"state"`
	// Description is the human-readable state description.
	Description string `json:"description"`
	// Progress is the progress heuristic for the current state.
	Progress models.Progress `json:"progress"`
	// Error is the failure message for failed executions.
	Error string `json:"error,omitempty"`
	// StartedAt is when the execution began.
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when the execution reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Metrics summarizes the transition log so far.
	Metrics models.WorkflowMetrics `json:"metrics"`
}

// Monitor returns a progress snapshot for an execution. Unknown ids
// surface the store's NotFoundError unchanged.
func (o *Orchestrator) Monitor(executionID string) (*Snapshot, error) {
	exec, err := o.db.GetExecution(executionID)
	if err != nil {
		return nil, err
	}

	transitions, err := o.db.GetTransitions(executionID)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		ExecutionID: exec.ID,
		TaskID:      exec.TaskID,
		State:       exec.State,
		Description: workflow.Describe(exec.State),
		Progress:    workflow.Progress(exec.State),
		Error:       exec.Error,
		StartedAt:   exec.StartedAt,
		CompletedAt: exec.CompletedAt,
		Metrics:     workflow.ComputeMetrics(transitions),
	}, nil
}

// onAnalyzing is the Analyzing entry callback: it consults the reasoner for
// an analysis of the task, records it, and advances to Planning.
func (o *Orchestrator) onAnalyzing(ctx context.Context, executionID string, _ map[string]any) error {
	exec, task, err := o.load(executionID)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("Analyze this task and summarize what it needs:\nTitle: %s\nDescription: %s\nAcceptance criteria: %v",
		task.Title, task.Description, task.AcceptanceCriteria)
	analysis, err := o.reasoner.Process(ctx, prompt, o.conversationContext(executionID))
	if err != nil {
		return fmt.Errorf("analyze task %s: %w", task.ID, err)
	}

	o.appendLog(executionID, "analysis complete", map[string]any{"analysis": analysis})
	o.emitEvent(Event{Type: EventStateChanged, ExecutionID: executionID, TaskID: exec.TaskID, State: models.StateAnalyzing, Message: "analysis complete"})

	return o.engine.Transition(ctx, executionID, models.StateAnalyzing, models.StatePlanning, "analysis complete", nil)
}

// onPlanning is the Planning entry callback: it derives requirements, breaks
// the task into subtasks, validates the dependency graph, and advances to
// Delegated.
func (o *Orchestrator) onPlanning(ctx context.Context, executionID string, _ map[string]any) error {
	exec, task, err := o.load(executionID)
	if err != nil {
		return err
	}

	req := o.delegation.AnalyzeRequirements(task)
	subtasks := delegation.BreakdownTask(task, req)
	graph, err := delegation.BuildSubtaskGraph(subtasks)
	if err != nil {
		return fmt.Errorf("build subtask graph for task %s: %w", task.ID, err)
	}
	order, err := graph.TopologicalSort()
	if err != nil {
		return fmt.Errorf("order subtasks for task %s: %w", task.ID, err)
	}

	o.appendLog(executionID, fmt.Sprintf("planned %d subtasks", len(subtasks)), map[string]any{
		"task_type":  req.TaskType,
		"complexity": req.Complexity,
		"order":      order,
	})
	o.emitEvent(Event{Type: EventStateChanged, ExecutionID: executionID, TaskID: exec.TaskID, State: models.StatePlanning, Message: fmt.Sprintf("planned %d subtasks", len(subtasks))})

	return o.engine.Transition(ctx, executionID, models.StatePlanning, models.StateDelegated, "breakdown complete", map[string]any{
		"subtasks": len(subtasks),
	})
}

// onDelegated is the Delegated entry callback: it picks the best member for
// the work and sends them the assignment. With no eligible member the
// execution blocks instead of failing.
func (o *Orchestrator) onDelegated(ctx context.Context, executionID string, _ map[string]any) error {
	exec, task, err := o.load(executionID)
	if err != nil {
		return err
	}

	req := o.delegation.AnalyzeRequirements(task)
	member, err := o.delegation.FindBestAgent(exec.SquadID, req, nil)
	if err != nil {
		return fmt.Errorf("find agent for task %s: %w", task.ID, err)
	}
	if member == nil {
		return o.engine.Transition(ctx, executionID, models.StateDelegated, models.StateBlocked,
			"no eligible squad member", map[string]any{"squad_id": exec.SquadID})
	}

	if _, err := o.msgBus.Send(ctx, orchestratorIdentity, member.ID, task.Title,
		models.MessageTypeTaskAssignment, map[string]any{
			"task_id":     task.ID,
			"description": task.Description,
			"complexity":  req.Complexity,
		}, executionID); err != nil {
		return fmt.Errorf("send assignment to %s: %w", member.ID, err)
	}

	if err := o.db.MarkTaskInProgress(task.ID); err != nil {
		return err
	}

	o.emitEvent(Event{Type: EventTaskDelegated, ExecutionID: executionID, TaskID: task.ID, State: models.StateDelegated,
		Message: fmt.Sprintf("assigned to %s (%s)", member.Name, member.Role)})
	log.Printf("[orchestrator] execution %s delegated to %s", executionID, member.ID)

	return o.engine.Transition(ctx, executionID, models.StateDelegated, models.StateInProgress,
		"assigned to "+member.ID, nil)
}

// load fetches an execution and its originating task.
func (o *Orchestrator) load(executionID string) (*models.TaskExecution, *models.Task, error) {
	exec, err := o.db.GetExecution(executionID)
	if err != nil {
		return nil, nil, err
	}
	task, err := o.db.GetTask(exec.TaskID)
	if err != nil {
		return nil, nil, err
	}
	return exec, task, nil
}

// conversationContext collects the recent bus conversation for an execution
// as reasoner context. Best-effort: failures yield no context.
func (o *Orchestrator) conversationContext(executionID string) []string {
	msgs, err := o.msgBus.Conversation(executionID, conversationContextLimit)
	if err != nil {
		log.Printf("[orchestrator] conversation lookup failed for execution %s: %v", executionID, err)
		return nil
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.From, m.Content))
	}
	return lines
}

// appendLog records a log entry, best-effort.
func (o *Orchestrator) appendLog(executionID, message string, metadata map[string]any) {
	entry := models.LogEntry{
		Timestamp: time.Now(),
		Level:     "info",
		Message:   message,
		Metadata:  metadata,
	}
	if err := o.db.AppendLog(executionID, entry); err != nil {
		log.Printf("[orchestrator] warning: failed to append log for execution %s: %v", executionID, err)
	}
}
