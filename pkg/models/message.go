package models

import "time"

// Message types used by the orchestrator. The field is free-form: squads
// can introduce their own types without touching the bus.
const (
	// MessageTypeTaskAssignment assigns a subtask to a squad member.
	MessageTypeTaskAssignment = "task_assignment"
	// MessageTypeQuestion asks another squad member for input.
	MessageTypeQuestion = "question"
	// MessageTypeAnswer replies to a question.
	MessageTypeAnswer = "answer"
	// MessageTypeStatusUpdate reports progress on a task.
	MessageTypeStatusUpdate = "status_update"
	// MessageTypeStandup is a broadcast standup summary.
	MessageTypeStandup = "standup"
	// MessageTypeEscalation asks a human to intervene.
	MessageTypeEscalation = "escalation"
)

// Message is the unit exchanged on the message bus. Messages are immutable
// once created; the bus only routes and stores them.
type Message struct {
	// ID is the unique identifier for this message.
	ID string `json:"id"`
	// ExecutionID correlates the message with a task execution's
	// conversation. Empty means the message is not part of any conversation.
	ExecutionID string `json:"execution_id,omitempty"`
	// From is the sender's identity.
	From string `json:"from"`
	// To is the recipient's identity. Empty means broadcast.
	To string `json:"to,omitempty"`
	// Content is the opaque payload. Structured payloads are serialized by
	// the caller; the bus never inspects them.
	Content string `json:"content"`
	// Type tags the message (task_assignment, question, answer, ...).
	Type string `json:"type"`
	// Metadata carries structured context alongside the content.
	Metadata map[string]any `json:"metadata,omitempty"`
	// CreatedAt is when the message was created.
	CreatedAt time.Time `json:"created_at"`
}

// Broadcast returns true if the message has no specific recipient.
func (m *Message) Broadcast() bool {
	return m.To == ""
}
