package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Escalation records a request for human intervention on an execution.
type Escalation struct {
	// ID is the unique identifier for this escalation.
	ID string `json:"id"`
	// ExecutionID is the execution that needs attention.
	ExecutionID string `json:"execution_id"`
	// Reason summarizes why the squad is escalating.
	Reason string `json:"reason"`
	// Details carries the full context for the human reviewer.
	Details string `json:"details,omitempty"`
	// AttemptedSolutions lists what the squad already tried.
	AttemptedSolutions []string `json:"attempted_solutions,omitempty"`
	// CreatedAt is when the escalation was raised.
	CreatedAt time.Time `json:"created_at"`
}

// CreateEscalation inserts a new escalation record.
func (db *DB) CreateEscalation(e *Escalation) error {
	var attempted any
	if len(e.AttemptedSolutions) > 0 {
		data, err := json.Marshal(e.AttemptedSolutions)
		if err != nil {
			return fmt.Errorf("marshal attempted solutions: %w", err)
		}
		attempted = string(data)
	}

	_, err := db.Exec(`
		INSERT INTO escalations (id, execution_id, reason, details, attempted_solutions, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.ExecutionID, e.Reason, e.Details, attempted, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("create escalation: %w", err)
	}
	return nil
}

// ListEscalations returns escalations for an execution, oldest first.
func (db *DB) ListEscalations(executionID string) ([]*Escalation, error) {
	rows, err := db.Query(`
		SELECT id, execution_id, reason, details, attempted_solutions, created_at
		FROM escalations WHERE execution_id = ? ORDER BY created_at ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()

	var escalations []*Escalation
	for rows.Next() {
		var e Escalation
		var details, attempted sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ExecutionID, &e.Reason, &details, &attempted, &createdAt); err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		e.Details = details.String
		if attempted.Valid && attempted.String != "" {
			_ = json.Unmarshal([]byte(attempted.String), &e.AttemptedSolutions)
		}
		if t, err := parseTime(createdAt); err == nil {
			e.CreatedAt = t
		}
		escalations = append(escalations, &e)
	}
	return escalations, rows.Err()
}
