package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parkerduff/squadron/pkg/models"
)

// Execution CRUD operations

// CreateExecution inserts a new task execution record.
func (db *DB) CreateExecution(e *models.TaskExecution) error {
	meta, err := marshalMetadata(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal execution metadata: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO executions (id, task_id, squad_id, state, metadata, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.TaskID, e.SquadID, string(e.State), meta, e.Error,
		formatTime(e.StartedAt), nullableTime(e.CompletedAt))
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
// Returns a NotFoundError for unknown ids.
func (db *DB) GetExecution(id string) (*models.TaskExecution, error) {
	row := db.QueryRow(`
		SELECT id, task_id, squad_id, state, metadata, error, started_at, completed_at
		FROM executions WHERE id = ?
	`, id)
	return scanExecution(row, id)
}

// UpdateExecution persists the mutable fields of an execution.
func (db *DB) UpdateExecution(e *models.TaskExecution) error {
	meta, err := marshalMetadata(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal execution metadata: %w", err)
	}

	res, err := db.Exec(`
		UPDATE executions SET state = ?, metadata = ?, error = ?, completed_at = ?
		WHERE id = ?
	`, string(e.State), meta, e.Error, nullableTime(e.CompletedAt), e.ID)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{Kind: "execution", ID: e.ID}
	}
	return nil
}

// ListExecutions returns all executions, newest first.
func (db *DB) ListExecutions() ([]*models.TaskExecution, error) {
	rows, err := db.Query(`
		SELECT id, task_id, squad_id, state, metadata, error, started_at, completed_at
		FROM executions ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var executions []*models.TaskExecution
	for rows.Next() {
		e, err := scanExecutionRows(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

// TransitionExecution atomically writes the new state and appends the
// transition log entry plus one execution log line describing the move.
// No reader observes the new state without the matching log entry.
func (db *DB) TransitionExecution(executionID string, from, to models.WorkflowState, reason string, now time.Time) error {
	return db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE executions SET state = ? WHERE id = ? AND state = ?`,
			string(to), executionID, string(from))
		if err != nil {
			return fmt.Errorf("update execution state: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			// Either the execution does not exist or its current state
			// no longer matches. Distinguish for the caller.
			var count int
			if err := tx.QueryRow(`SELECT COUNT(*) FROM executions WHERE id = ?`, executionID).Scan(&count); err != nil {
				return fmt.Errorf("check execution: %w", err)
			}
			if count == 0 {
				return &NotFoundError{Kind: "execution", ID: executionID}
			}
			return ErrStaleState
		}

		ts := formatTime(now)
		if _, err := tx.Exec(`
			INSERT INTO transitions (execution_id, from_state, to_state, reason, ts)
			VALUES (?, ?, ?, ?, ?)
		`, executionID, string(from), string(to), reason, ts); err != nil {
			return fmt.Errorf("record transition: %w", err)
		}

		msg := fmt.Sprintf("state changed: %s -> %s", from, to)
		if reason != "" {
			msg += " (" + reason + ")"
		}
		if _, err := tx.Exec(`
			INSERT INTO execution_logs (execution_id, ts, level, message, metadata)
			VALUES (?, ?, 'info', ?, NULL)
		`, executionID, ts, msg); err != nil {
			return fmt.Errorf("append transition log: %w", err)
		}

		return nil
	})
}

// ErrStaleState indicates a transition whose expected "from" state no longer
// matches the persisted state. The workflow engine maps this to an invalid
// transition against the actual current state.
var ErrStaleState = errors.New("execution state changed concurrently")

// AppendLog appends one entry to an execution's log.
func (db *DB) AppendLog(executionID string, entry models.LogEntry) error {
	meta, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal log metadata: %w", err)
	}

	level := entry.Level
	if level == "" {
		level = "info"
	}

	_, err = db.Exec(`
		INSERT INTO execution_logs (execution_id, ts, level, message, metadata)
		VALUES (?, ?, ?, ?, ?)
	`, executionID, formatTime(entry.Timestamp), level, entry.Message, meta)
	if err != nil {
		return fmt.Errorf("append execution log: %w", err)
	}
	return nil
}

// GetLogs returns an execution's log entries in append order.
func (db *DB) GetLogs(executionID string) ([]models.LogEntry, error) {
	rows, err := db.Query(`
		SELECT ts, level, message, metadata
		FROM execution_logs WHERE execution_id = ? ORDER BY id ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("get execution logs: %w", err)
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var ts string
		var entry models.LogEntry
		var meta sql.NullString
		if err := rows.Scan(&ts, &entry.Level, &entry.Message, &meta); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		if t, err := parseTime(ts); err == nil {
			entry.Timestamp = t
		}
		entry.Metadata = unmarshalMetadata(meta)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetTransitions returns an execution's transition log in record order.
func (db *DB) GetTransitions(executionID string) ([]models.Transition, error) {
	rows, err := db.Query(`
		SELECT from_state, to_state, reason, ts
		FROM transitions WHERE execution_id = ? ORDER BY id ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("get transitions: %w", err)
	}
	defer rows.Close()

	var transitions []models.Transition
	for rows.Next() {
		var from, to, ts string
		var reason sql.NullString
		if err := rows.Scan(&from, &to, &reason, &ts); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr := models.Transition{
			From:   models.WorkflowState(from),
			To:     models.WorkflowState(to),
			Reason: reason.String,
		}
		if t, err := parseTime(ts); err == nil {
			tr.Timestamp = t
		}
		transitions = append(transitions, tr)
	}
	return transitions, rows.Err()
}

// scanExecution scans a single execution row.
func scanExecution(row *sql.Row, id string) (*models.TaskExecution, error) {
	var e models.TaskExecution
	var stateStr, startedAt string
	var meta, errMsg, completedAt sql.NullString

	err := row.Scan(&e.ID, &e.TaskID, &e.SquadID, &stateStr, &meta, &errMsg, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "execution", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	fillExecution(&e, stateStr, meta, errMsg, startedAt, completedAt)
	return &e, nil
}

// scanExecutionRows scans an execution from a multi-row result.
func scanExecutionRows(rows *sql.Rows) (*models.TaskExecution, error) {
	var e models.TaskExecution
	var stateStr, startedAt string
	var meta, errMsg, completedAt sql.NullString

	if err := rows.Scan(&e.ID, &e.TaskID, &e.SquadID, &stateStr, &meta, &errMsg, &startedAt, &completedAt); err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	fillExecution(&e, stateStr, meta, errMsg, startedAt, completedAt)
	return &e, nil
}

func fillExecution(e *models.TaskExecution, stateStr string, meta, errMsg sql.NullString, startedAt string, completedAt sql.NullString) {
	e.State = models.WorkflowState(stateStr)
	e.Metadata = unmarshalMetadata(meta)
	e.Error = errMsg.String
	if t, err := parseTime(startedAt); err == nil {
		e.StartedAt = t
	}
	e.CompletedAt = parseNullableTime(completedAt)
}

// marshalMetadata serializes a metadata map to JSON for storage.
// Nil maps are stored as NULL.
func marshalMetadata(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// unmarshalMetadata deserializes stored JSON metadata.
// Unparseable or NULL metadata yields nil.
func unmarshalMetadata(s sql.NullString) map[string]any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil
	}
	return m
}

// nullableTime converts an optional time to a storable value.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
