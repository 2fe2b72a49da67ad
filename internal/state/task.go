package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parkerduff/squadron/pkg/models"
)

// Task CRUD operations

// CreateTask inserts a new originating task.
func (db *DB) CreateTask(t *models.Task) error {
	criteria, err := marshalCriteria(t.AcceptanceCriteria)
	if err != nil {
		return fmt.Errorf("marshal acceptance criteria: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO tasks (id, title, description, acceptance_criteria, status, result, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, criteria, string(t.Status), t.Result, t.Error,
		formatTime(t.CreatedAt), nullableTime(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
// Returns a NotFoundError for unknown ids.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, title, description, acceptance_criteria, status, result, error, created_at, completed_at
		FROM tasks WHERE id = ?
	`, id)

	var t models.Task
	var statusStr, createdAt string
	var desc, criteria, result, errMsg, completedAt sql.NullString

	err := row.Scan(&t.ID, &t.Title, &desc, &criteria, &statusStr, &result, &errMsg, &createdAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "task", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	t.Description = desc.String
	t.AcceptanceCriteria = unmarshalCriteria(criteria)
	t.Status = models.TaskStatus(statusStr)
	t.Result = result.String
	t.Error = errMsg.String
	if ts, err := parseTime(createdAt); err == nil {
		t.CreatedAt = ts
	}
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}

// FinalizeTask marks a task completed or failed and stores the outcome.
func (db *DB) FinalizeTask(id string, status models.TaskStatus, result, errMsg string, completedAt time.Time) error {
	res, err := db.Exec(`
		UPDATE tasks SET status = ?, result = ?, error = ?, completed_at = ? WHERE id = ?
	`, string(status), result, errMsg, formatTime(completedAt), id)
	if err != nil {
		return fmt.Errorf("finalize task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{Kind: "task", ID: id}
	}
	return nil
}

// MarkTaskInProgress flips an open task to in_progress.
func (db *DB) MarkTaskInProgress(id string) error {
	res, err := db.Exec(`UPDATE tasks SET status = ? WHERE id = ?`,
		string(models.TaskStatusInProgress), id)
	if err != nil {
		return fmt.Errorf("mark task in progress: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{Kind: "task", ID: id}
	}
	return nil
}

func marshalCriteria(criteria []string) (any, error) {
	if len(criteria) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(criteria)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalCriteria(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var criteria []string
	if err := json.Unmarshal([]byte(s.String), &criteria); err != nil {
		return nil
	}
	return criteria
}
