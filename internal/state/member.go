package state

import (
	"database/sql"
	"fmt"

	"github.com/parkerduff/squadron/pkg/models"
)

// Squad member CRUD operations

// UpsertMember inserts or replaces a squad member record.
func (db *DB) UpsertMember(m *models.SquadMember) error {
	_, err := db.Exec(`
		INSERT INTO squad_members (id, squad_id, name, role, specialization, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			squad_id = excluded.squad_id,
			name = excluded.name,
			role = excluded.role,
			specialization = excluded.specialization,
			active = excluded.active
	`, m.ID, m.SquadID, m.Name, string(m.Role), m.Specialization, boolToInt(m.Active))
	if err != nil {
		return fmt.Errorf("upsert squad member: %w", err)
	}
	return nil
}

// GetMember retrieves a squad member by ID.
// Returns a NotFoundError for unknown ids.
func (db *DB) GetMember(id string) (*models.SquadMember, error) {
	row := db.QueryRow(`
		SELECT id, squad_id, name, role, specialization, active
		FROM squad_members WHERE id = ?
	`, id)

	m, err := scanMemberRow(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "squad member", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("scan squad member: %w", err)
	}
	return m, nil
}

// ListMembers returns members of a squad. With activeOnly, inactive members
// are filtered out.
func (db *DB) ListMembers(squadID string, activeOnly bool) ([]*models.SquadMember, error) {
	query := `
		SELECT id, squad_id, name, role, specialization, active
		FROM squad_members WHERE squad_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY rowid ASC`

	rows, err := db.Query(query, squadID)
	if err != nil {
		return nil, fmt.Errorf("list squad members: %w", err)
	}
	defer rows.Close()

	var members []*models.SquadMember
	for rows.Next() {
		var m models.SquadMember
		var roleStr string
		var spec sql.NullString
		var active int
		if err := rows.Scan(&m.ID, &m.SquadID, &m.Name, &roleStr, &spec, &active); err != nil {
			return nil, fmt.Errorf("scan squad member: %w", err)
		}
		m.Role = models.Role(roleStr)
		m.Specialization = spec.String
		m.Active = active != 0
		members = append(members, &m)
	}
	return members, rows.Err()
}

// DeleteMembersNotIn removes members of a squad whose ids are not in keep.
// Used by roster reloads to drop members removed from the roster file.
func (db *DB) DeleteMembersNotIn(squadID string, keep []string) error {
	if len(keep) == 0 {
		_, err := db.Exec(`DELETE FROM squad_members WHERE squad_id = ?`, squadID)
		if err != nil {
			return fmt.Errorf("delete squad members: %w", err)
		}
		return nil
	}

	members, err := db.ListMembers(squadID, false)
	if err != nil {
		return err
	}

	kept := make(map[string]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}

	for _, m := range members {
		if kept[m.ID] {
			continue
		}
		if _, err := db.Exec(`DELETE FROM squad_members WHERE id = ?`, m.ID); err != nil {
			return fmt.Errorf("delete squad member %s: %w", m.ID, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemberRow(row rowScanner) (*models.SquadMember, error) {
	var m models.SquadMember
	var roleStr string
	var spec sql.NullString
	var active int
	if err := row.Scan(&m.ID, &m.SquadID, &m.Name, &roleStr, &spec, &active); err != nil {
		return nil, err
	}
	m.Role = models.Role(roleStr)
	m.Specialization = spec.String
	m.Active = active != 0
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
