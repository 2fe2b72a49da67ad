// Package roster manages squad membership. Members are declared in a YAML
// file and mirrored into the state store, which is the source of truth for
// delegation and bus enrichment lookups.
package roster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/parkerduff/squadron/internal/state"
	"github.com/parkerduff/squadron/pkg/models"
)

// File is the YAML roster document.
type File struct {
	// SquadID names the squad the file describes.
	SquadID string `yaml:"squad_id"`
	// Members lists the squad's members.
	Members []Entry `yaml:"members"`
}

// Entry is one member in the roster file.
type Entry struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Role           string `yaml:"role"`
	Specialization string `yaml:"specialization,omitempty"`
	// Inactive excludes the member from assignment without deleting their
	// record. Defaults to false so plain entries are active.
	Inactive bool `yaml:"inactive,omitempty"`
}

// Roster serves membership queries backed by the state store.
type Roster struct {
	db   *state.DB
	path string
}

// New creates a roster over the state store. Path is the YAML file used for
// loads and reloads; it may be empty when membership is managed elsewhere.
func New(db *state.DB, path string) *Roster {
	return &Roster{db: db, path: path}
}

// Load reads the roster file and reconciles the store with it: entries are
// upserted and members absent from the file are removed. Returns the squad
// id declared in the file.
func (r *Roster) Load() (string, error) {
	if r.path == "" {
		return "", fmt.Errorf("no roster file configured")
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return "", fmt.Errorf("read roster file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return "", fmt.Errorf("parse roster file %s: %w", r.path, err)
	}
	if file.SquadID == "" {
		return "", fmt.Errorf("roster file %s: squad_id is required", r.path)
	}

	keep := make([]string, 0, len(file.Members))
	for i, entry := range file.Members {
		if entry.ID == "" {
			return "", fmt.Errorf("roster file %s: member %d has no id", r.path, i)
		}
		role := models.Role(entry.Role)
		if !role.Valid() {
			return "", fmt.Errorf("roster file %s: member %s has unknown role %q", r.path, entry.ID, entry.Role)
		}

		member := &models.SquadMember{
			ID:             entry.ID,
			SquadID:        file.SquadID,
			Name:           entry.Name,
			Role:           role,
			Specialization: entry.Specialization,
			Active:         !entry.Inactive,
		}
		if err := r.db.UpsertMember(member); err != nil {
			return "", err
		}
		keep = append(keep, entry.ID)
	}

	if err := r.db.DeleteMembersNotIn(file.SquadID, keep); err != nil {
		return "", err
	}
	return file.SquadID, nil
}

// Members returns the members of a squad. Satisfies the delegation engine's
// roster dependency.
func (r *Roster) Members(squadID string, activeOnly bool) ([]*models.SquadMember, error) {
	return r.db.ListMembers(squadID, activeOnly)
}

// Member returns a member by bus identity. Satisfies the bus enrichment
// lookup dependency.
func (r *Roster) Member(id string) (*models.SquadMember, error) {
	return r.db.GetMember(id)
}
