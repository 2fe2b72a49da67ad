package delegation

import (
	"strings"

	"github.com/parkerduff/squadron/pkg/models"
)

// rolePreferences maps a task type to an ordered list of preferred roles.
// A candidate at position i scores 10 - 2i.
var rolePreferences = map[string][]models.Role{
	TaskTypeFeature:        {models.RoleFullstackDeveloper, models.RoleBackendDeveloper, models.RoleFrontendDeveloper, models.RoleTechLead},
	TaskTypeBugFix:         {models.RoleBackendDeveloper, models.RoleFullstackDeveloper, models.RoleFrontendDeveloper, models.RoleQAEngineer},
	TaskTypeRefactoring:    {models.RoleTechLead, models.RoleBackendDeveloper, models.RoleFullstackDeveloper},
	TaskTypeTesting:        {models.RoleQAEngineer, models.RoleBackendDeveloper, models.RoleFullstackDeveloper},
	TaskTypeDocumentation:  {models.RoleTechLead, models.RoleProjectManager, models.RoleBackendDeveloper},
	TaskTypeDesign:         {models.RoleDesigner, models.RoleFrontendDeveloper},
	TaskTypeInfrastructure: {models.RoleDevOpsEngineer, models.RoleBackendDeveloper},
}

// roleAffinity is a secondary role/task-type table granting a flat +5 bonus,
// independent of the primary preference list. It lets roles outside the
// primary list still compete.
var roleAffinity = map[models.Role]map[string]bool{
	models.RoleQAEngineer:        {TaskTypeTesting: true, TaskTypeBugFix: true},
	models.RoleDesigner:          {TaskTypeDesign: true, TaskTypeFeature: true},
	models.RoleDevOpsEngineer:    {TaskTypeInfrastructure: true},
	models.RoleTechLead:          {TaskTypeRefactoring: true, TaskTypeFeature: true},
	models.RoleFrontendDeveloper: {TaskTypeDesign: true},
	models.RoleProjectManager:    {TaskTypeDocumentation: true},
}

// Roster supplies squad membership for delegation decisions.
type Roster interface {
	// Members returns the members of a squad. With activeOnly, inactive
	// members are excluded.
	Members(squadID string, activeOnly bool) ([]*models.SquadMember, error)
}

// Engine makes delegation decisions. It holds no mutable state; every call
// is a pure function of its inputs and the roster snapshot.
type Engine struct {
	roster Roster
}

// NewEngine creates a delegation engine over the given roster.
func NewEngine(roster Roster) *Engine {
	return &Engine{roster: roster}
}

// AnalyzeRequirements derives requirements from a task. See the package
// function of the same name.
func (e *Engine) AnalyzeRequirements(task *models.Task) models.TaskRequirements {
	return AnalyzeRequirements(task)
}

// FindBestAgent scores every active member of the squad against the
// requirements and returns the highest scorer. Ties are broken by roster
// order: the earliest candidate among equal scores wins, so repeated calls
// with identical inputs return the same member. Members in excludeIDs are
// removed before scoring. Returns nil when no candidate remains.
func (e *Engine) FindBestAgent(squadID string, req models.TaskRequirements, excludeIDs []string) (*models.SquadMember, error) {
	members, err := e.roster.Members(squadID, true)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	var best *models.SquadMember
	bestScore := -1
	for _, m := range members {
		if excluded[m.ID] {
			continue
		}
		score := ScoreMember(m, req)
		if score > bestScore {
			best = m
			bestScore = score
		}
	}
	return best, nil
}

// ScoreMember computes a member's fitness for the given requirements.
//
// Role position i in the task type's preference list contributes 10 - 2i;
// each inferred skill found in the member's specialization adds 2; a hit in
// the secondary affinity table adds a flat 5.
func ScoreMember(m *models.SquadMember, req models.TaskRequirements) int {
	score := 0

	for i, role := range rolePreferences[req.TaskType] {
		if m.Role == role {
			if pts := 10 - 2*i; pts > 0 {
				score += pts
			}
			break
		}
	}

	spec := strings.ToLower(m.Specialization)
	for _, skill := range req.Skills {
		if strings.Contains(spec, skill) {
			score += 2
		}
	}

	if roleAffinity[m.Role][req.TaskType] {
		score += 5
	}

	return score
}
