package models

// Role identifies a squad member's function on the team.
type Role string

const (
	// RoleProjectManager coordinates the squad and handles escalations.
	RoleProjectManager Role = "project_manager"
	// RoleTechLead owns architecture decisions and reviews.
	RoleTechLead Role = "tech_lead"
	// RoleBackendDeveloper implements server-side work.
	RoleBackendDeveloper Role = "backend_developer"
	// RoleFrontendDeveloper implements client-side work.
	RoleFrontendDeveloper Role = "frontend_developer"
	// RoleFullstackDeveloper implements across the stack.
	RoleFullstackDeveloper Role = "fullstack_developer"
	// RoleQAEngineer tests and verifies work.
	RoleQAEngineer Role = "qa_engineer"
	// RoleDesigner owns UX and visual design.
	RoleDesigner Role = "designer"
	// RoleDevOpsEngineer owns infrastructure and deployment.
	RoleDevOpsEngineer Role = "devops_engineer"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleProjectManager, RoleTechLead, RoleBackendDeveloper,
		RoleFrontendDeveloper, RoleFullstackDeveloper, RoleQAEngineer,
		RoleDesigner, RoleDevOpsEngineer:
		return true
	default:
		return false
	}
}

// SquadMember is one agent actor addressable on the message bus.
type SquadMember struct {
	// ID is the member's bus identity.
	ID string `json:"id"`
	// SquadID is the squad this member belongs to.
	SquadID string `json:"squad_id"`
	// Name is the display name used for enrichment.
	Name string `json:"name"`
	// Role is the member's function on the squad.
	Role Role `json:"role"`
	// Specialization is a free-form description of skills, matched against
	// inferred skill keywords during delegation.
	Specialization string `json:"specialization,omitempty"`
	// Active indicates whether the member can receive assignments.
	Active bool `json:"active"`
}
