package delegation

import (
	"testing"

	"github.com/parkerduff/squadron/pkg/models"
)

// staticRoster serves a fixed member list.
type staticRoster struct {
	members []*models.SquadMember
}

func (r *staticRoster) Members(squadID string, activeOnly bool) ([]*models.SquadMember, error) {
	return r.members, nil
}

func member(id string, role models.Role, spec string) *models.SquadMember {
	return &models.SquadMember{ID: id, SquadID: "squad-1", Name: id, Role: role, Specialization: spec, Active: true}
}

func TestScoreMember(t *testing.T) {
	tests := []struct {
		name string
		m    *models.SquadMember
		req  models.TaskRequirements
		want int
	}{
		{
			name: "first role preference scores ten",
			m:    member("a", models.RoleFullstackDeveloper, ""),
			req:  models.TaskRequirements{TaskType: TaskTypeFeature},
			want: 10,
		},
		{
			name: "second preference scores eight",
			m:    member("a", models.RoleBackendDeveloper, ""),
			req:  models.TaskRequirements{TaskType: TaskTypeFeature},
			want: 8,
		},
		{
			name: "skill match adds two each",
			m:    member("a", models.RoleBackendDeveloper, "api and database work"),
			req:  models.TaskRequirements{TaskType: TaskTypeFeature, Skills: []string{"api", "database"}},
			want: 12,
		},
		{
			name: "affinity bonus adds five",
			m:    member("a", models.RoleQAEngineer, ""),
			req:  models.TaskRequirements{TaskType: TaskTypeTesting},
			// first preference (10) + affinity (5)
			want: 15,
		},
		{
			name: "role outside preference list can still score",
			m:    member("a", models.RoleDesigner, ""),
			req:  models.TaskRequirements{TaskType: TaskTypeFeature},
			// not in the feature preference list, but designer has
			// feature affinity
			want: 5,
		},
		{
			name: "no match scores zero",
			m:    member("a", models.RoleDevOpsEngineer, ""),
			req:  models.TaskRequirements{TaskType: TaskTypeDesign},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScoreMember(tt.m, tt.req); got != tt.want {
				t.Errorf("score = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFindBestAgentPicksHighestScorer(t *testing.T) {
	engine := NewEngine(&staticRoster{members: []*models.SquadMember{
		member("designer", models.RoleDesigner, ""),
		member("backend", models.RoleBackendDeveloper, "api"),
		member("fullstack", models.RoleFullstackDeveloper, ""),
	}})

	req := models.TaskRequirements{TaskType: TaskTypeFeature, Skills: []string{"api"}}
	got, err := engine.FindBestAgent("squad-1", req, nil)
	if err != nil {
		t.Fatalf("find best agent: %v", err)
	}
	// backend: 8 + 2 skill = 10; fullstack: 10; tie broken by roster order.
	if got == nil || got.ID != "backend" {
		t.Errorf("got %v, want backend (first among equal scores)", got)
	}
}

func TestFindBestAgentDeterministic(t *testing.T) {
	engine := NewEngine(&staticRoster{members: []*models.SquadMember{
		member("a", models.RoleBackendDeveloper, ""),
		member("b", models.RoleBackendDeveloper, ""),
		member("c", models.RoleBackendDeveloper, ""),
	}})

	req := models.TaskRequirements{TaskType: TaskTypeBugFix}
	first, err := engine.FindBestAgent("squad-1", req, nil)
	if err != nil {
		t.Fatalf("find best agent: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := engine.FindBestAgent("squad-1", req, nil)
		if err != nil {
			t.Fatalf("find best agent: %v", err)
		}
		if again.ID != first.ID {
			t.Fatalf("run %d returned %s, first run returned %s", i, again.ID, first.ID)
		}
	}
	if first.ID != "a" {
		t.Errorf("equal scores should resolve to roster order, got %s", first.ID)
	}
}

func TestFindBestAgentExcludes(t *testing.T) {
	engine := NewEngine(&staticRoster{members: []*models.SquadMember{
		member("a", models.RoleBackendDeveloper, ""),
		member("b", models.RoleBackendDeveloper, ""),
	}})

	req := models.TaskRequirements{TaskType: TaskTypeBugFix}
	got, err := engine.FindBestAgent("squad-1", req, []string{"a"})
	if err != nil {
		t.Fatalf("find best agent: %v", err)
	}
	if got == nil || got.ID != "b" {
		t.Errorf("got %v, want b after excluding a", got)
	}
}

func TestFindBestAgentEmptyRoster(t *testing.T) {
	engine := NewEngine(&staticRoster{})

	got, err := engine.FindBestAgent("squad-1", models.TaskRequirements{TaskType: TaskTypeFeature}, nil)
	if err != nil {
		t.Fatalf("find best agent: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil for empty roster", got)
	}

	engine = NewEngine(&staticRoster{members: []*models.SquadMember{
		member("only", models.RoleBackendDeveloper, ""),
	}})
	got, err = engine.FindBestAgent("squad-1", models.TaskRequirements{TaskType: TaskTypeFeature}, []string{"only"})
	if err != nil {
		t.Fatalf("find best agent: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil when every member is excluded", got)
	}
}
