// Package delegation decides who should work on what. Every function is a
// pure computation over task text and squad rosters; the package holds no
// mutable state and is safe for unbounded concurrent use.
package delegation

import (
	"strings"

	"github.com/parkerduff/squadron/pkg/models"
)

// Task type tags produced by classification.
const (
	TaskTypeFeature        = "feature"
	TaskTypeBugFix         = "bug_fix"
	TaskTypeRefactoring    = "refactoring"
	TaskTypeTesting        = "testing"
	TaskTypeDocumentation  = "documentation"
	TaskTypeDesign         = "design"
	TaskTypeInfrastructure = "infrastructure"
)

// Subtask type tags produced by breakdown.
const (
	SubtaskPlanning       = "planning"
	SubtaskBackendImpl    = "backend_implementation"
	SubtaskFrontendImpl   = "frontend_implementation"
	SubtaskTesting        = "testing"
	SubtaskCodeReview     = "code_review"
)

// taskTypeKeywords classifies tasks by substring match. The first matching
// type in checkOrder wins; tasks matching nothing default to feature.
var taskTypeKeywords = map[string][]string{
	TaskTypeBugFix:         {"fix", "bug", "broken", "crash", "regression", "error"},
	TaskTypeRefactoring:    {"refactor", "cleanup", "restructure", "reorganize", "technical debt"},
	TaskTypeTesting:        {"write tests", "test coverage", "unit test", "integration test"},
	TaskTypeDocumentation:  {"document", "readme", "docs", "documentation"},
	TaskTypeDesign:         {"design", "mockup", "wireframe", "ux", "ui design"},
	TaskTypeInfrastructure: {"deploy", "pipeline", "ci/cd", "infrastructure", "kubernetes", "terraform"},
}

// checkOrder fixes classification precedence so analysis is deterministic.
var checkOrder = []string{
	TaskTypeBugFix, TaskTypeRefactoring, TaskTypeTesting,
	TaskTypeDocumentation, TaskTypeDesign, TaskTypeInfrastructure,
}

// areaKeywords detect which areas of the stack a task touches.
var areaKeywords = map[string][]string{
	"frontend": {"frontend", "ui", "interface", "component", "react", "vue", "css", "page", "form", "button"},
	"backend":  {"backend", "api", "endpoint", "server", "service", "handler", "auth"},
	"database": {"database", "schema", "migration", "sql", "query", "index", "table"},
	"devops":   {"deploy", "docker", "kubernetes", "pipeline", "ci/cd", "infrastructure", "monitoring"},
	"testing":  {"test", "verify", "validate", "qa", "coverage"},
	"design":   {"design", "mockup", "wireframe", "ux", "style"},
}

// skillKeywords map inferred skill tags to the substrings that imply them.
var skillKeywords = map[string][]string{
	"react":      {"react", "component", "jsx"},
	"css":        {"css", "style", "layout", "responsive"},
	"api":        {"api", "endpoint", "rest", "graphql"},
	"database":   {"database", "sql", "schema", "migration"},
	"docker":     {"docker", "container"},
	"kubernetes": {"kubernetes", "k8s"},
	"testing":    {"test", "qa", "coverage"},
	"security":   {"security", "auth", "encryption"},
	"performance": {"performance", "optimize", "latency", "cache"},
}

// complexKeywords bump the complexity score when present.
var complexKeywords = []string{"architecture", "migration", "refactor", "integration"}

// AnalyzeRequirements derives TaskRequirements from a task by deterministic
// keyword classification over the title, description, and acceptance
// criteria. The complexity score is always within [1,10].
func AnalyzeRequirements(task *models.Task) models.TaskRequirements {
	text := strings.ToLower(task.Title + " " + task.Description + " " + strings.Join(task.AcceptanceCriteria, " "))

	req := models.TaskRequirements{
		TaskType:      classifyTaskType(text),
		Skills:        inferSkills(text),
		NeedsFrontend: containsAny(text, areaKeywords["frontend"]),
		NeedsBackend:  containsAny(text, areaKeywords["backend"]),
		NeedsTesting:  containsAny(text, areaKeywords["testing"]),
		NeedsDesign:   containsAny(text, areaKeywords["design"]),
		NeedsDatabase: containsAny(text, areaKeywords["database"]),
		NeedsDevOps:   containsAny(text, areaKeywords["devops"]),
	}

	req.Complexity = scoreComplexity(text, len(task.AcceptanceCriteria), req)
	req.EstimatedSubtasks = estimateSubtasks(req)
	return req
}

// classifyTaskType returns the first matching task type, defaulting to feature.
func classifyTaskType(text string) string {
	for _, taskType := range checkOrder {
		if containsAny(text, taskTypeKeywords[taskType]) {
			return taskType
		}
	}
	return TaskTypeFeature
}

// inferSkills returns the sorted-by-declaration set of skill tags implied by
// the task text.
func inferSkills(text string) []string {
	var skills []string
	for _, skill := range skillOrder {
		if containsAny(text, skillKeywords[skill]) {
			skills = append(skills, skill)
		}
	}
	return skills
}

// skillOrder fixes the iteration order over skillKeywords.
var skillOrder = []string{
	"react", "css", "api", "database", "docker", "kubernetes",
	"testing", "security", "performance",
}

// scoreComplexity computes the [1,10] complexity score.
//
// Base 3; +2 for more than five acceptance criteria (else +1 for more than
// three); +2 when a complexity keyword appears; +(area count - 1) across the
// frontend/backend/database/devops flags, rewarding cross-cutting tasks
// without penalizing single-area ones.
func scoreComplexity(text string, criteriaCount int, req models.TaskRequirements) int {
	score := 3

	if criteriaCount > 5 {
		score += 2
	} else if criteriaCount > 3 {
		score++
	}

	if containsAny(text, complexKeywords) {
		score += 2
	}

	areas := 0
	for _, flag := range []bool{req.NeedsFrontend, req.NeedsBackend, req.NeedsDatabase, req.NeedsDevOps} {
		if flag {
			areas++
		}
	}
	if areas > 1 {
		score += areas - 1
	}

	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score
}

// estimateSubtasks predicts how many subtasks breakdown will emit.
func estimateSubtasks(req models.TaskRequirements) int {
	count := 2 // planning + code_review
	if req.NeedsBackend {
		count++
	}
	if req.NeedsFrontend {
		count++
	}
	if req.NeedsTesting || req.Complexity >= 5 {
		count++
	}
	return count
}

// containsAny reports whether text contains any of the given substrings.
func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
