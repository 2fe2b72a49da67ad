package delegation

import (
	"errors"
	"fmt"

	"github.com/parkerduff/squadron/pkg/models"
)

// ErrCycleDetected indicates a circular dependency between subtasks.
var ErrCycleDetected = errors.New("circular dependency detected")

// SubtaskGraph is a directed acyclic graph of subtask dependencies, keyed by
// subtask type tag. Edges represent "blocked by" relationships.
type SubtaskGraph struct {
	// order preserves emission order for deterministic traversal.
	order []string
	// nodes maps type tag to the subtask itself.
	nodes map[string]*models.Subtask
	// edges maps type tag to the tags it depends on.
	edges map[string][]string
}

// BuildSubtaskGraph constructs the dependency graph from a breakdown.
// Returns an error if a cycle is detected or a dependency references an
// unknown subtask.
func BuildSubtaskGraph(subtasks []models.Subtask) (*SubtaskGraph, error) {
	g := &SubtaskGraph{
		nodes: make(map[string]*models.Subtask),
		edges: make(map[string][]string),
	}

	for i := range subtasks {
		st := &subtasks[i]
		g.order = append(g.order, st.Type)
		g.nodes[st.Type] = st
		g.edges[st.Type] = nil
	}

	for i := range subtasks {
		st := &subtasks[i]
		for _, dep := range st.DependsOn {
			if _, exists := g.nodes[dep]; !exists {
				return nil, fmt.Errorf("subtask %s depends on unknown subtask %s", st.Type, dep)
			}
			g.edges[st.Type] = append(g.edges[st.Type], dep)
		}
	}

	if g.hasCycle() {
		return nil, ErrCycleDetected
	}

	return g, nil
}

// hasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *SubtaskGraph) hasCycle() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.order))

	var visit func(tag string) bool
	visit = func(tag string) bool {
		colors[tag] = 1

		for _, dep := range g.edges[tag] {
			switch colors[dep] {
			case 1:
				// Found a back edge - cycle detected.
				return true
			case 0:
				if visit(dep) {
					return true
				}
			}
		}

		colors[tag] = 2
		return false
	}

	for _, tag := range g.order {
		if colors[tag] == 0 {
			if visit(tag) {
				return true
			}
		}
	}
	return false
}

// TopologicalSort returns subtask type tags in an order where every
// dependency comes before the subtasks that depend on it. Nodes are visited
// in emission order, so the result is deterministic.
func (g *SubtaskGraph) TopologicalSort() ([]string, error) {
	if g.hasCycle() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.order))
	var result []string

	var visit func(tag string)
	visit = func(tag string) {
		if visited[tag] {
			return
		}
		visited[tag] = true

		for _, dep := range g.edges[tag] {
			visit(dep)
		}

		result = append(result, tag)
	}

	for _, tag := range g.order {
		visit(tag)
	}

	return result, nil
}

// Get returns the subtask for a type tag, or nil if not present.
func (g *SubtaskGraph) Get(tag string) *models.Subtask {
	return g.nodes[tag]
}

// Size returns the number of subtasks in the graph.
func (g *SubtaskGraph) Size() int {
	return len(g.order)
}

// Dependencies returns the type tags the given subtask depends on.
func (g *SubtaskGraph) Dependencies(tag string) []string {
	return g.edges[tag]
}
