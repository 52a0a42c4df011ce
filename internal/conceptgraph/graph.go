// Package conceptgraph provides pure operations over a snapshot of the
// concept-prerequisite DAG. A Graph is built fresh from the persisted edge
// list for each operation and never cached across them, so readers always
// see the committed state.
package conceptgraph

import (
	"fmt"
	"sort"

	"github.com/ascent-prep/ascent/internal/model"
)

// Graph is an immutable snapshot of concepts and prerequisite edges.
// An edge (concept -> prerequisite) means the concept requires the
// prerequisite first.
type Graph struct {
	nodes      []string
	known      map[string]bool
	prereqs    map[string][]string
	dependents map[string][]string
}

// New builds a snapshot from concept ids and edges. Adjacency lists are kept
// sorted so every traversal below is deterministic. Edges that reference
// unknown concepts are retained for Validate to flag but never traversed.
func New(conceptIDs []string, edges []model.ConceptEdge) *Graph {
	g := &Graph{
		known:      make(map[string]bool, len(conceptIDs)),
		prereqs:    make(map[string][]string),
		dependents: make(map[string][]string),
	}
	for _, id := range conceptIDs {
		if g.known[id] {
			continue
		}
		g.known[id] = true
		g.nodes = append(g.nodes, id)
	}
	sort.Strings(g.nodes)

	seen := make(map[model.ConceptEdge]bool, len(edges))
	for _, e := range edges {
		if seen[e] {
			continue
		}
		seen[e] = true
		g.prereqs[e.ConceptID] = append(g.prereqs[e.ConceptID], e.PrerequisiteID)
		g.dependents[e.PrerequisiteID] = append(g.dependents[e.PrerequisiteID], e.ConceptID)
	}
	for _, adj := range []map[string][]string{g.prereqs, g.dependents} {
		for _, ids := range adj {
			sort.Strings(ids)
		}
	}
	return g
}

// Nodes returns all concept ids in sorted order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Contains reports whether the concept is part of this snapshot.
func (g *Graph) Contains(id string) bool {
	return g.known[id]
}

// Prerequisites returns the direct prerequisites of a concept.
func (g *Graph) Prerequisites(id string) []string {
	return append([]string(nil), g.prereqs[id]...)
}

// Dependents returns the concepts that directly require id.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// WouldCreateCycle reports whether adding the edge concept -> prereq would
// close a cycle: true iff conceptID is already reachable from prereqID along
// prerequisite edges. A self-edge always counts as a cycle.
func (g *Graph) WouldCreateCycle(conceptID, prereqID string) bool {
	if conceptID == prereqID {
		return true
	}
	visited := map[string]bool{prereqID: true}
	queue := []string{prereqID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.prereqs[cur] {
			if next == conceptID {
				return true
			}
			if !g.known[next] || visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, next)
		}
	}
	return false
}

// PrerequisiteChain returns the transitive prerequisites of conceptID in
// topological order (every prerequisite before anything that requires it),
// with conceptID itself last.
func (g *Graph) PrerequisiteChain(conceptID string) []string {
	closure := map[string]bool{conceptID: true}
	queue := []string{conceptID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range g.prereqs[cur] {
			if !g.known[p] || closure[p] {
				continue
			}
			closure[p] = true
			queue = append(queue, p)
		}
	}

	ids := make([]string, 0, len(closure))
	for id := range closure {
		ids = append(ids, id)
	}
	ordered, err := g.sortSubset(ids)
	if err != nil {
		// The insertion guard keeps the persisted graph acyclic; if a cycle
		// slipped in anyway, return the closure in lexical order rather
		// than looping.
		sort.Strings(ids)
		return ids
	}
	return ordered
}

// TopologicalSort orders every concept so that prerequisites come before the
// concepts that require them (Kahn's algorithm). Ties break lexically, so the
// result is stable across calls. A residual cycle yields a CycleError.
func (g *Graph) TopologicalSort() ([]string, error) {
	return g.sortSubset(g.nodes)
}

func (g *Graph) sortSubset(subset []string) ([]string, error) {
	in := make(map[string]bool, len(subset))
	for _, id := range subset {
		in[id] = true
	}

	indegree := make(map[string]int, len(subset))
	for _, id := range subset {
		for _, p := range g.prereqs[id] {
			if in[p] {
				indegree[id]++
			}
		}
	}

	var ready []string
	for _, id := range subset {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(subset))
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)

		changed := false
		for _, dep := range g.dependents[cur] {
			if !in[dep] {
				continue
			}
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
				changed = true
			}
		}
		if changed {
			sort.Strings(ready)
		}
	}

	if len(order) != len(subset) {
		var remaining []string
		emitted := make(map[string]bool, len(order))
		for _, id := range order {
			emitted[id] = true
		}
		for _, id := range subset {
			if !emitted[id] {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, &CycleError{Concepts: remaining}
	}
	return order, nil
}

// CycleError reports the concepts left unordered by a topological sort.
type CycleError struct {
	Concepts []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("prerequisite cycle among %d concepts: %v", len(e.Concepts), e.Concepts)
}
