package conceptgraph

import (
	"errors"
	"fmt"
	"sort"
)

// Issue codes reported by Validate.
const (
	IssueCycle        = "cycle"
	IssueDanglingEdge = "dangling_edge"
	IssueNoItems      = "no_linked_items"
	IssueOrphan       = "orphan"
	IssueChainDepth   = "chain_depth"
)

// DepthWarnLimit is the prerequisite chain depth beyond which Validate warns.
// Chains deeper than this front-load too much remediation to be actionable.
const DepthWarnLimit = 6

// Issue is one validation finding.
type Issue struct {
	Code      string `json:"code"`
	ConceptID string `json:"concept_id,omitempty"`
	Message   string `json:"message"`
}

// Report collects validation findings. Errors make the graph unusable for
// scheduling; warnings flag curriculum quality problems.
type Report struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Valid reports whether the graph has no errors. Warnings do not count.
func (r Report) Valid() bool {
	return len(r.Errors) == 0
}

// Validate checks the snapshot for structural problems. linkedItems maps
// concept id to the number of items referencing it; maxDepth bounds the
// acceptable prerequisite chain length in concepts (0 disables the check).
func (g *Graph) Validate(linkedItems map[string]int, maxDepth int) Report {
	var r Report

	// Edges must reference known concepts on both ends.
	for concept, prereqs := range g.prereqs {
		if !g.known[concept] {
			r.Errors = append(r.Errors, Issue{
				Code:      IssueDanglingEdge,
				ConceptID: concept,
				Message:   fmt.Sprintf("edge references unknown concept %q", concept),
			})
		}
		for _, p := range prereqs {
			if !g.known[p] {
				r.Errors = append(r.Errors, Issue{
					Code:      IssueDanglingEdge,
					ConceptID: concept,
					Message:   fmt.Sprintf("concept %q requires unknown concept %q", concept, p),
				})
			}
		}
	}

	order, err := g.TopologicalSort()
	var cycleErr *CycleError
	if errors.As(err, &cycleErr) {
		for _, id := range cycleErr.Concepts {
			r.Errors = append(r.Errors, Issue{
				Code:      IssueCycle,
				ConceptID: id,
				Message:   fmt.Sprintf("concept %q is part of a prerequisite cycle", id),
			})
		}
	}

	for _, id := range g.nodes {
		if linkedItems[id] == 0 {
			r.Warnings = append(r.Warnings, Issue{
				Code:      IssueNoItems,
				ConceptID: id,
				Message:   fmt.Sprintf("concept %q has no linked items", id),
			})
		}
		if len(g.prereqs[id]) == 0 && len(g.dependents[id]) == 0 {
			r.Warnings = append(r.Warnings, Issue{
				Code:      IssueOrphan,
				ConceptID: id,
				Message:   fmt.Sprintf("concept %q has no prerequisites and nothing depends on it", id),
			})
		}
	}

	// Chain depth over the acyclic part, longest-path in topo order.
	if maxDepth > 0 && order != nil {
		depth := make(map[string]int, len(order))
		for _, id := range order {
			depth[id] = 1
			for _, p := range g.prereqs[id] {
				if d, ok := depth[p]; ok && d+1 > depth[id] {
					depth[id] = d + 1
				}
			}
		}
		var deep []string
		for id, d := range depth {
			if d > maxDepth {
				deep = append(deep, id)
			}
		}
		sort.Strings(deep)
		for _, id := range deep {
			r.Warnings = append(r.Warnings, Issue{
				Code:      IssueChainDepth,
				ConceptID: id,
				Message:   fmt.Sprintf("concept %q sits at prerequisite depth %d (limit %d)", id, depth[id], maxDepth),
			})
		}
	}

	sortIssues(r.Errors)
	sortIssues(r.Warnings)
	return r
}

func sortIssues(issues []Issue) {
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Code != issues[j].Code {
			return issues[i].Code < issues[j].Code
		}
		if issues[i].ConceptID != issues[j].ConceptID {
			return issues[i].ConceptID < issues[j].ConceptID
		}
		return issues[i].Message < issues[j].Message
	})
}
