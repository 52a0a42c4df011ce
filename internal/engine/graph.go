package engine

import (
	"context"
	"fmt"

	"github.com/ascent-prep/ascent/internal/conceptgraph"
	"github.com/ascent-prep/ascent/internal/enginerr"
	"github.com/ascent-prep/ascent/internal/model"
)

// AddPrerequisite records that conceptID requires prereqID first. The store
// re-validates acyclicity inside the inserting transaction; a cycle-forming
// edge is refused.
func (s *service) AddPrerequisite(ctx context.Context, conceptID, prereqID string) (*model.ConceptEdge, error) {
	return s.store.AddPrerequisite(conceptID, prereqID)
}

// RemovePrerequisite deletes the edge conceptID -> prereqID.
func (s *service) RemovePrerequisite(ctx context.Context, conceptID, prereqID string) error {
	return s.store.RemovePrerequisite(conceptID, prereqID)
}

// PrerequisiteChain returns the concept's transitive prerequisites in
// dependency order, the concept itself last.
func (s *service) PrerequisiteChain(ctx context.Context, conceptID string) ([]model.Concept, error) {
	c, err := s.store.GetConcept(conceptID)
	if err != nil {
		return nil, fmt.Errorf("load concept: %w", err)
	}
	if c == nil {
		return nil, enginerr.NotFound("concept", conceptID)
	}

	g, byID, err := s.graphFor(c.JurisdictionID)
	if err != nil {
		return nil, err
	}

	chain := g.PrerequisiteChain(conceptID)
	out := make([]model.Concept, 0, len(chain))
	for _, id := range chain {
		if concept, ok := byID[id]; ok {
			out = append(out, concept)
		}
	}
	return out, nil
}

// ValidateGraph checks one jurisdiction's concept graph for structural
// problems: cycles and dangling edges as errors; unlinked concepts, orphans,
// and over-deep chains as warnings.
func (s *service) ValidateGraph(ctx context.Context, jurisdictionID string) (*conceptgraph.Report, error) {
	jur, err := s.store.GetJurisdiction(jurisdictionID)
	if err != nil {
		return nil, fmt.Errorf("load jurisdiction: %w", err)
	}
	if jur == nil {
		return nil, enginerr.NotFound("jurisdiction", jurisdictionID)
	}

	g, _, err := s.graphFor(jurisdictionID)
	if err != nil {
		return nil, err
	}
	linked, err := s.store.LinkedItemCounts(jurisdictionID)
	if err != nil {
		return nil, fmt.Errorf("count linked items: %w", err)
	}

	report := g.Validate(linked, conceptgraph.DepthWarnLimit)
	return &report, nil
}

// graphFor snapshots one jurisdiction's concepts and prerequisite edges.
func (s *service) graphFor(jurisdictionID string) (*conceptgraph.Graph, map[string]model.Concept, error) {
	concepts, err := s.store.ListConcepts(jurisdictionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load concepts: %w", err)
	}
	edges, err := s.store.ListEdges(jurisdictionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load edges: %w", err)
	}

	ids := make([]string, 0, len(concepts))
	byID := make(map[string]model.Concept, len(concepts))
	for _, c := range concepts {
		ids = append(ids, c.ID)
		byID[c.ID] = c
	}
	return conceptgraph.New(ids, edges), byID, nil
}
