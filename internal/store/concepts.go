package store

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/ascent-prep/ascent/internal/conceptgraph"
	"github.com/ascent-prep/ascent/internal/enginerr"
	"github.com/ascent-prep/ascent/internal/model"
)

// InsertConcept stores a concept, assigning an id when absent.
func (s *Store) InsertConcept(c model.Concept) (model.Concept, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO concepts (id, jurisdiction_id, slug, name, category, difficulty, estimated_minutes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.JurisdictionID, c.Slug, c.Name, c.Category, c.Difficulty, c.EstimatedMinutes,
	)
	return c, err
}

// GetConcept returns a concept by id, or nil if absent.
func (s *Store) GetConcept(id string) (*model.Concept, error) {
	var c model.Concept
	err := s.db.QueryRow(
		`SELECT id, jurisdiction_id, slug, name, category, difficulty, estimated_minutes
		 FROM concepts WHERE id = ?`, id,
	).Scan(&c.ID, &c.JurisdictionID, &c.Slug, &c.Name, &c.Category, &c.Difficulty, &c.EstimatedMinutes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConceptBySlug returns a concept by its jurisdiction-scoped slug, or nil if absent.
func (s *Store) GetConceptBySlug(jurisdictionID, slug string) (*model.Concept, error) {
	var c model.Concept
	err := s.db.QueryRow(
		`SELECT id, jurisdiction_id, slug, name, category, difficulty, estimated_minutes
		 FROM concepts WHERE jurisdiction_id = ? AND slug = ?`, jurisdictionID, slug,
	).Scan(&c.ID, &c.JurisdictionID, &c.Slug, &c.Name, &c.Category, &c.Difficulty, &c.EstimatedMinutes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConcepts returns every concept in a jurisdiction ordered by slug.
func (s *Store) ListConcepts(jurisdictionID string) ([]model.Concept, error) {
	rows, err := s.db.Query(
		`SELECT id, jurisdiction_id, slug, name, category, difficulty, estimated_minutes
		 FROM concepts WHERE jurisdiction_id = ? ORDER BY slug`, jurisdictionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var concepts []model.Concept
	for rows.Next() {
		var c model.Concept
		if err := rows.Scan(&c.ID, &c.JurisdictionID, &c.Slug, &c.Name, &c.Category, &c.Difficulty, &c.EstimatedMinutes); err != nil {
			return nil, err
		}
		concepts = append(concepts, c)
	}
	return concepts, rows.Err()
}

// ListEdges returns every prerequisite edge between concepts of a jurisdiction.
func (s *Store) ListEdges(jurisdictionID string) ([]model.ConceptEdge, error) {
	rows, err := s.db.Query(
		`SELECT e.concept_id, e.prerequisite_id FROM concept_edges e
		 JOIN concepts c ON c.id = e.concept_id
		 WHERE c.jurisdiction_id = ?
		 ORDER BY e.concept_id, e.prerequisite_id`, jurisdictionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEdges(rows)
}

// AddPrerequisite inserts a prerequisite edge after re-validating acyclicity
// against the edges read inside the same transaction, so two concurrent
// insertions cannot jointly create a cycle. Inserting an edge that already
// exists is a no-op returning the existing edge.
func (s *Store) AddPrerequisite(conceptID, prereqID string) (*model.ConceptEdge, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var conceptJur, prereqJur string
	err = tx.QueryRow(`SELECT jurisdiction_id FROM concepts WHERE id = ?`, conceptID).Scan(&conceptJur)
	if err == sql.ErrNoRows {
		return nil, enginerr.NotFound("concept", conceptID)
	}
	if err != nil {
		return nil, err
	}
	err = tx.QueryRow(`SELECT jurisdiction_id FROM concepts WHERE id = ?`, prereqID).Scan(&prereqJur)
	if err == sql.ErrNoRows {
		return nil, enginerr.NotFound("concept", prereqID)
	}
	if err != nil {
		return nil, err
	}
	if conceptJur != prereqJur {
		return nil, enginerr.Constraint("concepts %s and %s belong to different jurisdictions", conceptID, prereqID)
	}

	conceptIDs, err := conceptIDsForJurisdictionTx(tx, conceptJur)
	if err != nil {
		return nil, err
	}
	edgeRows, err := tx.Query(
		`SELECT e.concept_id, e.prerequisite_id FROM concept_edges e
		 JOIN concepts c ON c.id = e.concept_id
		 WHERE c.jurisdiction_id = ?`, conceptJur,
	)
	if err != nil {
		return nil, err
	}
	edges, err := scanEdges(edgeRows)
	if err != nil {
		return nil, err
	}

	edge := model.ConceptEdge{ConceptID: conceptID, PrerequisiteID: prereqID}
	for _, e := range edges {
		if e == edge {
			return &edge, tx.Commit()
		}
	}

	g := conceptgraph.New(conceptIDs, edges)
	if g.WouldCreateCycle(conceptID, prereqID) {
		return nil, enginerr.Constraint("making %s a prerequisite of %s would create a cycle", prereqID, conceptID)
	}

	_, err = tx.Exec(
		`INSERT INTO concept_edges (concept_id, prerequisite_id) VALUES (?, ?)`,
		conceptID, prereqID,
	)
	if err != nil {
		return nil, err
	}
	return &edge, tx.Commit()
}

// RemovePrerequisite deletes a prerequisite edge.
func (s *Store) RemovePrerequisite(conceptID, prereqID string) error {
	res, err := s.db.Exec(
		`DELETE FROM concept_edges WHERE concept_id = ? AND prerequisite_id = ?`,
		conceptID, prereqID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return enginerr.NotFound("prerequisite edge", conceptID+" -> "+prereqID)
	}
	return nil
}

func conceptIDsForJurisdictionTx(tx *sql.Tx, jurisdictionID string) ([]string, error) {
	rows, err := tx.Query(`SELECT id FROM concepts WHERE jurisdiction_id = ?`, jurisdictionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanEdges(rows *sql.Rows) ([]model.ConceptEdge, error) {
	defer rows.Close()
	var edges []model.ConceptEdge
	for rows.Next() {
		var e model.ConceptEdge
		if err := rows.Scan(&e.ConceptID, &e.PrerequisiteID); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
