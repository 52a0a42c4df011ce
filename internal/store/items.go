package store

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ascent-prep/ascent/internal/model"
)

// InsertItem stores a calibrated item together with its concept links.
func (s *Store) InsertItem(it model.Item) (model.Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}
	citations, err := json.Marshal(it.Citations)
	if err != nil {
		return it, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return it, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO items (id, jurisdiction_id, stem, option_a, option_b, option_c, option_d,
		 correct_option, discrimination, difficulty, guessing, topic, citations, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.JurisdictionID, it.Stem, it.Options[0], it.Options[1], it.Options[2], it.Options[3],
		it.CorrectOption, it.Discrimination, it.Difficulty, it.Guessing, it.Topic, string(citations), it.CreatedAt,
	)
	if err != nil {
		return it, err
	}
	for _, conceptID := range it.ConceptIDs {
		_, err := tx.Exec(
			`INSERT INTO item_concepts (item_id, concept_id) VALUES (?, ?)`,
			it.ID, conceptID,
		)
		if err != nil {
			return it, err
		}
	}
	return it, tx.Commit()
}

// GetItem returns an item by id with its concept links, or nil if absent.
func (s *Store) GetItem(id string) (*model.Item, error) {
	var it model.Item
	var citations string
	err := s.db.QueryRow(
		`SELECT id, jurisdiction_id, stem, option_a, option_b, option_c, option_d,
		 correct_option, discrimination, difficulty, guessing, topic, citations, created_at
		 FROM items WHERE id = ?`, id,
	).Scan(&it.ID, &it.JurisdictionID, &it.Stem, &it.Options[0], &it.Options[1], &it.Options[2], &it.Options[3],
		&it.CorrectOption, &it.Discrimination, &it.Difficulty, &it.Guessing, &it.Topic, &citations, &it.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(citations), &it.Citations); err != nil {
		return nil, err
	}
	it.ConceptIDs, err = s.conceptIDsForItem(it.ID)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// FindCandidateItems returns the calibrated pool for a jurisdiction, ordered
// by id. Topics narrows the pool to those topics when non-empty; excludeIDs
// removes already-administered items.
func (s *Store) FindCandidateItems(jurisdictionID string, topics, excludeIDs []string) ([]model.Item, error) {
	query := `SELECT id, jurisdiction_id, stem, option_a, option_b, option_c, option_d,
	 correct_option, discrimination, difficulty, guessing, topic, citations, created_at
	 FROM items WHERE jurisdiction_id = ?`
	args := []any{jurisdictionID}
	if len(topics) > 0 {
		query += ` AND topic IN (` + placeholders(len(topics)) + `)`
		for _, t := range topics {
			args = append(args, t)
		}
	}
	if len(excludeIDs) > 0 {
		query += ` AND id NOT IN (` + placeholders(len(excludeIDs)) + `)`
		for _, id := range excludeIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	return items, s.attachConceptIDs(jurisdictionID, items)
}

// ItemsForSession returns the items a session has administered, in the order
// they were asked.
func (s *Store) ItemsForSession(sessionID string) ([]model.Item, error) {
	rows, err := s.db.Query(
		`SELECT i.id, i.jurisdiction_id, i.stem, i.option_a, i.option_b, i.option_c, i.option_d,
		 i.correct_option, i.discrimination, i.difficulty, i.guessing, i.topic, i.citations, i.created_at
		 FROM items i JOIN responses r ON r.item_id = i.id
		 WHERE r.session_id = ? ORDER BY r.seq`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].ConceptIDs, err = s.conceptIDsForItem(items[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

// ItemCount returns the number of items in the database.
func (s *Store) ItemCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count)
	return count, err
}

// LinkedItemCounts returns, for every concept in a jurisdiction, how many
// items reference it. Concepts with no linked items appear with a zero count.
func (s *Store) LinkedItemCounts(jurisdictionID string) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT c.id, COUNT(ic.item_id) FROM concepts c
		 LEFT JOIN item_concepts ic ON ic.concept_id = c.id
		 WHERE c.jurisdiction_id = ?
		 GROUP BY c.id`, jurisdictionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

func (s *Store) conceptIDsForItem(itemID string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT concept_id FROM item_concepts WHERE item_id = ? ORDER BY concept_id`, itemID,
	)
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

// attachConceptIDs stitches concept links onto items in two queries instead
// of one per item.
func (s *Store) attachConceptIDs(jurisdictionID string, items []model.Item) error {
	rows, err := s.db.Query(
		`SELECT ic.item_id, ic.concept_id FROM item_concepts ic
		 JOIN items i ON i.id = ic.item_id
		 WHERE i.jurisdiction_id = ?
		 ORDER BY ic.item_id, ic.concept_id`, jurisdictionID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	links := make(map[string][]string)
	for rows.Next() {
		var itemID, conceptID string
		if err := rows.Scan(&itemID, &conceptID); err != nil {
			return err
		}
		links[itemID] = append(links[itemID], conceptID)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range items {
		items[i].ConceptIDs = links[items[i].ID]
	}
	return nil
}

func scanItems(rows *sql.Rows) ([]model.Item, error) {
	var items []model.Item
	for rows.Next() {
		var it model.Item
		var citations string
		if err := rows.Scan(&it.ID, &it.JurisdictionID, &it.Stem, &it.Options[0], &it.Options[1], &it.Options[2], &it.Options[3],
			&it.CorrectOption, &it.Discrimination, &it.Difficulty, &it.Guessing, &it.Topic, &citations, &it.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(citations), &it.Citations); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
