package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ascent-prep/ascent/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jurisdictions (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		passing_score REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		xp INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS concepts (
		id TEXT PRIMARY KEY,
		jurisdiction_id TEXT NOT NULL,
		slug TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL,
		estimated_minutes INTEGER NOT NULL DEFAULT 0,
		UNIQUE (jurisdiction_id, slug),
		FOREIGN KEY (jurisdiction_id) REFERENCES jurisdictions(id)
	);

	CREATE TABLE IF NOT EXISTS concept_edges (
		concept_id TEXT NOT NULL,
		prerequisite_id TEXT NOT NULL,
		PRIMARY KEY (concept_id, prerequisite_id),
		FOREIGN KEY (concept_id) REFERENCES concepts(id),
		FOREIGN KEY (prerequisite_id) REFERENCES concepts(id)
	);

	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		jurisdiction_id TEXT NOT NULL,
		stem TEXT NOT NULL,
		option_a TEXT NOT NULL,
		option_b TEXT NOT NULL,
		option_c TEXT NOT NULL,
		option_d TEXT NOT NULL,
		correct_option TEXT NOT NULL,
		discrimination REAL NOT NULL,
		difficulty REAL NOT NULL,
		guessing REAL NOT NULL,
		topic TEXT NOT NULL,
		citations TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (jurisdiction_id) REFERENCES jurisdictions(id)
	);

	CREATE TABLE IF NOT EXISTS item_concepts (
		item_id TEXT NOT NULL,
		concept_id TEXT NOT NULL,
		PRIMARY KEY (item_id, concept_id),
		FOREIGN KEY (item_id) REFERENCES items(id),
		FOREIGN KEY (concept_id) REFERENCES concepts(id)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		jurisdiction_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		theta REAL NOT NULL DEFAULT 0,
		se REAL NOT NULL DEFAULT 1,
		questions_asked INTEGER NOT NULL DEFAULT 0,
		current_item_id TEXT,
		stop_reason TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		min_questions INTEGER NOT NULL,
		max_questions INTEGER NOT NULL,
		se_threshold REAL NOT NULL,
		time_limit_minutes INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		FOREIGN KEY (student_id) REFERENCES students(id),
		FOREIGN KEY (jurisdiction_id) REFERENCES jurisdictions(id)
	);

	CREATE TABLE IF NOT EXISTS responses (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		item_id TEXT NOT NULL,
		selected_option TEXT NOT NULL,
		correct INTEGER NOT NULL,
		theta_before REAL NOT NULL,
		theta_after REAL NOT NULL,
		se_after REAL NOT NULL,
		elapsed_seconds INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		UNIQUE (session_id, seq),
		FOREIGN KEY (session_id) REFERENCES sessions(id),
		FOREIGN KEY (item_id) REFERENCES items(id)
	);

	CREATE TABLE IF NOT EXISTS mastery (
		student_id TEXT NOT NULL,
		concept_id TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		correct INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (student_id, concept_id),
		FOREIGN KEY (student_id) REFERENCES students(id),
		FOREIGN KEY (concept_id) REFERENCES concepts(id)
	);

	CREATE TABLE IF NOT EXISTS learning_paths (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		jurisdiction_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		estimated_days INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (student_id) REFERENCES students(id),
		FOREIGN KEY (jurisdiction_id) REFERENCES jurisdictions(id),
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS path_steps (
		id TEXT PRIMARY KEY,
		path_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		concept_id TEXT NOT NULL,
		title TEXT NOT NULL,
		required_accuracy REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'locked',
		xp_reward INTEGER NOT NULL DEFAULT 0,
		UNIQUE (path_id, seq),
		FOREIGN KEY (path_id) REFERENCES learning_paths(id),
		FOREIGN KEY (concept_id) REFERENCES concepts(id)
	);

	CREATE TABLE IF NOT EXISTS milestones (
		id TEXT PRIMARY KEY,
		path_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		title TEXT NOT NULL,
		first_step_seq INTEGER NOT NULL,
		last_step_seq INTEGER NOT NULL,
		xp_reward INTEGER NOT NULL DEFAULT 0,
		unlocked INTEGER NOT NULL DEFAULT 0,
		unlocked_at DATETIME,
		UNIQUE (path_id, seq),
		FOREIGN KEY (path_id) REFERENCES learning_paths(id)
	);

	CREATE TABLE IF NOT EXISTS step_attempts (
		id TEXT PRIMARY KEY,
		step_id TEXT NOT NULL,
		item_id TEXT NOT NULL DEFAULT '',
		correct INTEGER NOT NULL,
		elapsed_seconds INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (step_id) REFERENCES path_steps(id)
	);

	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertJurisdiction stores a jurisdiction, assigning an id when absent.
func (s *Store) InsertJurisdiction(j model.Jurisdiction) (model.Jurisdiction, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO jurisdictions (id, code, name, passing_score) VALUES (?, ?, ?, ?)`,
		j.ID, j.Code, j.Name, j.PassingScore,
	)
	return j, err
}

// GetJurisdiction returns a jurisdiction by id, or nil if absent.
func (s *Store) GetJurisdiction(id string) (*model.Jurisdiction, error) {
	var j model.Jurisdiction
	err := s.db.QueryRow(
		`SELECT id, code, name, passing_score FROM jurisdictions WHERE id = ?`, id,
	).Scan(&j.ID, &j.Code, &j.Name, &j.PassingScore)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// GetJurisdictionByCode returns a jurisdiction by its short code, or nil if absent.
func (s *Store) GetJurisdictionByCode(code string) (*model.Jurisdiction, error) {
	var j model.Jurisdiction
	err := s.db.QueryRow(
		`SELECT id, code, name, passing_score FROM jurisdictions WHERE code = ?`, code,
	).Scan(&j.ID, &j.Code, &j.Name, &j.PassingScore)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ListJurisdictions returns all jurisdictions ordered by code.
func (s *Store) ListJurisdictions() ([]model.Jurisdiction, error) {
	rows, err := s.db.Query(`SELECT id, code, name, passing_score FROM jurisdictions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jurisdictions []model.Jurisdiction
	for rows.Next() {
		var j model.Jurisdiction
		if err := rows.Scan(&j.ID, &j.Code, &j.Name, &j.PassingScore); err != nil {
			return nil, err
		}
		jurisdictions = append(jurisdictions, j)
	}
	return jurisdictions, rows.Err()
}
