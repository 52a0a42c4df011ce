package store

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ascent-prep/ascent/internal/model"
)

// CreateStudent inserts a new student.
func (s *Store) CreateStudent(st model.Student) (model.Student, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO students (id, display_name, xp, created_at) VALUES (?, ?, ?, ?)`,
		st.ID, st.DisplayName, st.XP, st.CreatedAt,
	)
	if err != nil {
		slog.Error("failed to create student", "display_name", st.DisplayName, "error", err)
		return st, err
	}
	slog.Info("created student", "id", st.ID, "display_name", st.DisplayName)
	return st, nil
}

// GetStudent returns a student by id, or nil if absent.
func (s *Store) GetStudent(id string) (*model.Student, error) {
	var st model.Student
	err := s.db.QueryRow(
		`SELECT id, display_name, xp, created_at FROM students WHERE id = ?`, id,
	).Scan(&st.ID, &st.DisplayName, &st.XP, &st.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListStudents returns all students, oldest account first.
func (s *Store) ListStudents() ([]model.Student, error) {
	rows, err := s.db.Query(
		`SELECT id, display_name, xp, created_at FROM students ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var students []model.Student
	for rows.Next() {
		var st model.Student
		if err := rows.Scan(&st.ID, &st.DisplayName, &st.XP, &st.CreatedAt); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// StudentCount returns the total number of students.
func (s *Store) StudentCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM students`).Scan(&count)
	return count, err
}
