package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ascent-prep/ascent/internal/enginerr"
	"github.com/ascent-prep/ascent/internal/model"
)

// CreateSession stores a new session. The caller sets everything except the
// id and version, which are assigned here.
func (s *Store) CreateSession(sess model.Session) (model.Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	sess.Version = 1
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, student_id, jurisdiction_id, status, theta, se, questions_asked,
		 current_item_id, stop_reason, version, min_questions, max_questions, se_threshold,
		 time_limit_minutes, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.StudentID, sess.JurisdictionID, sess.Status, sess.Theta, sess.SE, sess.QuestionsAsked,
		sess.CurrentItemID, sess.StopReason, sess.Version, sess.Config.MinQuestions, sess.Config.MaxQuestions,
		sess.Config.SEThreshold, sess.Config.TimeLimitMinutes, sess.StartedAt, sess.CompletedAt,
	)
	return sess, err
}

// GetSession returns a session by id, or nil if absent.
func (s *Store) GetSession(id string) (*model.Session, error) {
	var sess model.Session
	err := s.db.QueryRow(
		`SELECT id, student_id, jurisdiction_id, status, theta, se, questions_asked,
		 current_item_id, stop_reason, version, min_questions, max_questions, se_threshold,
		 time_limit_minutes, started_at, completed_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.StudentID, &sess.JurisdictionID, &sess.Status, &sess.Theta, &sess.SE,
		&sess.QuestionsAsked, &sess.CurrentItemID, &sess.StopReason, &sess.Version,
		&sess.Config.MinQuestions, &sess.Config.MaxQuestions, &sess.Config.SEThreshold,
		&sess.Config.TimeLimitMinutes, &sess.StartedAt, &sess.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns all sessions, most recently started first.
func (s *Store) ListSessions() ([]model.Session, error) {
	rows, err := s.db.Query(
		`SELECT id, student_id, jurisdiction_id, status, theta, se, questions_asked,
		 current_item_id, stop_reason, version, min_questions, max_questions, se_threshold,
		 time_limit_minutes, started_at, completed_at
		 FROM sessions ORDER BY started_at DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.StudentID, &sess.JurisdictionID, &sess.Status, &sess.Theta, &sess.SE,
			&sess.QuestionsAsked, &sess.CurrentItemID, &sess.StopReason, &sess.Version,
			&sess.Config.MinQuestions, &sess.Config.MaxQuestions, &sess.Config.SEThreshold,
			&sess.Config.TimeLimitMinutes, &sess.StartedAt, &sess.CompletedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SessionsForJurisdiction returns a jurisdiction's sessions, oldest first.
func (s *Store) SessionsForJurisdiction(jurisdictionID string) ([]model.Session, error) {
	rows, err := s.db.Query(
		`SELECT id, student_id, jurisdiction_id, status, theta, se, questions_asked,
		 current_item_id, stop_reason, version, min_questions, max_questions, se_threshold,
		 time_limit_minutes, started_at, completed_at
		 FROM sessions WHERE jurisdiction_id = ? ORDER BY started_at, id`, jurisdictionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.StudentID, &sess.JurisdictionID, &sess.Status, &sess.Theta, &sess.SE,
			&sess.QuestionsAsked, &sess.CurrentItemID, &sess.StopReason, &sess.Version,
			&sess.Config.MinQuestions, &sess.Config.MaxQuestions, &sess.Config.SEThreshold,
			&sess.Config.TimeLimitMinutes, &sess.StartedAt, &sess.CompletedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ListResponses returns a session's responses in administration order.
func (s *Store) ListResponses(sessionID string) ([]model.Response, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, seq, item_id, selected_option, correct,
		 theta_before, theta_after, se_after, elapsed_seconds, created_at
		 FROM responses WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var responses []model.Response
	for rows.Next() {
		var r model.Response
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Seq, &r.ItemID, &r.SelectedOption, &r.Correct,
			&r.ThetaBefore, &r.ThetaAfter, &r.SEAfter, &r.ElapsedSeconds, &r.CreatedAt); err != nil {
			return nil, err
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// ApplyResponse persists a scored response and advances its session in one
// transaction. The session row is guarded by its version: when another
// submission has advanced the session first, nothing is written and a
// concurrency conflict comes back. sess carries the post-submission state
// with the version the caller originally read.
func (s *Store) ApplyResponse(resp model.Response, sess model.Session) error {
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE sessions SET status = ?, theta = ?, se = ?, questions_asked = ?,
		 current_item_id = ?, stop_reason = ?, completed_at = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		sess.Status, sess.Theta, sess.SE, sess.QuestionsAsked,
		sess.CurrentItemID, sess.StopReason, sess.CompletedAt,
		sess.ID, sess.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return enginerr.Conflict("submit response")
	}

	_, err = tx.Exec(
		`INSERT INTO responses (id, session_id, seq, item_id, selected_option, correct,
		 theta_before, theta_after, se_after, elapsed_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		resp.ID, resp.SessionID, resp.Seq, resp.ItemID, resp.SelectedOption, resp.Correct,
		resp.ThetaBefore, resp.ThetaAfter, resp.SEAfter, resp.ElapsedSeconds, resp.CreatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ExpireSession marks an in-progress session expired, guarded by its version.
func (s *Store) ExpireSession(sessionID string, version int64, at time.Time) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET status = ?, current_item_id = NULL, completed_at = ?, version = version + 1
		 WHERE id = ? AND version = ? AND status = ?`,
		model.SessionExpired, at, sessionID, version, model.SessionInProgress,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return enginerr.Conflict("expire session")
	}
	return nil
}
