package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ascent-prep/ascent/internal/model"
)

// CreatePath stores a generated learning path with its steps and milestones
// in one transaction, assigning ids throughout.
func (s *Store) CreatePath(p model.LearningPath) (model.LearningPath, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return p, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO learning_paths (id, student_id, jurisdiction_id, session_id, status, estimated_days, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.StudentID, p.JurisdictionID, p.SessionID, p.Status, p.EstimatedDays, p.CreatedAt,
	)
	if err != nil {
		return p, err
	}

	for i := range p.Steps {
		step := &p.Steps[i]
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		step.PathID = p.ID
		_, err := tx.Exec(
			`INSERT INTO path_steps (id, path_id, seq, kind, concept_id, title, required_accuracy, status, xp_reward)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			step.ID, step.PathID, step.Seq, step.Kind, step.ConceptID, step.Title,
			step.RequiredAccuracy, step.Status, step.XPReward,
		)
		if err != nil {
			return p, err
		}
	}

	for i := range p.Milestones {
		m := &p.Milestones[i]
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.PathID = p.ID
		_, err := tx.Exec(
			`INSERT INTO milestones (id, path_id, seq, title, first_step_seq, last_step_seq, xp_reward, unlocked, unlocked_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.PathID, m.Seq, m.Title, m.FirstStepSeq, m.LastStepSeq, m.XPReward, m.Unlocked, m.UnlockedAt,
		)
		if err != nil {
			return p, err
		}
	}

	return p, tx.Commit()
}

// GetPath returns a learning path with its steps and milestones, or nil if absent.
func (s *Store) GetPath(id string) (*model.LearningPath, error) {
	var p model.LearningPath
	err := s.db.QueryRow(
		`SELECT id, student_id, jurisdiction_id, session_id, status, estimated_days, created_at
		 FROM learning_paths WHERE id = ?`, id,
	).Scan(&p.ID, &p.StudentID, &p.JurisdictionID, &p.SessionID, &p.Status, &p.EstimatedDays, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Steps, err = s.stepsForPath(p.ID); err != nil {
		return nil, err
	}
	if p.Milestones, err = s.milestonesForPath(p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetStep returns a path step by id, or nil if absent.
func (s *Store) GetStep(id string) (*model.PathStep, error) {
	var step model.PathStep
	err := s.db.QueryRow(
		`SELECT id, path_id, seq, kind, concept_id, title, required_accuracy, status, xp_reward
		 FROM path_steps WHERE id = ?`, id,
	).Scan(&step.ID, &step.PathID, &step.Seq, &step.Kind, &step.ConceptID, &step.Title,
		&step.RequiredAccuracy, &step.Status, &step.XPReward)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &step, nil
}

func (s *Store) stepsForPath(pathID string) ([]model.PathStep, error) {
	rows, err := s.db.Query(
		`SELECT id, path_id, seq, kind, concept_id, title, required_accuracy, status, xp_reward
		 FROM path_steps WHERE path_id = ? ORDER BY seq`, pathID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var steps []model.PathStep
	for rows.Next() {
		var step model.PathStep
		if err := rows.Scan(&step.ID, &step.PathID, &step.Seq, &step.Kind, &step.ConceptID, &step.Title,
			&step.RequiredAccuracy, &step.Status, &step.XPReward); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (s *Store) milestonesForPath(pathID string) ([]model.Milestone, error) {
	rows, err := s.db.Query(
		`SELECT id, path_id, seq, title, first_step_seq, last_step_seq, xp_reward, unlocked, unlocked_at
		 FROM milestones WHERE path_id = ? ORDER BY seq`, pathID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var milestones []model.Milestone
	for rows.Next() {
		var m model.Milestone
		if err := rows.Scan(&m.ID, &m.PathID, &m.Seq, &m.Title, &m.FirstStepSeq, &m.LastStepSeq,
			&m.XPReward, &m.Unlocked, &m.UnlockedAt); err != nil {
			return nil, err
		}
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}

// ListStepAttempts returns a step's attempts in recording order.
func (s *Store) ListStepAttempts(stepID string) ([]model.StepAttempt, error) {
	rows, err := s.db.Query(
		`SELECT id, step_id, item_id, correct, elapsed_seconds, created_at
		 FROM step_attempts WHERE step_id = ? ORDER BY created_at, id`, stepID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.StepAttempt
	for rows.Next() {
		var a model.StepAttempt
		if err := rows.Scan(&a.ID, &a.StepID, &a.ItemID, &a.Correct, &a.ElapsedSeconds, &a.CreatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// GetMastery returns the mastery aggregate for a (student, concept) pair, or
// nil when the student has never practiced the concept.
func (s *Store) GetMastery(studentID, conceptID string) (*model.Mastery, error) {
	var m model.Mastery
	err := s.db.QueryRow(
		`SELECT student_id, concept_id, attempts, correct, updated_at
		 FROM mastery WHERE student_id = ? AND concept_id = ?`, studentID, conceptID,
	).Scan(&m.StudentID, &m.ConceptID, &m.Attempts, &m.Correct, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMastery returns every mastery aggregate a student has accumulated.
func (s *Store) ListMastery(studentID string) ([]model.Mastery, error) {
	rows, err := s.db.Query(
		`SELECT student_id, concept_id, attempts, correct, updated_at
		 FROM mastery WHERE student_id = ? ORDER BY concept_id`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var aggregates []model.Mastery
	for rows.Next() {
		var m model.Mastery
		if err := rows.Scan(&m.StudentID, &m.ConceptID, &m.Attempts, &m.Correct, &m.UpdatedAt); err != nil {
			return nil, err
		}
		aggregates = append(aggregates, m)
	}
	return aggregates, rows.Err()
}

// StepAttemptUpdate carries one recorded attempt plus the state transitions
// the caller derived from it. The store applies whichever transitions still
// hold when the transaction runs; a transition another writer already made
// is skipped rather than repeated, so rewards stay exactly-once.
type StepAttemptUpdate struct {
	Attempt   model.StepAttempt
	StudentID string
	ConceptID string

	CompleteStep bool
	StepXP       int

	// UnlockStepID names the next step to open when the step completes.
	UnlockStepID string

	// MilestoneID names the milestone whose covered steps are all complete
	// after this attempt.
	MilestoneID string
	MilestoneXP int

	PathID       string
	CompletePath bool
}

// StepAttemptResult reports which transitions this call actually performed.
type StepAttemptResult struct {
	StepCompleted     bool
	UnlockedStepID    string
	MilestoneUnlocked bool
	PathCompleted     bool
	XPAwarded         int
}

// ApplyStepAttempt records an attempt and applies its consequences in one
// transaction: the mastery aggregate always advances; step completion, the
// follow-on unlock, milestone rewards, student XP, and path completion apply
// only when this attempt is the one that completes the step.
func (s *Store) ApplyStepAttempt(u StepAttemptUpdate) (StepAttemptResult, error) {
	var result StepAttemptResult

	if u.Attempt.ID == "" {
		u.Attempt.ID = uuid.NewString()
	}
	if u.Attempt.CreatedAt.IsZero() {
		u.Attempt.CreatedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return result, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO step_attempts (id, step_id, item_id, correct, elapsed_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.Attempt.ID, u.Attempt.StepID, u.Attempt.ItemID, u.Attempt.Correct,
		u.Attempt.ElapsedSeconds, u.Attempt.CreatedAt,
	)
	if err != nil {
		return result, err
	}

	correctDelta := 0
	if u.Attempt.Correct {
		correctDelta = 1
	}
	_, err = tx.Exec(
		`INSERT INTO mastery (student_id, concept_id, attempts, correct, updated_at)
		 VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT(student_id, concept_id) DO UPDATE SET
		 attempts = attempts + 1, correct = correct + ?, updated_at = ?`,
		u.StudentID, u.ConceptID, correctDelta, u.Attempt.CreatedAt, correctDelta, u.Attempt.CreatedAt,
	)
	if err != nil {
		return result, err
	}

	if !u.CompleteStep {
		return result, tx.Commit()
	}

	res, err := tx.Exec(
		`UPDATE path_steps SET status = ? WHERE id = ? AND status = ?`,
		model.StepCompleted, u.Attempt.StepID, model.StepInProgress,
	)
	if err != nil {
		return result, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return result, err
	}
	if n == 0 {
		// Another writer completed the step; the attempt and mastery above
		// still count, the rewards do not.
		return result, tx.Commit()
	}
	result.StepCompleted = true
	result.XPAwarded += u.StepXP

	if u.UnlockStepID != "" {
		res, err := tx.Exec(
			`UPDATE path_steps SET status = ? WHERE id = ? AND status = ?`,
			model.StepInProgress, u.UnlockStepID, model.StepLocked,
		)
		if err != nil {
			return result, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return result, err
		} else if n > 0 {
			result.UnlockedStepID = u.UnlockStepID
		}
	}

	if u.MilestoneID != "" {
		res, err := tx.Exec(
			`UPDATE milestones SET unlocked = 1, unlocked_at = ? WHERE id = ? AND unlocked = 0`,
			u.Attempt.CreatedAt, u.MilestoneID,
		)
		if err != nil {
			return result, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return result, err
		} else if n > 0 {
			result.MilestoneUnlocked = true
			result.XPAwarded += u.MilestoneXP
		}
	}

	if result.XPAwarded > 0 {
		_, err := tx.Exec(`UPDATE students SET xp = xp + ? WHERE id = ?`, result.XPAwarded, u.StudentID)
		if err != nil {
			return result, err
		}
	}

	if u.CompletePath {
		res, err := tx.Exec(
			`UPDATE learning_paths SET status = ? WHERE id = ? AND status = ?`,
			model.PathCompleted, u.PathID, model.PathActive,
		)
		if err != nil {
			return result, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return result, err
		} else if n > 0 {
			result.PathCompleted = true
		}
	}

	return result, tx.Commit()
}
