package engine

import (
	"context"
	"fmt"

	"github.com/ascent-prep/ascent/internal/enginerr"
	"github.com/ascent-prep/ascent/internal/events"
	"github.com/ascent-prep/ascent/internal/model"
	"github.com/ascent-prep/ascent/internal/pathgen"
	"github.com/ascent-prep/ascent/internal/progress"
	"github.com/ascent-prep/ascent/internal/store"
)

// GeneratePath derives a learning path from a completed session's report:
// the weak concepts plus their unmastered prerequisites, in dependency order.
func (s *service) GeneratePath(ctx context.Context, sessionID string, profile model.PaceProfile) (*model.LearningPath, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, enginerr.NotFound("session", sessionID)
	}
	if sess.Status != model.SessionCompleted {
		return nil, enginerr.InvalidState("generate path", fmt.Sprintf("session is %s", sess.Status))
	}

	report, err := s.buildReport(*sess)
	if err != nil {
		return nil, err
	}
	g, concepts, err := s.graphFor(sess.JurisdictionID)
	if err != nil {
		return nil, err
	}
	masteries, err := s.store.ListMastery(sess.StudentID)
	if err != nil {
		return nil, fmt.Errorf("load mastery: %w", err)
	}
	byConcept := make(map[string]model.Mastery, len(masteries))
	for _, m := range masteries {
		byConcept[m.ConceptID] = m
	}

	path, err := pathgen.Generate(ctx, pathgen.Input{
		Report:   *report,
		Graph:    g,
		Concepts: concepts,
		Mastery:  byConcept,
		Profile:  profile,
	})
	if err != nil {
		return nil, fmt.Errorf("generate path: %w", err)
	}
	path.StudentID = sess.StudentID
	path.JurisdictionID = sess.JurisdictionID
	path.SessionID = sessionID
	path.CreatedAt = s.now()

	created, err := s.store.CreatePath(path)
	if err != nil {
		return nil, fmt.Errorf("create path: %w", err)
	}
	return &created, nil
}

// RecordStepAttempt scores one practice answer against a step. The attempt
// and the mastery aggregate always persist; completion, the follow-on
// unlock, milestone rewards, and path completion apply only when this
// attempt satisfies the step's rule, and each transition lands exactly once
// even under concurrent submissions.
func (s *service) RecordStepAttempt(ctx context.Context, stepID, itemID string, correct bool, elapsedSeconds int) (*AttemptResult, error) {
	if elapsedSeconds < 0 {
		return nil, enginerr.Constraint("elapsed_seconds must not be negative")
	}

	step, err := s.store.GetStep(stepID)
	if err != nil {
		return nil, fmt.Errorf("load step: %w", err)
	}
	if step == nil {
		return nil, enginerr.NotFound("step", stepID)
	}
	switch step.Status {
	case model.StepLocked:
		return nil, enginerr.InvalidState("record step attempt", "step is locked")
	case model.StepCompleted:
		return nil, enginerr.InvalidState("record step attempt", "step is already completed")
	}

	path, err := s.store.GetPath(step.PathID)
	if err != nil {
		return nil, fmt.Errorf("load path: %w", err)
	}
	if path == nil {
		return nil, enginerr.NotFound("path", step.PathID)
	}

	previous, err := s.store.ListStepAttempts(stepID)
	if err != nil {
		return nil, fmt.Errorf("load step attempts: %w", err)
	}
	attempts := len(previous) + 1
	correctCount := 0
	for _, a := range previous {
		if a.Correct {
			correctCount++
		}
	}
	if correct {
		correctCount++
	}

	upd := store.StepAttemptUpdate{
		Attempt: model.StepAttempt{
			StepID:         stepID,
			ItemID:         itemID,
			Correct:        correct,
			ElapsedSeconds: elapsedSeconds,
			CreatedAt:      s.now(),
		},
		StudentID: path.StudentID,
		ConceptID: step.ConceptID,
	}

	if progress.StepComplete(step.RequiredAccuracy, attempts, correctCount) {
		upd.CompleteStep = true
		upd.StepXP = step.XPReward
		if err := s.planTransitions(&upd, path, stepID); err != nil {
			return nil, err
		}
	}

	res, err := s.store.ApplyStepAttempt(upd)
	if err != nil {
		return nil, fmt.Errorf("apply step attempt: %w", err)
	}

	s.publishProgress(path, step, upd, res)

	out := &AttemptResult{
		StepComplete:   res.StepCompleted,
		XPAwarded:      res.XPAwarded,
		UnlockedStepID: res.UnlockedStepID,
		PathComplete:   res.PathCompleted,
	}
	if res.MilestoneUnlocked {
		out.MilestonesUnlocked = []string{upd.MilestoneID}
	}
	return out, nil
}

// planTransitions derives the consequences of completing stepID against a
// simulated post-completion view of the path: which step to unlock next,
// which milestone becomes ready, and whether the path finishes.
func (s *service) planTransitions(upd *store.StepAttemptUpdate, path *model.LearningPath, stepID string) error {
	steps := make([]model.PathStep, len(path.Steps))
	copy(steps, path.Steps)
	for i := range steps {
		if steps[i].ID == stepID {
			steps[i].Status = model.StepCompleted
		}
	}

	g, _, err := s.graphFor(path.JurisdictionID)
	if err != nil {
		return err
	}

	// The next locked step opens only if every scheduled prerequisite of its
	// concept is already completed.
	for i, st := range steps {
		if st.Status != model.StepLocked {
			continue
		}
		if progress.StepUnlockable(g, steps, i) {
			upd.UnlockStepID = st.ID
		}
		break
	}

	for _, m := range path.Milestones {
		if !m.Unlocked && progress.MilestoneReady(m, steps) {
			upd.MilestoneID = m.ID
			upd.MilestoneXP = m.XPReward
			break
		}
	}

	if progress.PathComplete(steps) {
		upd.PathID = path.ID
		upd.CompletePath = true
	}
	return nil
}

// publishProgress emits events for the transitions the store actually
// performed. A loser of a completion race publishes nothing.
func (s *service) publishProgress(path *model.LearningPath, step *model.PathStep, upd store.StepAttemptUpdate, res store.StepAttemptResult) {
	if s.broker == nil || !res.StepCompleted {
		return
	}
	at := s.now()
	s.broker.Publish(events.Event{
		Type:      events.TypeStepCompleted,
		StudentID: path.StudentID,
		PathID:    path.ID,
		StepID:    step.ID,
		ConceptID: step.ConceptID,
		XP:        step.XPReward,
		At:        at,
	})
	if res.UnlockedStepID != "" {
		s.broker.Publish(events.Event{
			Type:      events.TypeStepUnlocked,
			StudentID: path.StudentID,
			PathID:    path.ID,
			StepID:    res.UnlockedStepID,
			At:        at,
		})
	}
	if res.MilestoneUnlocked {
		s.broker.Publish(events.Event{
			Type:        events.TypeMilestoneUnlocked,
			StudentID:   path.StudentID,
			PathID:      path.ID,
			MilestoneID: upd.MilestoneID,
			XP:          upd.MilestoneXP,
			At:          at,
		})
	}
	if res.PathCompleted {
		s.broker.Publish(events.Event{
			Type:      events.TypePathCompleted,
			StudentID: path.StudentID,
			PathID:    path.ID,
			At:        at,
		})
	}
	if res.XPAwarded > 0 {
		s.broker.Publish(events.Event{
			Type:      events.TypeXPAwarded,
			StudentID: path.StudentID,
			PathID:    path.ID,
			XP:        res.XPAwarded,
			At:        at,
		})
	}
}
