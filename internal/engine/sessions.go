package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ascent-prep/ascent/internal/assessment"
	"github.com/ascent-prep/ascent/internal/enginerr"
	"github.com/ascent-prep/ascent/internal/irt"
	"github.com/ascent-prep/ascent/internal/model"
)

// StartSession creates an assessment session and selects its first item by
// maximum information at the prior ability of zero.
func (s *service) StartSession(ctx context.Context, studentID, jurisdictionID string, cfg model.SessionConfig) (*SessionState, error) {
	cfg = fillConfig(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	student, err := s.store.GetStudent(studentID)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}
	if student == nil {
		return nil, enginerr.NotFound("student", studentID)
	}
	jur, err := s.store.GetJurisdiction(jurisdictionID)
	if err != nil {
		return nil, fmt.Errorf("load jurisdiction: %w", err)
	}
	if jur == nil {
		return nil, enginerr.NotFound("jurisdiction", jurisdictionID)
	}

	pool, err := s.items.FindCandidateItems(jurisdictionID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("load item pool: %w", err)
	}

	sessionID := uuid.NewString()
	first, ok := assessment.SelectNext(0, pool, nil, s.sel)
	if !ok {
		return nil, enginerr.ExhaustedPool(sessionID)
	}

	sess := model.Session{
		ID:             sessionID,
		StudentID:      studentID,
		JurisdictionID: jurisdictionID,
		Status:         model.SessionInProgress,
		SE:             1,
		CurrentItemID:  &first.ID,
		Config:         cfg,
		StartedAt:      s.now(),
	}
	created, err := s.store.CreateSession(sess)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	view := first.View()
	return &SessionState{Session: created, Item: view}, nil
}

// SubmitResponse scores one answer against the session's current item,
// re-estimates ability from the full history, and either selects the next
// item or completes the session. The write is a single optimistic
// transaction; a lost race surfaces as a conflict and nothing is persisted.
func (s *service) SubmitResponse(ctx context.Context, sessionID, itemID, selectedOption string, elapsedSeconds int) (*SubmitResult, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, enginerr.NotFound("session", sessionID)
	}
	if sess.Status != model.SessionInProgress {
		return nil, enginerr.InvalidState("submit response", fmt.Sprintf("session is %s", sess.Status))
	}

	now := s.now()
	if sess.Config.TimeLimitMinutes > 0 {
		limit := time.Duration(sess.Config.TimeLimitMinutes) * time.Minute
		if now.Sub(sess.StartedAt) > limit {
			if err := s.store.ExpireSession(sess.ID, sess.Version, now); err != nil {
				return nil, fmt.Errorf("expire session: %w", err)
			}
			return nil, enginerr.InvalidState("submit response", "session time limit exceeded")
		}
	}

	if !model.ValidOption(selectedOption) {
		return nil, enginerr.Constraint("selected option %q is not one of %v", selectedOption, model.Options)
	}
	if elapsedSeconds < 0 {
		return nil, enginerr.Constraint("elapsed_seconds must not be negative")
	}
	if sess.CurrentItemID == nil || *sess.CurrentItemID != itemID {
		return nil, enginerr.InvalidState("submit response", fmt.Sprintf("item %s is not the session's current item", itemID))
	}

	item, err := s.items.GetItem(itemID)
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}
	if item == nil {
		return nil, enginerr.NotFound("item", itemID)
	}

	administered, err := s.store.ItemsForSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load administered items: %w", err)
	}
	responses, err := s.store.ListResponses(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load responses: %w", err)
	}

	correct := selectedOption == item.CorrectOption
	history := observed(administered, responses)
	history = append(history, irt.ObservedResponse{Params: assessment.Params(*item), Correct: correct})
	est := irt.Estimate(history)

	asked := sess.QuestionsAsked + 1
	stop, reason := assessment.ShouldStop(asked, est.SE, sess.Config)

	post := *sess
	post.Theta = est.Theta
	post.SE = est.SE
	post.QuestionsAsked = asked

	var next *model.Item
	if stop {
		post.Status = model.SessionCompleted
		post.StopReason = reason
		post.CurrentItemID = nil
		completedAt := now
		post.CompletedAt = &completedAt
	} else {
		administered = append(administered, *item)
		exclude := make([]string, 0, len(administered))
		for _, it := range administered {
			exclude = append(exclude, it.ID)
		}
		pool, err := s.items.FindCandidateItems(sess.JurisdictionID, nil, exclude)
		if err != nil {
			return nil, fmt.Errorf("load item pool: %w", err)
		}
		sel, ok := assessment.SelectNext(est.Theta, pool, administered, s.sel)
		if !ok {
			return nil, enginerr.ExhaustedPool(sessionID)
		}
		next = &sel
		post.CurrentItemID = &sel.ID
	}

	resp := model.Response{
		SessionID:      sessionID,
		Seq:            sess.QuestionsAsked,
		ItemID:         itemID,
		SelectedOption: selectedOption,
		Correct:        correct,
		ThetaBefore:    sess.Theta,
		ThetaAfter:     est.Theta,
		SEAfter:        est.SE,
		ElapsedSeconds: elapsedSeconds,
		CreatedAt:      now,
	}
	if err := s.store.ApplyResponse(resp, post); err != nil {
		return nil, fmt.Errorf("apply response: %w", err)
	}

	result := &SubmitResult{
		Complete:       stop,
		Theta:          est.Theta,
		SE:             est.SE,
		QuestionsAsked: asked,
		StopReason:     post.StopReason,
	}
	if next != nil {
		v := next.View()
		result.NextItem = &v
	}
	return result, nil
}

// GetReport builds the diagnostic report for a completed session. The report
// is derived entirely from persisted responses, so repeated calls return the
// identical report.
func (s *service) GetReport(ctx context.Context, sessionID string) (*model.DiagnosticReport, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, enginerr.NotFound("session", sessionID)
	}
	if sess.Status != model.SessionCompleted {
		return nil, enginerr.InvalidState("get report", fmt.Sprintf("session is %s", sess.Status))
	}
	return s.buildReport(*sess)
}

func (s *service) buildReport(sess model.Session) (*model.DiagnosticReport, error) {
	jur, err := s.store.GetJurisdiction(sess.JurisdictionID)
	if err != nil {
		return nil, fmt.Errorf("load jurisdiction: %w", err)
	}
	if jur == nil {
		return nil, enginerr.NotFound("jurisdiction", sess.JurisdictionID)
	}
	responses, err := s.store.ListResponses(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load responses: %w", err)
	}
	items, err := s.store.ItemsForSession(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load administered items: %w", err)
	}
	concepts, err := s.store.ListConcepts(sess.JurisdictionID)
	if err != nil {
		return nil, fmt.Errorf("load concepts: %w", err)
	}

	itemsByID := make(map[string]model.Item, len(items))
	for _, it := range items {
		itemsByID[it.ID] = it
	}
	conceptsByID := make(map[string]model.Concept, len(concepts))
	for _, c := range concepts {
		conceptsByID[c.ID] = c
	}

	report := assessment.BuildReport(assessment.ReportInput{
		Session:      sess,
		Responses:    responses,
		Items:        itemsByID,
		Concepts:     conceptsByID,
		PassingScore: jur.PassingScore,
	})
	return &report, nil
}

// observed pairs each persisted response with its item's calibration, in
// administration order.
func observed(items []model.Item, responses []model.Response) []irt.ObservedResponse {
	byID := make(map[string]model.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	out := make([]irt.ObservedResponse, 0, len(responses)+1)
	for _, r := range responses {
		it, ok := byID[r.ItemID]
		if !ok {
			continue
		}
		out = append(out, irt.ObservedResponse{Params: assessment.Params(it), Correct: r.Correct})
	}
	return out
}

func fillConfig(cfg model.SessionConfig) model.SessionConfig {
	if cfg.MinQuestions == 0 {
		cfg.MinQuestions = DefaultSessionConfig.MinQuestions
	}
	if cfg.MaxQuestions == 0 {
		cfg.MaxQuestions = DefaultSessionConfig.MaxQuestions
	}
	if cfg.SEThreshold == 0 {
		cfg.SEThreshold = DefaultSessionConfig.SEThreshold
	}
	if cfg.TimeLimitMinutes == 0 {
		cfg.TimeLimitMinutes = DefaultSessionConfig.TimeLimitMinutes
	}
	return cfg
}

func validateConfig(cfg model.SessionConfig) error {
	if cfg.MinQuestions < 1 {
		return enginerr.Constraint("min_questions must be at least 1")
	}
	if cfg.MaxQuestions < cfg.MinQuestions {
		return enginerr.Constraint("max_questions %d is below min_questions %d", cfg.MaxQuestions, cfg.MinQuestions)
	}
	if cfg.SEThreshold <= 0 {
		return enginerr.Constraint("se_threshold must be positive")
	}
	if cfg.TimeLimitMinutes < 0 {
		return enginerr.Constraint("time_limit_minutes must not be negative")
	}
	return nil
}
