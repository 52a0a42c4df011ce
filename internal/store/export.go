package store

import (
	"fmt"
	"time"

	"github.com/ascent-prep/ascent/internal/assessment"
	"github.com/ascent-prep/ascent/internal/enginerr"
	"github.com/ascent-prep/ascent/internal/model"
)

// ExportResults builds export-ready session results for one jurisdiction,
// regenerating the diagnostic report for every completed session.
func (s *Store) ExportResults(jurisdictionCode string) (*model.ResultsExport, error) {
	jur, err := s.GetJurisdictionByCode(jurisdictionCode)
	if err != nil {
		return nil, fmt.Errorf("get jurisdiction %s: %w", jurisdictionCode, err)
	}
	if jur == nil {
		return nil, enginerr.NotFound("jurisdiction", jurisdictionCode)
	}

	sessions, err := s.SessionsForJurisdiction(jur.ID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	concepts, err := s.ListConcepts(jur.ID)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	conceptsByID := make(map[string]model.Concept, len(concepts))
	for _, c := range concepts {
		conceptsByID[c.ID] = c
	}

	export := &model.ResultsExport{
		GeneratedAt:  time.Now(),
		Jurisdiction: jur.Code,
	}

	studentNames := make(map[string]string)
	for _, sess := range sessions {
		if _, ok := studentNames[sess.StudentID]; !ok {
			student, err := s.GetStudent(sess.StudentID)
			if err != nil {
				return nil, fmt.Errorf("get student %s: %w", sess.StudentID, err)
			}
			if student != nil {
				studentNames[sess.StudentID] = student.DisplayName
			}
		}

		responses, err := s.ListResponses(sess.ID)
		if err != nil {
			return nil, fmt.Errorf("list responses for session %s: %w", sess.ID, err)
		}
		items, err := s.ItemsForSession(sess.ID)
		if err != nil {
			return nil, fmt.Errorf("list items for session %s: %w", sess.ID, err)
		}
		itemsByID := make(map[string]model.Item, len(items))
		for _, it := range items {
			itemsByID[it.ID] = it
		}

		respExports := make([]model.ResponseExport, 0, len(responses))
		for _, r := range responses {
			respExports = append(respExports, model.ResponseExport{
				Seq:            r.Seq,
				ItemID:         r.ItemID,
				Topic:          itemsByID[r.ItemID].Topic,
				Correct:        r.Correct,
				ThetaAfter:     r.ThetaAfter,
				SEAfter:        r.SEAfter,
				ElapsedSeconds: r.ElapsedSeconds,
			})
		}

		var report *model.DiagnosticReport
		if sess.Status == model.SessionCompleted {
			r := assessment.BuildReport(assessment.ReportInput{
				Session:      sess,
				Responses:    responses,
				Items:        itemsByID,
				Concepts:     conceptsByID,
				PassingScore: jur.PassingScore,
			})
			report = &r
		}

		export.Sessions = append(export.Sessions, model.SessionExport{
			SessionID:   sess.ID,
			Student:     studentNames[sess.StudentID],
			Status:      sess.Status,
			StopReason:  sess.StopReason,
			StartedAt:   sess.StartedAt,
			CompletedAt: sess.CompletedAt,
			Theta:       sess.Theta,
			SE:          sess.SE,
			Responses:   respExports,
			Report:      report,
		})
	}

	return export, nil
}
