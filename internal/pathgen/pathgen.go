// Package pathgen turns a diagnostic report into a gated learning path:
// the weak concepts plus their unmastered transitive prerequisites, ordered
// so everything is studied after its prerequisites.
package pathgen

import (
	"context"
	"fmt"
	"math"

	"github.com/ascent-prep/ascent/internal/conceptgraph"
	"github.com/ascent-prep/ascent/internal/i18n"
	"github.com/ascent-prep/ascent/internal/model"
	"github.com/ascent-prep/ascent/internal/progress"
)

const (
	// XP awarded on completing a step, by kind.
	StudyXP    = 15
	PracticeXP = 30

	// Milestones cover runs of this many steps. A shorter trailing run
	// still gets one; milestone XP scales with the steps covered.
	MilestoneEvery     = 4
	MilestoneXPPerStep = 20

	// Applied when the caller's pace profile leaves a field unset.
	DefaultDailyMinutes   = 30
	DefaultPaceMultiplier = 1.0
)

// Input carries everything Generate needs. Concepts and Mastery are keyed by
// concept id; Mastery holds the requesting student's aggregates.
type Input struct {
	Report   model.DiagnosticReport
	Graph    *conceptgraph.Graph
	Concepts map[string]model.Concept
	Mastery  map[string]model.Mastery
	Profile  model.PaceProfile
}

// Generate builds the plan content of a learning path: steps, milestones,
// and the duration estimate. Identity fields (ids, student, session) are the
// caller's to fill. Step and milestone titles are localized through ctx.
func Generate(ctx context.Context, in Input) (model.LearningPath, error) {
	scheduled := expandWeakSet(in)

	order, err := in.Graph.TopologicalSort()
	if err != nil {
		return model.LearningPath{}, fmt.Errorf("order concepts: %w", err)
	}

	path := model.LearningPath{Status: model.PathActive}
	totalMinutes := 0
	for _, id := range order {
		if !scheduled[id] {
			continue
		}
		c := in.Concepts[id]
		totalMinutes += c.EstimatedMinutes
		path.Steps = append(path.Steps,
			model.PathStep{
				Seq:       len(path.Steps) + 1,
				Kind:      model.StepConceptStudy,
				ConceptID: id,
				Title:     i18n.Td(ctx, "StudyStepTitle", map[string]any{"Concept": c.Name}),
				Status:    model.StepLocked,
				XPReward:  StudyXP,
			},
			model.PathStep{
				Seq:              len(path.Steps) + 2,
				Kind:             model.StepPracticeSet,
				ConceptID:        id,
				Title:            i18n.Td(ctx, "PracticeStepTitle", map[string]any{"Concept": c.Name}),
				RequiredAccuracy: progress.DefaultRequiredAccuracy,
				Status:           model.StepLocked,
				XPReward:         PracticeXP,
			},
		)
	}
	if len(path.Steps) > 0 {
		path.Steps[0].Status = model.StepInProgress
	}

	path.Milestones = milestones(ctx, len(path.Steps))
	path.EstimatedDays = estimateDays(totalMinutes, in.Profile)
	return path, nil
}

// expandWeakSet returns the concept ids to schedule: every weak concept from
// the report plus each transitive prerequisite whose mastery aggregate does
// not already certify it. Weak concepts themselves are always scheduled.
func expandWeakSet(in Input) map[string]bool {
	scheduled := make(map[string]bool)
	for _, weak := range in.Report.WeakConcepts {
		if !in.Graph.Contains(weak.ConceptID) {
			continue
		}
		for _, id := range in.Graph.PrerequisiteChain(weak.ConceptID) {
			if id != weak.ConceptID && progress.Mastered(in.Mastery[id]) {
				continue
			}
			scheduled[id] = true
		}
	}
	return scheduled
}

func milestones(ctx context.Context, stepCount int) []model.Milestone {
	var ms []model.Milestone
	for first := 1; first <= stepCount; first += MilestoneEvery {
		last := first + MilestoneEvery - 1
		if last > stepCount {
			last = stepCount
		}
		ms = append(ms, model.Milestone{
			Seq:          len(ms) + 1,
			Title:        i18n.Td(ctx, "MilestoneTitle", map[string]any{"Number": len(ms) + 1}),
			FirstStepSeq: first,
			LastStepSeq:  last,
			XPReward:     (last - first + 1) * MilestoneXPPerStep,
		})
	}
	return ms
}

// estimateDays applies the pace profile to the scheduled study minutes.
func estimateDays(totalMinutes int, p model.PaceProfile) int {
	daily := p.DailyMinutes
	if daily <= 0 {
		daily = DefaultDailyMinutes
	}
	pace := p.PaceMultiplier
	if pace <= 0 {
		pace = DefaultPaceMultiplier
	}
	return int(math.Ceil(float64(totalMinutes) * pace / float64(daily)))
}
