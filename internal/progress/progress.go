// Package progress holds the pure rules for step completion, step gating,
// milestone readiness, and concept mastery. The engine applies these against
// persisted state; nothing here touches storage.
package progress

import (
	"github.com/ascent-prep/ascent/internal/conceptgraph"
	"github.com/ascent-prep/ascent/internal/model"
)

const (
	// A practice step needs at least this many attempts before its accuracy
	// is trusted: 3 of 4 at the default bar completes on exactly the fourth
	// attempt, never on a lucky early streak.
	MinPracticeAttempts = 4

	// DefaultRequiredAccuracy is applied to practice steps that do not
	// carry an explicit requirement.
	DefaultRequiredAccuracy = 0.75

	// MasteryAccuracy is the lifetime accuracy at which a concept counts
	// as mastered for path expansion and prerequisite gating.
	MasteryAccuracy = 0.75
)

// Float comparisons tolerate one part in a billion so ratios like 7/10
// compare equal to their decimal thresholds.
const accuracyEpsilon = 1e-9

// Accuracy returns correct/attempts, or 0 with no attempts.
func Accuracy(correct, attempts int) float64 {
	if attempts == 0 {
		return 0
	}
	return float64(correct) / float64(attempts)
}

// StepComplete reports whether a step's attempt tally satisfies its
// completion rule. Study steps (no accuracy requirement) complete on the
// first recorded attempt; practice steps need MinPracticeAttempts attempts
// and the required accuracy.
func StepComplete(requiredAccuracy float64, attempts, correct int) bool {
	if attempts == 0 {
		return false
	}
	if requiredAccuracy <= 0 {
		return true
	}
	if attempts < MinPracticeAttempts {
		return false
	}
	return Accuracy(correct, attempts) >= requiredAccuracy-accuracyEpsilon
}

// Mastered reports whether a mastery aggregate certifies its concept.
func Mastered(m model.Mastery) bool {
	return m.Attempts >= MinPracticeAttempts && m.Accuracy() >= MasteryAccuracy-accuracyEpsilon
}

// StepUnlockable reports whether the step at index idx may leave LOCKED:
// every other step in the path whose concept is a transitive prerequisite of
// this step's concept must be completed. Steps are generated in topological
// order, so prerequisites always sit earlier in the path.
func StepUnlockable(g *conceptgraph.Graph, steps []model.PathStep, idx int) bool {
	if idx < 0 || idx >= len(steps) {
		return false
	}
	target := steps[idx]

	prereqs := make(map[string]bool)
	for _, id := range g.PrerequisiteChain(target.ConceptID) {
		if id != target.ConceptID {
			prereqs[id] = true
		}
	}

	for i, s := range steps {
		if i == idx {
			continue
		}
		if prereqs[s.ConceptID] && s.Status != model.StepCompleted {
			return false
		}
	}
	return true
}

// MilestoneReady reports whether every step a milestone covers is completed.
func MilestoneReady(m model.Milestone, steps []model.PathStep) bool {
	covered := 0
	for _, s := range steps {
		if s.Seq < m.FirstStepSeq || s.Seq > m.LastStepSeq {
			continue
		}
		covered++
		if s.Status != model.StepCompleted {
			return false
		}
	}
	return covered > 0
}

// PathComplete reports whether every step in the path is completed.
// An empty path is trivially complete.
func PathComplete(steps []model.PathStep) bool {
	for _, s := range steps {
		if s.Status != model.StepCompleted {
			return false
		}
	}
	return true
}
