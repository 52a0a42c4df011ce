package assessment

import (
	"sort"

	"github.com/ascent-prep/ascent/internal/irt"
	"github.com/ascent-prep/ascent/internal/model"
)

const (
	// scorePerTheta maps one logit of ability to ten points on the exam
	// scale, anchored so theta 0 lands on the jurisdiction's passing score.
	scorePerTheta = 10.0

	notReadyMargin  = 15.0
	examReadyMargin = 10.0

	weakBelow     = 0.6
	strongAtLeast = 0.85
	// minConceptObservations keeps single-response flukes out of the weak
	// and strong lists.
	minConceptObservations = 2
)

// ReportInput carries everything needed to summarize a session. Items and
// Concepts are keyed by id and must cover every response; responses whose
// item is missing from Items are skipped rather than guessed at.
type ReportInput struct {
	Session      model.Session
	Responses    []model.Response
	Items        map[string]model.Item
	Concepts     map[string]model.Concept
	PassingScore float64
}

// BuildReport turns a session's response history into a diagnostic report.
// It is a pure computation: building the same input twice yields the same
// report, and a session with no responses yields a report with empty
// breakdowns rather than an error.
func BuildReport(in ReportInput) model.DiagnosticReport {
	theta := irt.Clamp(in.Session.Theta)
	score := EstimatedScore(theta, in.PassingScore)

	return model.DiagnosticReport{
		SessionID:      in.Session.ID,
		JurisdictionID: in.Session.JurisdictionID,
		Theta:          theta,
		SE:             in.Session.SE,
		EstimatedScore: score,
		Readiness:      ReadinessFor(score, in.PassingScore),
		Topics:         topicBreakdown(in),
		WeakConcepts:   conceptBreakdown(in, weak),
		StrongConcepts: conceptBreakdown(in, strong),
	}
}

// EstimatedScore maps a clamped ability onto the 0-100 exam score scale.
func EstimatedScore(theta, passingScore float64) float64 {
	score := passingScore + scorePerTheta*theta
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ReadinessFor bands an estimated score relative to the passing threshold.
func ReadinessFor(score, passingScore float64) model.Readiness {
	switch {
	case score < passingScore-notReadyMargin:
		return model.NotReady
	case score < passingScore:
		return model.Developing
	case score < passingScore+examReadyMargin:
		return model.Ready
	default:
		return model.ExamReady
	}
}

func topicBreakdown(in ReportInput) []model.TopicStat {
	type agg struct{ asked, correct int }
	byTopic := make(map[string]*agg)
	for _, r := range in.Responses {
		it, ok := in.Items[r.ItemID]
		if !ok {
			continue
		}
		a := byTopic[it.Topic]
		if a == nil {
			a = &agg{}
			byTopic[it.Topic] = a
		}
		a.asked++
		if r.Correct {
			a.correct++
		}
	}

	stats := make([]model.TopicStat, 0, len(byTopic))
	for topic, a := range byTopic {
		stats = append(stats, model.TopicStat{
			Topic:    topic,
			Asked:    a.asked,
			Correct:  a.correct,
			Accuracy: float64(a.correct) / float64(a.asked),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Topic < stats[j].Topic })
	return stats
}

type conceptBand int

const (
	weak conceptBand = iota
	strong
)

func conceptBreakdown(in ReportInput, band conceptBand) []model.ConceptStat {
	type agg struct{ observed, correct int }
	byConcept := make(map[string]*agg)
	for _, r := range in.Responses {
		it, ok := in.Items[r.ItemID]
		if !ok {
			continue
		}
		for _, cid := range it.ConceptIDs {
			a := byConcept[cid]
			if a == nil {
				a = &agg{}
				byConcept[cid] = a
			}
			a.observed++
			if r.Correct {
				a.correct++
			}
		}
	}

	var stats []model.ConceptStat
	for cid, a := range byConcept {
		if a.observed < minConceptObservations {
			continue
		}
		acc := float64(a.correct) / float64(a.observed)
		if band == weak && acc >= weakBelow {
			continue
		}
		if band == strong && acc < strongAtLeast {
			continue
		}
		stat := model.ConceptStat{ConceptID: cid, Observed: a.observed, Correct: a.correct, Accuracy: acc}
		if c, ok := in.Concepts[cid]; ok {
			stat.Slug = c.Slug
			stat.Name = c.Name
		}
		stats = append(stats, stat)
	}

	// Weak concepts list worst-first so remediation starts where it hurts;
	// strong concepts list best-first. Slug breaks ties either way.
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Accuracy != stats[j].Accuracy {
			if band == weak {
				return stats[i].Accuracy < stats[j].Accuracy
			}
			return stats[i].Accuracy > stats[j].Accuracy
		}
		return stats[i].Slug < stats[j].Slug
	})
	return stats
}
