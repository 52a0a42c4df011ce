// Package engine implements the assessment engine behind the HTTP surface:
// adaptive session lifecycle, diagnostic reporting, prerequisite graph
// curation, learning path generation, and step progress. Every operation is
// a synchronous request; all mutable state lives in the store.
package engine

import (
	"context"
	"time"

	"github.com/ascent-prep/ascent/internal/assessment"
	"github.com/ascent-prep/ascent/internal/conceptgraph"
	"github.com/ascent-prep/ascent/internal/events"
	"github.com/ascent-prep/ascent/internal/model"
	"github.com/ascent-prep/ascent/internal/store"
)

// Engine is the full operation surface. The HTTP layer and the CLI talk to
// this interface, usually wrapped by WithLogging.
type Engine interface {
	StartSession(ctx context.Context, studentID, jurisdictionID string, cfg model.SessionConfig) (*SessionState, error)
	SubmitResponse(ctx context.Context, sessionID, itemID, selectedOption string, elapsedSeconds int) (*SubmitResult, error)
	GetReport(ctx context.Context, sessionID string) (*model.DiagnosticReport, error)

	AddPrerequisite(ctx context.Context, conceptID, prereqID string) (*model.ConceptEdge, error)
	RemovePrerequisite(ctx context.Context, conceptID, prereqID string) error
	PrerequisiteChain(ctx context.Context, conceptID string) ([]model.Concept, error)
	ValidateGraph(ctx context.Context, jurisdictionID string) (*conceptgraph.Report, error)

	GeneratePath(ctx context.Context, sessionID string, profile model.PaceProfile) (*model.LearningPath, error)
	RecordStepAttempt(ctx context.Context, stepID, itemID string, correct bool, elapsedSeconds int) (*AttemptResult, error)
}

// ItemBank supplies calibrated items for selection. The store implements it.
type ItemBank interface {
	FindCandidateItems(jurisdictionID string, topics, excludeIDs []string) ([]model.Item, error)
	GetItem(itemID string) (*model.Item, error)
}

// SessionState is returned by StartSession: the persisted session plus the
// first item to administer, answer withheld.
type SessionState struct {
	Session model.Session  `json:"session"`
	Item    model.ItemView `json:"item"`
}

// SubmitResult reports the outcome of one scored response. NextItem is set
// only while the session continues.
type SubmitResult struct {
	Complete       bool             `json:"complete"`
	Theta          float64          `json:"theta"`
	SE             float64          `json:"se"`
	QuestionsAsked int              `json:"questions_asked"`
	StopReason     model.StopReason `json:"stop_reason,omitempty"`
	NextItem       *model.ItemView  `json:"next_item,omitempty"`
}

// AttemptResult reports what one recorded step attempt changed.
type AttemptResult struct {
	StepComplete       bool     `json:"step_complete"`
	XPAwarded          int      `json:"xp_awarded"`
	UnlockedStepID     string   `json:"unlocked_step_id,omitempty"`
	MilestonesUnlocked []string `json:"milestones_unlocked,omitempty"`
	PathComplete       bool     `json:"path_complete"`
}

// DefaultSessionConfig fills fields a session request leaves unset.
var DefaultSessionConfig = model.SessionConfig{
	MinQuestions:     5,
	MaxQuestions:     20,
	SEThreshold:      0.3,
	TimeLimitMinutes: 60,
}

// Config tunes engine behavior. The zero value selects every item by
// information alone and uses the wall clock.
type Config struct {
	Selector assessment.SelectorConfig
	Now      func() time.Time
}

type service struct {
	store  *store.Store
	items  ItemBank
	broker *events.Broker
	sel    assessment.SelectorConfig
	now    func() time.Time
}

// New builds the production engine. The broker may be nil when nothing
// subscribes to progress events.
func New(st *store.Store, items ItemBank, broker *events.Broker, cfg Config) Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &service{store: st, items: items, broker: broker, sel: cfg.Selector, now: now}
}
