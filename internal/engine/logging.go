package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/ascent-prep/ascent/internal/conceptgraph"
	"github.com/ascent-prep/ascent/internal/model"
)

// loggingEngine decorates an Engine so every operation logs its name,
// latency, and outcome.
type loggingEngine struct {
	next   Engine
	logger *slog.Logger
}

// WithLogging wraps an Engine with slog instrumentation.
func WithLogging(next Engine, logger *slog.Logger) Engine {
	return &loggingEngine{next: next, logger: logger}
}

func (l *loggingEngine) log(ctx context.Context, op string, start time.Time, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))
	level := slog.LevelInfo
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		level = slog.LevelWarn
	}
	l.logger.LogAttrs(ctx, level, op, attrs...)
}

func (l *loggingEngine) StartSession(ctx context.Context, studentID, jurisdictionID string, cfg model.SessionConfig) (*SessionState, error) {
	start := time.Now()
	out, err := l.next.StartSession(ctx, studentID, jurisdictionID, cfg)
	attrs := []slog.Attr{
		slog.String("student_id", studentID),
		slog.String("jurisdiction_id", jurisdictionID),
	}
	if out != nil {
		attrs = append(attrs, slog.String("session_id", out.Session.ID))
	}
	l.log(ctx, "StartSession", start, err, attrs...)
	return out, err
}

func (l *loggingEngine) SubmitResponse(ctx context.Context, sessionID, itemID, selectedOption string, elapsedSeconds int) (*SubmitResult, error) {
	start := time.Now()
	out, err := l.next.SubmitResponse(ctx, sessionID, itemID, selectedOption, elapsedSeconds)
	attrs := []slog.Attr{
		slog.String("session_id", sessionID),
		slog.String("item_id", itemID),
	}
	if out != nil {
		attrs = append(attrs,
			slog.Int("questions_asked", out.QuestionsAsked),
			slog.Bool("complete", out.Complete),
		)
	}
	l.log(ctx, "SubmitResponse", start, err, attrs...)
	return out, err
}

func (l *loggingEngine) GetReport(ctx context.Context, sessionID string) (*model.DiagnosticReport, error) {
	start := time.Now()
	out, err := l.next.GetReport(ctx, sessionID)
	l.log(ctx, "GetReport", start, err, slog.String("session_id", sessionID))
	return out, err
}

func (l *loggingEngine) AddPrerequisite(ctx context.Context, conceptID, prereqID string) (*model.ConceptEdge, error) {
	start := time.Now()
	out, err := l.next.AddPrerequisite(ctx, conceptID, prereqID)
	l.log(ctx, "AddPrerequisite", start, err,
		slog.String("concept_id", conceptID),
		slog.String("prerequisite_id", prereqID),
	)
	return out, err
}

func (l *loggingEngine) RemovePrerequisite(ctx context.Context, conceptID, prereqID string) error {
	start := time.Now()
	err := l.next.RemovePrerequisite(ctx, conceptID, prereqID)
	l.log(ctx, "RemovePrerequisite", start, err,
		slog.String("concept_id", conceptID),
		slog.String("prerequisite_id", prereqID),
	)
	return err
}

func (l *loggingEngine) PrerequisiteChain(ctx context.Context, conceptID string) ([]model.Concept, error) {
	start := time.Now()
	out, err := l.next.PrerequisiteChain(ctx, conceptID)
	l.log(ctx, "PrerequisiteChain", start, err,
		slog.String("concept_id", conceptID),
		slog.Int("chain_length", len(out)),
	)
	return out, err
}

func (l *loggingEngine) ValidateGraph(ctx context.Context, jurisdictionID string) (*conceptgraph.Report, error) {
	start := time.Now()
	out, err := l.next.ValidateGraph(ctx, jurisdictionID)
	attrs := []slog.Attr{slog.String("jurisdiction_id", jurisdictionID)}
	if out != nil {
		attrs = append(attrs,
			slog.Int("errors", len(out.Errors)),
			slog.Int("warnings", len(out.Warnings)),
		)
	}
	l.log(ctx, "ValidateGraph", start, err, attrs...)
	return out, err
}

func (l *loggingEngine) GeneratePath(ctx context.Context, sessionID string, profile model.PaceProfile) (*model.LearningPath, error) {
	start := time.Now()
	out, err := l.next.GeneratePath(ctx, sessionID, profile)
	attrs := []slog.Attr{slog.String("session_id", sessionID)}
	if out != nil {
		attrs = append(attrs,
			slog.String("path_id", out.ID),
			slog.Int("steps", len(out.Steps)),
		)
	}
	l.log(ctx, "GeneratePath", start, err, attrs...)
	return out, err
}

func (l *loggingEngine) RecordStepAttempt(ctx context.Context, stepID, itemID string, correct bool, elapsedSeconds int) (*AttemptResult, error) {
	start := time.Now()
	out, err := l.next.RecordStepAttempt(ctx, stepID, itemID, correct, elapsedSeconds)
	attrs := []slog.Attr{
		slog.String("step_id", stepID),
		slog.Bool("correct", correct),
	}
	if out != nil {
		attrs = append(attrs,
			slog.Bool("step_complete", out.StepComplete),
			slog.Int("xp_awarded", out.XPAwarded),
		)
	}
	l.log(ctx, "RecordStepAttempt", start, err, attrs...)
	return out, err
}
