package model

import "time"

// SessionStatus represents the lifecycle state of an assessment session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionExpired    SessionStatus = "expired"
)

// StopReason explains why an adaptive session terminated.
type StopReason string

const (
	StopMaxReached       StopReason = "max_reached"
	StopPrecisionReached StopReason = "precision_reached"
)

// ConceptDifficulty is the curriculum tier of a concept.
type ConceptDifficulty string

const (
	DifficultyFoundation ConceptDifficulty = "foundation"
	DifficultyCore       ConceptDifficulty = "core"
	DifficultyAdvanced   ConceptDifficulty = "advanced"
)

// StepKind distinguishes study material from graded practice.
type StepKind string

const (
	StepConceptStudy StepKind = "concept_study"
	StepPracticeSet  StepKind = "practice_set"
)

// StepStatus represents the gating state of a learning path step.
type StepStatus string

const (
	StepLocked     StepStatus = "locked"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
)

// PathStatus represents the lifecycle state of a learning path.
type PathStatus string

const (
	PathActive    PathStatus = "active"
	PathCompleted PathStatus = "completed"
)

// Readiness is the coarse exam-readiness band derived from the estimated score.
type Readiness string

const (
	NotReady   Readiness = "not_ready"
	Developing Readiness = "developing"
	Ready      Readiness = "ready"
	ExamReady  Readiness = "exam_ready"
)

// Options available on every item. Answers are submitted as one of these letters.
var Options = [4]string{"A", "B", "C", "D"}

// ValidOption reports whether s is one of the four answer letters.
func ValidOption(s string) bool {
	for _, o := range Options {
		if s == o {
			return true
		}
	}
	return false
}

// Jurisdiction is the licensing authority whose exam a curriculum targets.
type Jurisdiction struct {
	ID           string  `json:"id"`
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	PassingScore float64 `json:"passing_score"`
}

// Student identifies the owner of sessions and learning paths.
// Authentication is out of scope; this is identity only.
type Student struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	XP          int       `json:"xp"`
	CreatedAt   time.Time `json:"created_at"`
}

// Item is a calibrated multiple-choice question. Items are immutable once
// administered in any session.
type Item struct {
	ID             string    `json:"id"`
	JurisdictionID string    `json:"jurisdiction_id"`
	Stem           string    `json:"stem"`
	Options        [4]string `json:"options"`
	CorrectOption  string    `json:"correct_option"`
	Discrimination float64   `json:"a"`
	Difficulty     float64   `json:"b"`
	Guessing       float64   `json:"c"`
	Topic          string    `json:"topic"`
	ConceptIDs     []string  `json:"concept_ids"`
	Citations      []string  `json:"citations"`
	CreatedAt      time.Time `json:"created_at"`
}

// View strips the item down to what a candidate may see mid-session.
func (it Item) View() ItemView {
	return ItemView{ID: it.ID, Stem: it.Stem, Options: it.Options, Topic: it.Topic}
}

// ItemView is the candidate-facing shape of an item: no correct answer,
// no calibration parameters.
type ItemView struct {
	ID      string    `json:"id"`
	Stem    string    `json:"stem"`
	Options [4]string `json:"options"`
	Topic   string    `json:"topic"`
}

// SessionConfig is the termination policy snapshot captured at session start.
type SessionConfig struct {
	MinQuestions     int     `json:"min_questions"`
	MaxQuestions     int     `json:"max_questions"`
	SEThreshold      float64 `json:"se_threshold"`
	TimeLimitMinutes int     `json:"time_limit_minutes"`
}

// Session is one adaptive assessment run for one student.
type Session struct {
	ID             string        `json:"id"`
	StudentID      string        `json:"student_id"`
	JurisdictionID string        `json:"jurisdiction_id"`
	Status         SessionStatus `json:"status"`
	Theta          float64       `json:"theta"`
	SE             float64       `json:"se"`
	QuestionsAsked int           `json:"questions_asked"`
	CurrentItemID  *string       `json:"current_item_id,omitempty"`
	StopReason     StopReason    `json:"stop_reason,omitempty"`
	Version        int64         `json:"-"`
	Config         SessionConfig `json:"config"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

// Response is one administered item with its outcome. Append-only;
// seq is contiguous from 0 within a session.
type Response struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	Seq            int       `json:"seq"`
	ItemID         string    `json:"item_id"`
	SelectedOption string    `json:"selected_option"`
	Correct        bool      `json:"correct"`
	ThetaBefore    float64   `json:"theta_before"`
	ThetaAfter     float64   `json:"theta_after"`
	SEAfter        float64   `json:"se_after"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	CreatedAt      time.Time `json:"created_at"`
}

// Concept is a node in the prerequisite graph.
type Concept struct {
	ID               string            `json:"id"`
	JurisdictionID   string            `json:"jurisdiction_id"`
	Slug             string            `json:"slug"`
	Name             string            `json:"name"`
	Category         string            `json:"category"`
	Difficulty       ConceptDifficulty `json:"difficulty"`
	EstimatedMinutes int               `json:"estimated_minutes"`
}

// ConceptEdge states that ConceptID requires PrerequisiteID first.
type ConceptEdge struct {
	ConceptID      string `json:"concept_id"`
	PrerequisiteID string `json:"prerequisite_id"`
}

// Mastery is the rolling practice aggregate per (student, concept).
type Mastery struct {
	StudentID string    `json:"student_id"`
	ConceptID string    `json:"concept_id"`
	Attempts  int       `json:"attempts"`
	Correct   int       `json:"correct"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Accuracy returns correct/attempts, or 0 with no attempts.
func (m Mastery) Accuracy() float64 {
	if m.Attempts == 0 {
		return 0
	}
	return float64(m.Correct) / float64(m.Attempts)
}

// LearningPath is a generated study plan derived from one diagnostic session.
type LearningPath struct {
	ID             string      `json:"id"`
	StudentID      string      `json:"student_id"`
	JurisdictionID string      `json:"jurisdiction_id"`
	SessionID      string      `json:"session_id"`
	Status         PathStatus  `json:"status"`
	EstimatedDays  int         `json:"estimated_days"`
	Steps          []PathStep  `json:"steps"`
	Milestones     []Milestone `json:"milestones"`
	CreatedAt      time.Time   `json:"created_at"`
}

// PathStep is one unit of a learning path, gated by the steps before it.
type PathStep struct {
	ID               string     `json:"id"`
	PathID           string     `json:"path_id"`
	Seq              int        `json:"seq"`
	Kind             StepKind   `json:"kind"`
	ConceptID        string     `json:"concept_id"`
	Title            string     `json:"title"`
	RequiredAccuracy float64    `json:"required_accuracy"`
	Status           StepStatus `json:"status"`
	XPReward         int        `json:"xp_reward"`
}

// Milestone is a reward checkpoint covering a contiguous run of steps.
// It unlocks exactly once, when every covered step is completed.
type Milestone struct {
	ID           string     `json:"id"`
	PathID       string     `json:"path_id"`
	Seq          int        `json:"seq"`
	Title        string     `json:"title"`
	FirstStepSeq int        `json:"first_step_seq"`
	LastStepSeq  int        `json:"last_step_seq"`
	XPReward     int        `json:"xp_reward"`
	Unlocked     bool       `json:"unlocked"`
	UnlockedAt   *time.Time `json:"unlocked_at,omitempty"`
}

// StepAttempt is one practice answer recorded against a path step.
type StepAttempt struct {
	ID             string    `json:"id"`
	StepID         string    `json:"step_id"`
	ItemID         string    `json:"item_id"`
	Correct        bool      `json:"correct"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	CreatedAt      time.Time `json:"created_at"`
}

// PaceProfile tunes how a learning path's duration is estimated.
type PaceProfile struct {
	DailyMinutes   int     `json:"daily_minutes"`
	PaceMultiplier float64 `json:"pace_multiplier"`
}

// TopicStat is per-topic accuracy over a session's responses.
type TopicStat struct {
	Topic    string  `json:"topic"`
	Asked    int     `json:"asked"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// ConceptStat is per-concept accuracy over a session's responses.
type ConceptStat struct {
	ConceptID string  `json:"concept_id"`
	Slug      string  `json:"slug"`
	Name      string  `json:"name"`
	Observed  int     `json:"observed"`
	Correct   int     `json:"correct"`
	Accuracy  float64 `json:"accuracy"`
}

// DiagnosticReport summarizes a completed session. Regenerating it for the
// same session yields the identical report.
type DiagnosticReport struct {
	SessionID      string        `json:"session_id"`
	JurisdictionID string        `json:"jurisdiction_id"`
	Theta          float64       `json:"theta"`
	SE             float64       `json:"se"`
	EstimatedScore float64       `json:"estimated_score"`
	Readiness      Readiness     `json:"readiness"`
	Topics         []TopicStat   `json:"topics"`
	WeakConcepts   []ConceptStat `json:"weak_concepts"`
	StrongConcepts []ConceptStat `json:"strong_concepts"`
}

// CurriculumImport is the JSON shape consumed by the seed command.
type CurriculumImport struct {
	Jurisdiction JurisdictionImport `json:"jurisdiction"`
	Concepts     []ConceptImport    `json:"concepts"`
	Items        []ItemImport       `json:"items"`
}

// JurisdictionImport identifies the jurisdiction a curriculum file belongs to.
type JurisdictionImport struct {
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	PassingScore float64 `json:"passing_score"`
}

// ConceptImport is one concept row in a curriculum file. Prerequisites
// reference other concepts of the same jurisdiction by slug.
type ConceptImport struct {
	Slug             string            `json:"slug"`
	Name             string            `json:"name"`
	Category         string            `json:"category"`
	Difficulty       ConceptDifficulty `json:"difficulty"`
	EstimatedMinutes int               `json:"estimated_minutes"`
	Prerequisites    []string          `json:"prerequisites"`
}

// ItemImport is one item row in a curriculum file. Concepts reference
// concept slugs.
type ItemImport struct {
	Stem           string   `json:"stem"`
	Options        []string `json:"options"`
	CorrectOption  string   `json:"correct_option"`
	Discrimination float64  `json:"a"`
	Difficulty     float64  `json:"b"`
	Guessing       float64  `json:"c"`
	Topic          string   `json:"topic"`
	Concepts       []string `json:"concepts"`
	Citations      []string `json:"citations"`
}
