package model

import "time"

// ResultsExport is the top-level JSON structure for session result export,
// intended for offline psychometric calibration.
type ResultsExport struct {
	GeneratedAt  time.Time       `json:"generated_at"`
	Jurisdiction string          `json:"jurisdiction"`
	Sessions     []SessionExport `json:"sessions"`
}

// SessionExport holds one session's responses and, when available, its report.
type SessionExport struct {
	SessionID   string            `json:"session_id"`
	Student     string            `json:"student"`
	Status      SessionStatus     `json:"status"`
	StopReason  StopReason        `json:"stop_reason,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Theta       float64           `json:"theta"`
	SE          float64           `json:"se"`
	Responses   []ResponseExport  `json:"responses"`
	Report      *DiagnosticReport `json:"report,omitempty"`
}

// ResponseExport is per-response data for export.
type ResponseExport struct {
	Seq            int     `json:"seq"`
	ItemID         string  `json:"item_id"`
	Topic          string  `json:"topic"`
	Correct        bool    `json:"correct"`
	ThetaAfter     float64 `json:"theta_after"`
	SEAfter        float64 `json:"se_after"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
}
