package assessment

import "github.com/ascent-prep/ascent/internal/model"

// ShouldStop applies the termination policy after a response has been
// scored. The question-count ceiling is checked before the precision rule,
// so a session that hits both stops with StopMaxReached. Precision never
// ends a session before the configured minimum, no matter how small the
// standard error gets.
func ShouldStop(asked int, se float64, cfg model.SessionConfig) (bool, model.StopReason) {
	if asked >= cfg.MaxQuestions {
		return true, model.StopMaxReached
	}
	if asked >= cfg.MinQuestions && se <= cfg.SEThreshold {
		return true, model.StopPrecisionReached
	}
	return false, ""
}
