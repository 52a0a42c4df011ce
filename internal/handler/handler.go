// Package handler exposes the engine over a JSON HTTP API. Routes decode
// the request, call one engine or store operation, and encode the result;
// typed engine failures map onto HTTP statuses in engineError.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ascent-prep/ascent/internal/engine"
	"github.com/ascent-prep/ascent/internal/enginerr"
	"github.com/ascent-prep/ascent/internal/events"
	"github.com/ascent-prep/ascent/internal/i18n"
	"github.com/ascent-prep/ascent/internal/model"
	"github.com/ascent-prep/ascent/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	engine   engine.Engine
	store    *store.Store
	broker   *events.Broker
	upgrader websocket.Upgrader
}

// New creates a new Handler.
func New(eng engine.Engine, s *store.Store, b *events.Broker) *Handler {
	return &Handler{
		engine: eng,
		store:  s,
		broker: b,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/students", h.handleCreateStudent)
		r.Get("/students", h.handleListStudents)
		r.Get("/students/{studentID}", h.handleGetStudent)
		r.Get("/students/{studentID}/progress/stream", h.handleProgressStream)

		r.Post("/sessions", h.handleStartSession)
		r.Get("/sessions", h.handleListSessions)
		r.Post("/sessions/{sessionID}/responses", h.handleSubmitResponse)
		r.Get("/sessions/{sessionID}/report", h.handleReport)

		r.Post("/concepts/{conceptID}/prerequisites", h.handleAddPrerequisite)
		r.Delete("/concepts/{conceptID}/prerequisites/{prereqID}", h.handleRemovePrerequisite)
		r.Get("/concepts/{conceptID}/chain", h.handleChain)
		r.Get("/jurisdictions", h.handleListJurisdictions)
		r.Get("/jurisdictions/{jurisdictionID}/graph/validate", h.handleValidateGraph)

		r.Post("/paths", h.handleGeneratePath)
		r.Get("/paths/{pathID}", h.handleGetPath)
		r.Post("/steps/{stepID}/attempts", h.handleRecordAttempt)
	})
}

func jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func errorResponse(w http.ResponseWriter, message string, status int) {
	jsonResponse(w, map[string]string{"error": message}, status)
}

// engineError maps typed engine failures onto HTTP statuses. Anything
// untyped is a server fault and is not echoed to the client.
func engineError(w http.ResponseWriter, err error) {
	switch {
	case enginerr.IsNotFound(err):
		errorResponse(w, err.Error(), http.StatusNotFound)
	case enginerr.IsInvalidState(err), enginerr.IsConflict(err):
		errorResponse(w, err.Error(), http.StatusConflict)
	case enginerr.IsConstraint(err), enginerr.IsExhaustedPool(err):
		errorResponse(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		slog.Error("engine failure", "error", err)
		errorResponse(w, "internal error", http.StatusInternalServerError)
	}
}

func decode(r *http.Request, v any) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (h *Handler) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if !decode(r, &req) || req.DisplayName == "" {
		errorResponse(w, "display_name is required", http.StatusBadRequest)
		return
	}

	student, err := h.store.CreateStudent(model.Student{DisplayName: req.DisplayName})
	if err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, student, http.StatusCreated)
}

func (h *Handler) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.store.ListStudents()
	if err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, students, http.StatusOK)
}

func (h *Handler) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "studentID")
	student, err := h.store.GetStudent(id)
	if err != nil {
		engineError(w, err)
		return
	}
	if student == nil {
		errorResponse(w, "student "+id+" not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, student, http.StatusOK)
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentID      string              `json:"student_id"`
		JurisdictionID string              `json:"jurisdiction_id"`
		Config         model.SessionConfig `json:"config"`
	}
	if !decode(r, &req) {
		errorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}

	state, err := h.engine.StartSession(r.Context(), req.StudentID, req.JurisdictionID, req.Config)
	if err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, state, http.StatusCreated)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions()
	if err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, sessions, http.StatusOK)
}

func (h *Handler) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID         string `json:"item_id"`
		SelectedOption string `json:"selected_option"`
		ElapsedSeconds int    `json:"elapsed_seconds"`
	}
	if !decode(r, &req) {
		errorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.engine.SubmitResponse(r.Context(), chi.URLParam(r, "sessionID"),
		req.ItemID, req.SelectedOption, req.ElapsedSeconds)
	if err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, result, http.StatusOK)
}

// reportResponse is the diagnostic report plus its readiness band rendered
// in the request's language.
type reportResponse struct {
	*model.DiagnosticReport
	ReadinessLabel string `json:"readiness_label"`
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.GetReport(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, reportResponse{
		DiagnosticReport: report,
		ReadinessLabel:   i18n.ReadinessLabel(r.Context(), report.Readiness),
	}, http.StatusOK)
}

func (h *Handler) handleAddPrerequisite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PrerequisiteID string `json:"prerequisite_id"`
	}
	if !decode(r, &req) || req.PrerequisiteID == "" {
		errorResponse(w, "prerequisite_id is required", http.StatusBadRequest)
		return
	}

	edge, err := h.engine.AddPrerequisite(r.Context(), chi.URLParam(r, "conceptID"), req.PrerequisiteID)
	if err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, edge, http.StatusCreated)
}

func (h *Handler) handleRemovePrerequisite(w http.ResponseWriter, r *http.Request) {
	err := h.engine.RemovePrerequisite(r.Context(), chi.URLParam(r, "conceptID"), chi.URLParam(r, "prereqID"))
	if err != nil {
		engineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleChain(w http.ResponseWriter, r *http.Request) {
	chain, err := h.engine.PrerequisiteChain(r.Context(), chi.URLParam(r, "conceptID"))
	if err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, chain, http.StatusOK)
}

func (h *Handler) handleListJurisdictions(w http.ResponseWriter, r *http.Request) {
	jurisdictions, err := h.store.ListJurisdictions()
	if err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, jurisdictions, http.StatusOK)
}

func (h *Handler) handleValidateGraph(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.ValidateGraph(r.Context(), chi.URLParam(r, "jurisdictionID"))
	if err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, report, http.StatusOK)
}

func (h *Handler) handleGeneratePath(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string            `json:"session_id"`
		Profile   model.PaceProfile `json:"profile"`
	}
	if !decode(r, &req) || req.SessionID == "" {
		errorResponse(w, "session_id is required", http.StatusBadRequest)
		return
	}

	path, err := h.engine.GeneratePath(r.Context(), req.SessionID, req.Profile)
	if err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, path, http.StatusCreated)
}

func (h *Handler) handleGetPath(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "pathID")
	path, err := h.store.GetPath(id)
	if err != nil {
		engineError(w, err)
		return
	}
	if path == nil {
		errorResponse(w, "path "+id+" not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, path, http.StatusOK)
}

// attemptResponse is the attempt outcome plus a localized reward line when
// the attempt earned XP.
type attemptResponse struct {
	*engine.AttemptResult
	Message string `json:"message,omitempty"`
}

func (h *Handler) handleRecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID         string `json:"item_id"`
		Correct        bool   `json:"correct"`
		ElapsedSeconds int    `json:"elapsed_seconds"`
	}
	if !decode(r, &req) {
		errorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.engine.RecordStepAttempt(r.Context(), chi.URLParam(r, "stepID"),
		req.ItemID, req.Correct, req.ElapsedSeconds)
	if err != nil {
		engineError(w, err)
		return
	}

	resp := attemptResponse{AttemptResult: result}
	if result.XPAwarded > 0 {
		resp.Message = i18n.Tp(r.Context(), "XPAwarded", result.XPAwarded)
	}
	jsonResponse(w, resp, http.StatusOK)
}
