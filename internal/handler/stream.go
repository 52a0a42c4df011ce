package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleProgressStream upgrades to a websocket and forwards the student's
// progress events as JSON frames. The subscription is taken out before the
// upgrade completes, so an event fired right after the handshake is never
// missed.
func (h *Handler) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	student, err := h.store.GetStudent(studentID)
	if err != nil {
		engineError(w, err)
		return
	}
	if student == nil {
		errorResponse(w, "student "+studentID+" not found", http.StatusNotFound)
		return
	}

	sub := h.broker.Subscribe(studentID)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		sub.Close()
		return
	}
	defer conn.Close()
	defer sub.Close()

	// The read side exists only to notice the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-sub.C:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
