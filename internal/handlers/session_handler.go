package handlers

import (
	"net/http"

	"muenzbox/internal/models"
	"muenzbox/internal/service"
)

type startSessionRequest struct {
	ChildID int64              `json:"child_id"`
	Type    models.DeviceClass `json:"type"`
	Coins   int                `json:"coins"`
}

// SessionHandler serves the child-facing endpoints
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Status returns balances and the time windows in force
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	status, err := h.sessionService.Status(r.Context(), GetPrincipalFromContext(r.Context()), childID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// ActiveSession returns the running session or null
func (h *SessionHandler) ActiveSession(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	session, err := h.sessionService.ActiveSession(r.Context(), GetPrincipalFromContext(r.Context()), childID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// Start redeems coins for a new session
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	session, err := h.sessionService.Start(r.Context(), GetPrincipalFromContext(r.Context()), req.ChildID, req.Type, req.Coins)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// End finishes the caller's own session early
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	session, err := h.sessionService.End(r.Context(), GetPrincipalFromContext(r.Context()), sessionID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "status": session.Status})
}
