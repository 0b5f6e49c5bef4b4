package handlers

import (
	"context"
	"net/http"
	"time"

	"muenzbox/internal/service"
)

// Pinger reports whether the store is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

type pinRequest struct {
	PIN string `json:"pin" validate:"required|maxLen:32"`
}

// AuthHandler serves the public endpoints: health, child selection and PIN login
type AuthHandler struct {
	authService  *service.AuthService
	childService *service.ChildService
	db           Pinger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, childService *service.ChildService, db Pinger) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		childService: childService,
		db:           db,
	}
}

// Health reports whether the database answers
func (h *AuthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListChildren returns id, name and avatar for the selection screen
func (h *AuthHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.childService.ListPublic(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, children)
}

// ChildLogin exchanges a child's PIN for a child token
func (h *AuthHandler) ChildLogin(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	var req pinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	result, err := h.authService.ChildLogin(r.Context(), childID, req.PIN)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// AdminLogin exchanges the admin PIN for an admin token
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	result, err := h.authService.AdminLogin(req.PIN)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
