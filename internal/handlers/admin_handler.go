package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"muenzbox/internal/models"
	"muenzbox/internal/service"
)

type adjustCoinsRequest struct {
	Type   models.DeviceClass `json:"type" validate:"required"`
	Delta  int                `json:"delta" validate:"min:-100|max:100"`
	Reason string             `json:"reason" validate:"in:admin_adjust"`
}

type adjustPocketMoneyRequest struct {
	DeltaCents int64  `json:"delta_cents" validate:"min:-10000000|max:10000000"`
	Note       string `json:"note" validate:"maxLen:200"`
}

type createdChild struct {
	*service.ChildView
	PIN string `json:"pin"`
}

// AdminHandler handles the parent-facing management routes
type AdminHandler struct {
	childService   *service.ChildService
	ledgerService  *service.LedgerService
	sessionService *service.SessionService
	deviceService  *service.DeviceService
	backupService  *service.BackupService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(childService *service.ChildService, ledgerService *service.LedgerService, sessionService *service.SessionService,
	deviceService *service.DeviceService, backupService *service.BackupService) *AdminHandler {
	return &AdminHandler{
		childService:   childService,
		ledgerService:  ledgerService,
		sessionService: sessionService,
		deviceService:  deviceService,
		backupService:  backupService,
	}
}

// ListChildren returns every child with balances and settings
func (h *AdminHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.childService.List(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, children)
}

// CreateChild adds a child and returns its PIN once
func (h *AdminHandler) CreateChild(w http.ResponseWriter, r *http.Request) {
	var in service.ChildInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, r, err)
		return
	}

	child, pin, err := h.childService.Create(r.Context(), in)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, createdChild{ChildView: child, PIN: pin})
}

// UpdateChild applies the fields present in the body
func (h *AdminHandler) UpdateChild(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	var in service.ChildInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, r, err)
		return
	}

	child, err := h.childService.Update(r.Context(), id, in)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, child)
}

// DeleteChild removes a child with its history
func (h *AdminHandler) DeleteChild(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if err := h.childService.Delete(r.Context(), id); err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// AdjustCoins adds or removes coins, clamped to [0, max]
func (h *AdminHandler) AdjustCoins(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	var req adjustCoinsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	balance, err := h.ledgerService.Adjust(r.Context(), id, req.Type, req.Delta, models.ReasonAdminAdjust)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "new_value": balance})
}

// AdjustPocketMoney changes the pocket money balance, never below zero
func (h *AdminHandler) AdjustPocketMoney(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	var req adjustPocketMoneyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	cents, err := h.ledgerService.AdjustPocketMoney(r.Context(), id, req.DeltaCents, req.Note)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "new_value": cents})
}

// RegeneratePIN replaces a child's PIN and returns the new one
func (h *AdminHandler) RegeneratePIN(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	pin, err := h.childService.RegeneratePIN(r.Context(), id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"pin": pin})
}

// ListSessions returns sessions newest first
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	filter, err := logFilter(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	sessions, err := h.sessionService.List(r.Context(), filter)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

// CancelSession stops any active session
func (h *AdminHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	session, err := h.sessionService.Cancel(r.Context(), GetPrincipalFromContext(r.Context()), id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "status": session.Status})
}

// CoinLog lists coin changes newest first
func (h *AdminHandler) CoinLog(w http.ResponseWriter, r *http.Request) {
	filter, err := logFilter(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	entries, err := h.ledgerService.ListCoinLog(r.Context(), filter)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// PocketMoneyLog lists pocket money changes newest first
func (h *AdminHandler) PocketMoneyLog(w http.ResponseWriter, r *http.Request) {
	filter, err := logFilter(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	entries, err := h.ledgerService.ListPocketMoneyLog(r.Context(), filter)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// ListDevices returns all devices with secrets masked
func (h *AdminHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.deviceService.List(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, devices)
}

// CreateDevice adds a device
func (h *AdminHandler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var in service.DeviceInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, r, err)
		return
	}

	dev, err := h.deviceService.Create(r.Context(), in)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, dev)
}

// UpdateDevice applies the fields present in the body
func (h *AdminHandler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	var in service.DeviceInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, r, err)
		return
	}

	dev, err := h.deviceService.Update(r.Context(), id, in)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, dev)
}

// DeleteDevice removes a device
func (h *AdminHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if err := h.deviceService.Delete(r.Context(), id); err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// MockStatus returns the simulated hardware, or null when mock mode is off.
// Always 200 so the admin UI can poll it.
func (h *AdminHandler) MockStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.deviceService.MockStatus())
}

// ExportDatabase streams a JSON backup as a download
func (h *AdminHandler) ExportDatabase(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("muenzbox_backup_%s.json", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if _, err := h.backupService.Export(r.Context(), w); err != nil {
		respondWithError(w, r, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("filename", filename).Msg("database exported")
}
