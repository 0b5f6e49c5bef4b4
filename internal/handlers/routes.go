package handlers

import (
	"net/http"

	"muenzbox/internal/security"
)

// Routes bundles the handlers mounted under /api
type Routes struct {
	Middleware *Middleware
	Limiter    *security.RateLimiter
	Auth       *AuthHandler
	Sessions   *SessionHandler
	Admin      *AdminHandler
}

// Register mounts every API route on mux
func (rt *Routes) Register(mux *http.ServeMux) {
	m := rt.Middleware
	limited := func(h http.HandlerFunc) http.HandlerFunc {
		return RateLimit(rt.Limiter, h)
	}

	// Public routes
	mux.HandleFunc("GET /api/health", rt.Auth.Health)
	mux.HandleFunc("GET /api/children", rt.Auth.ListChildren)
	mux.HandleFunc("POST /api/children/{id}/verify-pin", limited(rt.Auth.ChildLogin))
	mux.HandleFunc("POST /api/admin/verify", limited(rt.Auth.AdminLogin))

	// Child routes
	mux.HandleFunc("GET /api/children/{id}/status", m.RequireChild(rt.Sessions.Status))
	mux.HandleFunc("GET /api/children/{id}/active-session", m.RequireChild(rt.Sessions.ActiveSession))
	mux.HandleFunc("POST /api/sessions", m.RequireChild(rt.Sessions.Start))
	mux.HandleFunc("POST /api/sessions/{id}/end", m.RequireChild(rt.Sessions.End))

	// Admin routes
	mux.HandleFunc("GET /api/admin/children", m.RequireAdmin(rt.Admin.ListChildren))
	mux.HandleFunc("POST /api/admin/children", m.RequireAdmin(rt.Admin.CreateChild))
	mux.HandleFunc("PUT /api/admin/children/{id}", m.RequireAdmin(rt.Admin.UpdateChild))
	mux.HandleFunc("DELETE /api/admin/children/{id}", m.RequireAdmin(rt.Admin.DeleteChild))
	mux.HandleFunc("POST /api/admin/children/{id}/adjust-coins", m.RequireAdmin(rt.Admin.AdjustCoins))
	mux.HandleFunc("POST /api/admin/children/{id}/adjust-pocket-money", m.RequireAdmin(rt.Admin.AdjustPocketMoney))
	mux.HandleFunc("POST /api/admin/children/{id}/regenerate-pin", m.RequireAdmin(rt.Admin.RegeneratePIN))

	mux.HandleFunc("GET /api/admin/sessions", m.RequireAdmin(rt.Admin.ListSessions))
	mux.HandleFunc("POST /api/admin/sessions/{id}/cancel", m.RequireAdmin(rt.Admin.CancelSession))

	mux.HandleFunc("GET /api/admin/coin-log", m.RequireAdmin(rt.Admin.CoinLog))
	mux.HandleFunc("GET /api/admin/pocket-money-log", m.RequireAdmin(rt.Admin.PocketMoneyLog))

	mux.HandleFunc("GET /api/admin/devices", m.RequireAdmin(rt.Admin.ListDevices))
	mux.HandleFunc("POST /api/admin/devices", m.RequireAdmin(rt.Admin.CreateDevice))
	mux.HandleFunc("PUT /api/admin/devices/{id}", m.RequireAdmin(rt.Admin.UpdateDevice))
	mux.HandleFunc("DELETE /api/admin/devices/{id}", m.RequireAdmin(rt.Admin.DeleteDevice))

	mux.HandleFunc("GET /api/admin/mock-status", m.RequireAdmin(rt.Admin.MockStatus))
	mux.HandleFunc("GET /api/admin/backup", m.RequireAdmin(rt.Admin.ExportDatabase))
}
