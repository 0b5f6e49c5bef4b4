package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"muenzbox/internal/models"
	"muenzbox/internal/security"
	"muenzbox/internal/service"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const PrincipalContextKey ContextKey = "principal"

const requestIDHeader = "X-Request-ID"

// Middleware holds dependencies for middleware functions
type Middleware struct {
	authService *service.AuthService
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(authService *service.AuthService) *Middleware {
	return &Middleware{authService: authService}
}

func (m *Middleware) authenticate(r *http.Request) (models.Principal, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return models.Principal{}, service.ErrUnauthorized
	}
	return m.authService.Verify(strings.TrimSpace(token))
}

func (m *Middleware) require(role models.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := m.authenticate(r)
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		if p.Role != role {
			respondWithError(w, r, service.ErrForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalContextKey, p)
		next(w, r.WithContext(ctx))
	}
}

// RequireChild is middleware that requires a child bearer token
func (m *Middleware) RequireChild(next http.HandlerFunc) http.HandlerFunc {
	return m.require(models.RoleChild, next)
}

// RequireAdmin is middleware that requires an admin bearer token
func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return m.require(models.RoleAdmin, next)
}

// GetPrincipalFromContext retrieves the verified caller from the request context
func GetPrincipalFromContext(ctx context.Context) models.Principal {
	p, _ := ctx.Value(PrincipalContextKey).(models.Principal)
	return p
}

// RateLimit rejects requests from a client address that exceeds limiter
func RateLimit(limiter *security.RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(security.GetClientIP(r)) {
			respondWithError(w, r, &service.Error{Reason: reasonRateLimited})
			return
		}
		next(w, r)
	}
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (w *responseRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Logging middleware tags each request with an id, puts a request logger in
// the context and logs the outcome.
func Logging(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		reqLogger := logger.With().Str("request_id", requestID).Logger()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(reqLogger.WithContext(r.Context())))

		event := reqLogger.Info()
		if rec.status >= http.StatusInternalServerError {
			event = reqLogger.Error()
		}
		event.Str("method", r.Method).Str("path", r.URL.Path).Int("status", rec.status).
			Dur("duration", time.Since(start)).Msg("request")
	})
}
