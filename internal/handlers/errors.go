package handlers

import (
	"maps"
	"net/http"
	"slices"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gookit/validate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"muenzbox/internal/models"
	"muenzbox/internal/service"
	"muenzbox/internal/timewindow"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every failed request
type errorResponse struct {
	Error     service.Reason        `json:"error"`
	Message   string                `json:"message"`
	Field     string                `json:"field,omitempty"`
	Windows   []timewindow.Interval `json:"windows,omitempty"`
	Available *int                  `json:"available,omitempty"`
}

var statusByReason = map[service.Reason]int{
	service.ReasonForbidden:          http.StatusForbidden,
	service.ReasonUnauthorized:       http.StatusUnauthorized,
	service.ReasonInvalidCredentials: http.StatusUnauthorized,
	service.ReasonInvalidDeviceClass: http.StatusBadRequest,
	service.ReasonInvalidCoinAmount:  http.StatusBadRequest,
	service.ReasonSessionCapExceeded: http.StatusBadRequest,
	service.ReasonChildNotFound:      http.StatusNotFound,
	service.ReasonOutsideTimeWindow:  http.StatusForbidden,
	service.ReasonInsufficientCoins:  http.StatusBadRequest,
	service.ReasonSessionActive:      http.StatusConflict,
	service.ReasonSessionNotFound:    http.StatusNotFound,
	service.ReasonDeviceNotFound:     http.StatusNotFound,
	service.ReasonInvalidInput:       http.StatusBadRequest,
	reasonRateLimited:                http.StatusTooManyRequests,
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// respondWithError maps err to a status code and a localized JSON body.
// Anything that is not a rejection is logged and reported as internal_error.
func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	e := service.AsError(err)
	if e == nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		e = &service.Error{Reason: reasonInternal}
	}

	status, ok := statusByReason[e.Reason]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := errorResponse{
		Error:   e.Reason,
		Message: localize(printerFor(r.Header.Get("Accept-Language")), e),
		Field:   e.Field,
		Windows: e.Windows,
	}
	if e.Reason == service.ReasonInsufficientCoins {
		available := e.Available
		body.Available = &available
	}
	respondJSON(w, status, body)
}

func invalidInput(field, detail string) error {
	return &service.Error{Reason: service.ReasonInvalidInput, Field: field, Detail: detail}
}

// decodeJSON reads a request body into v and runs its validate tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return invalidInput("body", "invalid JSON")
	}
	return validateRequest(v)
}

func validateRequest(req any) error {
	v := validate.Struct(req)
	if v.Validate() {
		return nil
	}
	fields := slices.Sorted(maps.Keys(v.Errors))
	if len(fields) == 0 {
		return invalidInput("", v.Errors.One())
	}
	return invalidInput(fields[0], v.Errors.FieldOne(fields[0]))
}

// pathID parses a numeric path value such as {id}.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, invalidInput(name, "must be a positive number")
	}
	return id, nil
}

// logFilter reads the optional child_id and limit query parameters.
func logFilter(r *http.Request) (models.LogFilter, error) {
	var filter models.LogFilter
	query := r.URL.Query()

	if raw := query.Get("child_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, invalidInput("child_id", "must be a number")
		}
		filter.ChildID = id
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return filter, invalidInput("limit", "must be a number")
		}
		filter.Limit = limit
	}
	return filter.Normalize(), nil
}
