package service

import (
	"errors"
	"fmt"

	"muenzbox/internal/timewindow"
	"muenzbox/internal/validation"
)

// Reason is the machine-readable cause of a rejected request.
type Reason string

const (
	ReasonForbidden          Reason = "forbidden"
	ReasonUnauthorized       Reason = "unauthorized"
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonInvalidDeviceClass Reason = "invalid_device_class"
	ReasonInvalidCoinAmount  Reason = "invalid_coin_amount"
	ReasonSessionCapExceeded Reason = "session_cap_exceeded"
	ReasonChildNotFound      Reason = "child_not_found"
	ReasonOutsideTimeWindow  Reason = "outside_time_window"
	ReasonInsufficientCoins  Reason = "insufficient_balance"
	ReasonSessionActive      Reason = "session_active"
	ReasonSessionNotFound    Reason = "session_not_found"
	ReasonDeviceNotFound     Reason = "device_not_found"
	ReasonInvalidInput       Reason = "invalid_input"
)

// Error is a rejection with no state change. Errors compare equal under
// errors.Is when their reasons match, so the details of an instance never
// affect matching against the sentinels below.
type Error struct {
	Reason    Reason
	Windows   []timewindow.Interval
	Available int
	Field     string
	Detail    string
}

func (e *Error) Error() string {
	switch {
	case e.Reason == ReasonOutsideTimeWindow && len(e.Windows) > 0:
		return fmt.Sprintf("%s (%s)", e.Reason, timewindow.Format(e.Windows))
	case e.Reason == ReasonInsufficientCoins:
		return fmt.Sprintf("%s (available: %d)", e.Reason, e.Available)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
	}
	return string(e.Reason)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

var (
	ErrForbidden          = &Error{Reason: ReasonForbidden}
	ErrUnauthorized       = &Error{Reason: ReasonUnauthorized}
	ErrInvalidCredentials = &Error{Reason: ReasonInvalidCredentials}
	ErrInvalidDeviceClass = &Error{Reason: ReasonInvalidDeviceClass}
	ErrInvalidCoinAmount  = &Error{Reason: ReasonInvalidCoinAmount}
	ErrSessionCapExceeded = &Error{Reason: ReasonSessionCapExceeded}
	ErrChildNotFound      = &Error{Reason: ReasonChildNotFound}
	ErrOutsideTimeWindow  = &Error{Reason: ReasonOutsideTimeWindow}
	ErrInsufficientCoins  = &Error{Reason: ReasonInsufficientCoins}
	ErrSessionActive      = &Error{Reason: ReasonSessionActive}
	ErrSessionNotFound    = &Error{Reason: ReasonSessionNotFound}
	ErrDeviceNotFound     = &Error{Reason: ReasonDeviceNotFound}
	ErrInvalidInput       = &Error{Reason: ReasonInvalidInput}
)

func outsideWindow(windows []timewindow.Interval) *Error {
	return &Error{Reason: ReasonOutsideTimeWindow, Windows: windows}
}

func insufficientCoins(available int) *Error {
	return &Error{Reason: ReasonInsufficientCoins, Available: available}
}

func invalidInput(field, detail string) *Error {
	return &Error{Reason: ReasonInvalidInput, Field: field, Detail: detail}
}

// AsError extracts a rejection from err, or nil for internal failures.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// validationFailed converts a validation package error into a rejection.
func validationFailed(err error) error {
	if err == nil {
		return nil
	}
	var verr validation.ValidationError
	if errors.As(err, &verr) {
		return invalidInput(verr.Field, verr.Message)
	}
	return invalidInput("", err.Error())
}
