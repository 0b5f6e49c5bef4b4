package handlers

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"muenzbox/internal/service"
	"muenzbox/internal/timewindow"
)

const (
	reasonInternal    service.Reason = "internal_error"
	reasonRateLimited service.Reason = "rate_limited"
)

// Supported response languages; the first one is the default.
var supportedLanguages = []language.Tag{language.German, language.English}

var languageMatcher = language.NewMatcher(supportedLanguages)

// messages maps each reason to its German and English text.
var messages = map[service.Reason][2]string{
	service.ReasonForbidden:          {"Kein Zugriff.", "Access denied."},
	service.ReasonUnauthorized:       {"Nicht angemeldet.", "Not logged in."},
	service.ReasonInvalidCredentials: {"Falsche PIN.", "Wrong PIN."},
	service.ReasonInvalidDeviceClass: {"Ungültiger Typ (switch oder tv).", "Invalid type (switch or tv)."},
	service.ReasonInvalidCoinAmount:  {"Mindestens 1 Münze erforderlich.", "At least 1 coin is required."},
	service.ReasonSessionCapExceeded: {"Für die Switch höchstens %d Münzen pro Session.", "At most %d coins per console session."},
	service.ReasonChildNotFound:      {"Kind nicht gefunden.", "Child not found."},
	service.ReasonOutsideTimeWindow:  {"Außerhalb der erlaubten Zeit (%s).", "Outside the allowed time (%s)."},
	service.ReasonInsufficientCoins:  {"Nicht genug Münzen (verfügbar: %d).", "Not enough coins (available: %d)."},
	service.ReasonSessionActive:      {"Es läuft bereits eine Session.", "A session is already running."},
	service.ReasonSessionNotFound:    {"Aktive Session nicht gefunden.", "Active session not found."},
	service.ReasonDeviceNotFound:     {"Gerät nicht gefunden.", "Device not found."},
	service.ReasonInvalidInput:       {"Ungültige Eingabe: %s", "Invalid input: %s"},
	reasonInternal:                   {"Interner Fehler.", "Internal error."},
	reasonRateLimited:                {"Zu viele Versuche, bitte kurz warten.", "Too many attempts, please wait a moment."},
}

var messageCatalog = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(supportedLanguages[0]))
	for reason, texts := range messages {
		for i, tag := range supportedLanguages {
			if err := b.SetString(tag, string(reason), texts[i]); err != nil {
				panic(fmt.Sprintf("message catalog: %s: %v", reason, err))
			}
		}
	}
	return b
}

// printerFor picks the response language from an Accept-Language header.
func printerFor(acceptLanguage string) *message.Printer {
	tags, _, _ := language.ParseAcceptLanguage(acceptLanguage)
	_, index, _ := languageMatcher.Match(tags...)
	return message.NewPrinter(supportedLanguages[index], message.Catalog(messageCatalog))
}

// localize renders the user-facing message for a rejection.
func localize(p *message.Printer, e *service.Error) string {
	key := string(e.Reason)
	switch e.Reason {
	case service.ReasonOutsideTimeWindow:
		return p.Sprintf(key, timewindow.Format(e.Windows))
	case service.ReasonInsufficientCoins:
		return p.Sprintf(key, e.Available)
	case service.ReasonSessionCapExceeded:
		return p.Sprintf(key, service.MaxConsoleCoinsPerSession)
	case service.ReasonInvalidInput:
		detail := e.Field
		switch {
		case detail == "":
			detail = e.Detail
		case e.Detail != "":
			detail += " (" + e.Detail + ")"
		}
		return p.Sprintf(key, detail)
	}
	if _, ok := messages[e.Reason]; !ok {
		return key
	}
	return p.Sprintf(key)
}
