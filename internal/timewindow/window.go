// Package timewindow decides whether a child may use a screen at a given moment.
package timewindow

import (
	"strings"
	"time"

	"github.com/goccy/go-json"

	"muenzbox/internal/models"
)

const clockLayout = "15:04"

// Fallback is used whenever a child has no usable interval configured.
var Fallback = []Interval{{From: "08:00", To: "20:00"}}

// Interval is a time-of-day range in HH:MM, inclusive at both ends.
type Interval struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// UnmarshalJSON also accepts the legacy von/bis keys.
func (iv *Interval) UnmarshalJSON(data []byte) error {
	var raw struct {
		From string `json:"from"`
		To   string `json:"to"`
		Von  string `json:"von"`
		Bis  string `json:"bis"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	iv.From, iv.To = raw.From, raw.To
	if iv.From == "" {
		iv.From = raw.Von
	}
	if iv.To == "" {
		iv.To = raw.Bis
	}
	return nil
}

// bounds returns the interval as minutes since midnight.
func (iv Interval) bounds() (from, to int, ok bool) {
	f, err := time.Parse(clockLayout, strings.TrimSpace(iv.From))
	if err != nil {
		return 0, 0, false
	}
	t, err := time.Parse(clockLayout, strings.TrimSpace(iv.To))
	if err != nil {
		return 0, 0, false
	}
	return f.Hour()*60 + f.Minute(), t.Hour()*60 + t.Minute(), true
}

// Valid reports whether both ends parse as HH:MM.
func (iv Interval) Valid() bool {
	_, _, ok := iv.bounds()
	return ok
}

// String renders the interval as "08:00–20:00".
func (iv Interval) String() string {
	return iv.From + "–" + iv.To
}

// ParseIntervals decodes a stored interval list. Empty or undecodable input
// yields nil; callers substitute Fallback.
func ParseIntervals(raw string) []Interval {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var intervals []Interval
	if err := json.Unmarshal([]byte(raw), &intervals); err != nil {
		return nil
	}
	return intervals
}

// EncodeIntervals serializes intervals for storage.
func EncodeIntervals(intervals []Interval) string {
	if len(intervals) == 0 {
		return "[]"
	}
	data, err := json.Marshal(intervals)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// IsWithin reports whether the local time-of-day of now lies inside any
// interval. Malformed intervals are skipped.
func IsWithin(intervals []Interval, now time.Time) bool {
	minute := now.Hour()*60 + now.Minute()
	for _, iv := range intervals {
		from, to, ok := iv.bounds()
		if !ok {
			continue
		}
		if minute >= from && minute <= to {
			return true
		}
	}
	return false
}

// Format joins intervals for user-facing messages.
func Format(intervals []Interval) string {
	parts := make([]string, 0, len(intervals))
	for _, iv := range intervals {
		parts = append(parts, iv.String())
	}
	return strings.Join(parts, ", ")
}

// Schedule holds a child's weekday and weekend/holiday interval lists.
type Schedule struct {
	Weekday []Interval
	Weekend []Interval
}

// ScheduleFor parses the interval lists stored on a child.
func ScheduleFor(child *models.Child) Schedule {
	return Schedule{
		Weekday: ParseIntervals(child.AllowedPeriods),
		Weekend: ParseIntervals(child.WeekendPeriods),
	}
}

// Evaluator applies schedules in the household time zone.
type Evaluator struct {
	loc *time.Location
}

// NewEvaluator creates an evaluator for loc. A nil loc means UTC.
func NewEvaluator(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{loc: loc}
}

// Location returns the evaluator's time zone.
func (e *Evaluator) Location() *time.Location {
	return e.loc
}

// Local converts now into the household time zone.
func (e *Evaluator) Local(now time.Time) time.Time {
	return now.In(e.loc)
}

// IsWeekendOrHoliday classifies the household-local date of now.
func (e *Evaluator) IsWeekendOrHoliday(now time.Time) bool {
	return IsWeekendOrHoliday(e.Local(now))
}

// ActivePeriods returns the interval list in force at now. An empty list is
// replaced by Fallback.
func (e *Evaluator) ActivePeriods(s Schedule, now time.Time) []Interval {
	periods := s.Weekday
	if e.IsWeekendOrHoliday(now) {
		periods = s.Weekend
	}

	if len(periods) == 0 {
		return Fallback
	}
	return periods
}

// Allowed reports whether now lies inside the active periods and returns them.
func (e *Evaluator) Allowed(s Schedule, now time.Time) (bool, []Interval) {
	periods := e.ActivePeriods(s, now)
	return IsWithin(periods, e.Local(now)), periods
}
