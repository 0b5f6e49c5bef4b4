package timewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muenzbox/internal/models"
)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestParseIntervals(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []Interval
	}{
		{"empty", "", nil},
		{"garbage", "{not json", nil},
		{"empty list", "[]", []Interval{}},
		{"from/to", `[{"from":"08:00","to":"12:00"}]`, []Interval{{"08:00", "12:00"}}},
		{"legacy keys", `[{"von":"14:00","bis":"18:30"}]`, []Interval{{"14:00", "18:30"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseIntervals(tt.raw))
		})
	}
}

func TestEncodeIntervalsRoundTrip(t *testing.T) {
	in := []Interval{{"07:30", "08:00"}, {"15:00", "19:00"}}
	assert.Equal(t, in, ParseIntervals(EncodeIntervals(in)))
	assert.Equal(t, "[]", EncodeIntervals(nil))
}

func TestIsWithin(t *testing.T) {
	intervals := []Interval{{"08:00", "12:00"}, {"bad", "14:00"}, {"15:00", "19:30"}}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before first", at(2026, 3, 16, 7, 59), false},
		{"at start", at(2026, 3, 16, 8, 0), true},
		{"inside", at(2026, 3, 16, 10, 15), true},
		{"at end inclusive", at(2026, 3, 16, 12, 0), true},
		{"malformed skipped", at(2026, 3, 16, 13, 0), false},
		{"second interval", at(2026, 3, 16, 19, 30), true},
		{"after last", at(2026, 3, 16, 19, 31), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWithin(intervals, tt.now))
		})
	}
}

func TestIsWithinAllMalformed(t *testing.T) {
	assert.False(t, IsWithin([]Interval{{"8", "x"}, {"", ""}}, at(2026, 3, 16, 10, 0)))
}

func TestActivePeriods(t *testing.T) {
	e := NewEvaluator(time.UTC)
	s := Schedule{
		Weekday: []Interval{{"15:00", "18:00"}},
		Weekend: []Interval{{"09:00", "19:00"}},
	}

	assert.Equal(t, s.Weekday, e.ActivePeriods(s, at(2026, 3, 16, 10, 0)), "monday")
	assert.Equal(t, s.Weekend, e.ActivePeriods(s, at(2026, 3, 14, 10, 0)), "saturday")
	assert.Equal(t, s.Weekend, e.ActivePeriods(s, at(2026, 4, 6, 10, 0)), "easter monday")
	assert.Equal(t, Fallback, e.ActivePeriods(Schedule{}, at(2026, 3, 16, 10, 0)), "empty")
}

func TestAllowedUsesHouseholdZone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	e := NewEvaluator(berlin)
	s := Schedule{Weekday: []Interval{{"08:00", "09:00"}}}

	// 07:30 UTC on a March weekday is 08:30 in Berlin
	ok, periods := e.Allowed(s, at(2026, 3, 16, 7, 30))
	assert.True(t, ok)
	assert.Equal(t, s.Weekday, periods)

	ok, _ = e.Allowed(s, at(2026, 3, 16, 8, 30))
	assert.False(t, ok)
}

func TestScheduleFor(t *testing.T) {
	child := &models.Child{
		AllowedPeriods: `[{"von":"15:00","bis":"18:00"}]`,
		WeekendPeriods: `broken`,
	}

	s := ScheduleFor(child)
	assert.Equal(t, []Interval{{"15:00", "18:00"}}, s.Weekday)
	assert.Nil(t, s.Weekend)

	e := NewEvaluator(nil)
	assert.Equal(t, Fallback, e.ActivePeriods(s, at(2026, 3, 14, 10, 0)))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "08:00–12:00, 14:00–20:00", Format([]Interval{{"08:00", "12:00"}, {"14:00", "20:00"}}))
}
