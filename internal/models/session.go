package models

import "time"

// MinutesPerCoin is the screen time bought by one coin
const MinutesPerCoin = 30

// SessionStatus is the lifecycle state of a session
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// Session is a timed unlock paid for with coins
type Session struct {
	ID          int64         `json:"id"`
	ChildID     int64         `json:"child_id"`
	DeviceClass DeviceClass   `json:"type"`
	StartedAt   time.Time     `json:"started_at"`
	EndsAt      time.Time     `json:"ends_at"`
	CoinsUsed   int           `json:"coins_used"`
	Status      SessionStatus `json:"status"`
	HardwareOK  bool          `json:"hardware_ok"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
}

// IsActive reports whether the session can still be ended or cancelled
func (s *Session) IsActive() bool {
	return s.Status == StatusActive
}

// IsDue reports whether an active session has reached its end time
func (s *Session) IsDue(now time.Time) bool {
	return s.IsActive() && !now.Before(s.EndsAt)
}

// Remaining returns the time left until EndsAt, never negative
func (s *Session) Remaining(now time.Time) time.Duration {
	if d := s.EndsAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// SessionEnd computes the end time for a session started at start with coins coins
func SessionEnd(start time.Time, coins int) time.Time {
	return start.Add(time.Duration(coins*MinutesPerCoin) * time.Minute)
}

// SessionWithChild adds the child's name for admin listings
type SessionWithChild struct {
	Session
	ChildName string `json:"child_name"`
}
