package models

import "time"

// LogReason explains why a balance changed
type LogReason string

const (
	ReasonWeeklyRefill LogReason = "weekly_refill"
	ReasonSession      LogReason = "session"
	ReasonAdminAdjust  LogReason = "admin_adjust"
)

// CoinLogEntry is one append-only audit row of a coin balance change
type CoinLogEntry struct {
	ID        int64       `json:"id"`
	ChildID   int64       `json:"child_id"`
	ChildName string      `json:"child_name,omitempty"`
	CoinType  DeviceClass `json:"type"`
	Delta     int         `json:"delta"`
	Reason    LogReason   `json:"reason"`
	CreatedAt time.Time   `json:"created_at"`
}

// PocketMoneyLogEntry is one append-only audit row of a pocket money change
type PocketMoneyLogEntry struct {
	ID         int64     `json:"id"`
	ChildID    int64     `json:"child_id"`
	ChildName  string    `json:"child_name,omitempty"`
	DeltaCents int64     `json:"delta_cents"`
	Reason     LogReason `json:"reason"`
	Note       string    `json:"note"`
	CreatedAt  time.Time `json:"created_at"`
}

// LogFilter narrows a log listing
type LogFilter struct {
	ChildID int64
	Limit   int
}

const (
	DefaultLogLimit = 200
	MaxLogLimit     = 500
)

// Normalize applies the default and maximum page sizes
func (f LogFilter) Normalize() LogFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultLogLimit
	}
	if f.Limit > MaxLogLimit {
		f.Limit = MaxLogLimit
	}
	return f
}
