package testutil

import (
	"context"
	"sync"
	"time"

	"muenzbox/internal/device"
	"muenzbox/internal/models"
)

// MockController records Unlock and Lock calls and answers with Err.
type MockController struct {
	mu      sync.Mutex
	Err     error
	Unlocks []string
	Locks   []string
}

func (m *MockController) Unlock(_ context.Context, target device.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Unlocks = append(m.Unlocks, target.Identifier)
	return m.Err
}

func (m *MockController) Lock(_ context.Context, target device.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Locks = append(m.Locks, target.Identifier)
	return m.Err
}

// Calls returns copies of the recorded unlock and lock identifiers.
func (m *MockController) Calls() (unlocks, locks []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Unlocks...), append([]string(nil), m.Locks...)
}

// MockNotifier records alerts.
type MockNotifier struct {
	mu     sync.Mutex
	Alerts []string
}

func (m *MockNotifier) HardwareFailure(_ context.Context, child string, class models.DeviceClass, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, child+":"+string(class)+":"+action)
	return nil
}

// Count returns the number of recorded alerts.
func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Alerts)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock fixed at t
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
