package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const simulatorLogSize = 20

// SimulatorEntry is one recorded simulated action.
type SimulatorEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"msg"`
}

// SimulatorStatus is a snapshot of the simulated hardware.
type SimulatorStatus struct {
	TVUnlocked     bool             `json:"tv_unlocked"`
	SwitchMinutes  int              `json:"switch_minutes"`
	SwitchUnlocked bool             `json:"switch_unlocked"`
	Log            []SimulatorEntry `json:"log"`
}

// Simulator stands in for every adapter when no hardware is available.
// It always succeeds and remembers the last actions, newest first.
type Simulator struct {
	mu            sync.Mutex
	tvUnlocked    bool
	switchMinutes int
	log           []SimulatorEntry
	now           func() time.Time
}

// NewSimulator creates a simulator with everything locked.
func NewSimulator() *Simulator {
	return &Simulator{now: time.Now}
}

func (s *Simulator) record(msg string) {
	s.log = append([]SimulatorEntry{{Time: s.now(), Message: msg}}, s.log...)
	if len(s.log) > simulatorLogSize {
		s.log = s.log[:simulatorLogSize]
	}
}

// Unlock implements Controller for the TV class.
func (s *Simulator) Unlock(ctx context.Context, target Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tvUnlocked = true
	s.record(fmt.Sprintf("TV unlocked (%s)", target.Identifier))
	return nil
}

// Lock implements Controller for the TV class.
func (s *Simulator) Lock(ctx context.Context, target Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tvUnlocked = false
	s.record(fmt.Sprintf("TV locked (%s)", target.Identifier))
	return nil
}

// simulatedConsole is the Console view of a Simulator.
type simulatedConsole struct{ s *Simulator }

func (c simulatedConsole) Unlock(ctx context.Context, minutes int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.switchMinutes = minutes
	c.s.record(fmt.Sprintf("Switch unlocked for %d minutes", minutes))
	return nil
}

func (c simulatedConsole) Lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.switchMinutes = 0
	c.s.record("Switch locked")
	return nil
}

// Console returns the simulator as a Console.
func (s *Simulator) Console() Console {
	return simulatedConsole{s: s}
}

// Status returns a copy of the simulated state.
func (s *Simulator) Status() SimulatorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := make([]SimulatorEntry, len(s.log))
	copy(log, s.log)
	return SimulatorStatus{
		TVUnlocked:     s.tvUnlocked,
		SwitchMinutes:  s.switchMinutes,
		SwitchUnlocked: s.switchMinutes > 0,
		Log:            log,
	}
}
