// Package device drives the hardware that enforces screen time. Every call is
// best effort: failures are logged and reported as false, never as errors.
package device

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"muenzbox/internal/config"
	"muenzbox/internal/models"
)

const (
	actionUnlock = "unlock"
	actionLock   = "lock"
)

// Target is what an adapter needs to address one device.
type Target struct {
	Identifier string
	Config     map[string]string
}

// Controller toggles network access for a device.
type Controller interface {
	Unlock(ctx context.Context, target Target) error
	Lock(ctx context.Context, target Target) error
}

// Console controls the game console's daily play time.
type Console interface {
	Unlock(ctx context.Context, minutes int) error
	Lock(ctx context.Context) error
}

// Observer receives the outcome of every hardware call.
type Observer interface {
	DeviceCall(method, action string, ok bool)
}

type noopObserver struct{}

func (noopObserver) DeviceCall(string, string, bool) {}

// Options wires a Dispatcher. Nil adapters make the matching calls fail.
type Options struct {
	MikroTik  Controller
	FritzBox  Controller
	Console   Console
	Simulator *Simulator
	UseMock   bool
	Timeout   time.Duration
	Logger    zerolog.Logger
	Observer  Observer
}

// Dispatcher routes lock and unlock requests to the adapter named by a
// device's control method.
type Dispatcher struct {
	mikrotik  Controller
	fritzbox  Controller
	console   Console
	simulator *Simulator
	useMock   bool
	timeout   time.Duration
	logger    zerolog.Logger
	observer  Observer
}

// New creates a dispatcher. Timeout is capped at config.MaxDeviceTimeout.
func New(opts Options) *Dispatcher {
	timeout := opts.Timeout
	if timeout <= 0 || timeout > config.MaxDeviceTimeout {
		timeout = config.MaxDeviceTimeout
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	simulator := opts.Simulator
	if simulator == nil {
		simulator = NewSimulator()
	}

	return &Dispatcher{
		mikrotik:  opts.MikroTik,
		fritzbox:  opts.FritzBox,
		console:   opts.Console,
		simulator: simulator,
		useMock:   opts.UseMock,
		timeout:   timeout,
		logger:    opts.Logger.With().Str("component", "device").Logger(),
		observer:  observer,
	}
}

// NewFromConfig builds the real adapters from configuration.
func NewFromConfig(cfg config.DevicesConfig, logger zerolog.Logger, observer Observer) *Dispatcher {
	var console Console
	if cfg.Console.BridgeURL != "" {
		console = NewConsoleBridge(cfg.Console, cfg.Timeout)
	}

	return New(Options{
		MikroTik: NewMikroTik(cfg.MikroTik, cfg.Timeout),
		FritzBox: NewFritzBox(cfg.FritzBox, cfg.Timeout),
		Console:  console,
		UseMock:  cfg.UseMock,
		Timeout:  cfg.Timeout,
		Logger:   logger,
		Observer: observer,
	})
}

// Simulator returns the in-memory adapter, used for the mock status view.
func (d *Dispatcher) Simulator() *Simulator {
	return d.simulator
}

// MockMode reports whether real adapters are replaced by the simulator.
func (d *Dispatcher) MockMode() bool {
	return d.useMock
}

// Unlock grants network access to dev.
func (d *Dispatcher) Unlock(ctx context.Context, dev *models.Device) bool {
	return d.toggle(ctx, dev, actionUnlock)
}

// Lock revokes network access from dev.
func (d *Dispatcher) Lock(ctx context.Context, dev *models.Device) bool {
	return d.toggle(ctx, dev, actionLock)
}

func (d *Dispatcher) toggle(ctx context.Context, dev *models.Device, action string) bool {
	if dev == nil {
		return false
	}

	var ctrl Controller
	switch dev.ControlMethod {
	case models.ControlMikroTik:
		ctrl = d.mikrotik
	case models.ControlFritzBox:
		ctrl = d.fritzbox
	case models.ControlMock:
		ctrl = d.simulator
	case models.ControlScheduleOnly, models.ControlNone:
		d.logger.Debug().Str("method", string(dev.ControlMethod)).Str("device", dev.Name).
			Msg("device has no hardware control")
		return false
	default:
		d.logger.Warn().Str("method", string(dev.ControlMethod)).Str("device", dev.Name).
			Msg("unknown control method")
		return false
	}

	if d.useMock {
		ctrl = d.simulator
	}
	if ctrl == nil {
		d.logger.Warn().Str("method", string(dev.ControlMethod)).Msg("adapter not configured")
		d.observer.DeviceCall(string(dev.ControlMethod), action, false)
		return false
	}

	target := Target{Identifier: dev.Identifier, Config: dev.Config}
	return d.call(ctx, string(dev.ControlMethod), action, func(ctx context.Context) error {
		if action == actionUnlock {
			return ctrl.Unlock(ctx, target)
		}
		return ctrl.Lock(ctx, target)
	})
}

// UnlockConsole allows minutes of console play.
func (d *Dispatcher) UnlockConsole(ctx context.Context, minutes int) bool {
	console := d.consoleAdapter()
	if console == nil {
		d.logger.Debug().Str("action", actionUnlock).Msg("console bridge not configured")
		return false
	}
	return d.call(ctx, "console", actionUnlock, func(ctx context.Context) error {
		return console.Unlock(ctx, minutes)
	})
}

// LockConsole stops console play.
func (d *Dispatcher) LockConsole(ctx context.Context) bool {
	console := d.consoleAdapter()
	if console == nil {
		d.logger.Debug().Str("action", actionLock).Msg("console bridge not configured")
		return false
	}
	return d.call(ctx, "console", actionLock, func(ctx context.Context) error {
		return console.Lock(ctx)
	})
}

// HasConsole reports whether console calls reach a bridge or the simulator.
func (d *Dispatcher) HasConsole() bool {
	return d.consoleAdapter() != nil
}

func (d *Dispatcher) consoleAdapter() Console {
	if d.useMock {
		return d.simulator.Console()
	}
	return d.console
}

// call bounds fn by the dispatcher timeout and turns errors and panics into
// false. An adapter that ignores its context is abandoned at the deadline.
func (d *Dispatcher) call(ctx context.Context, method, action string, fn func(ctx context.Context) error) bool {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("adapter panicked: %v", r)
			}
		}()
		done <- fn(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	ok := err == nil
	d.observer.DeviceCall(method, action, ok)

	if !ok {
		d.logger.Error().Err(err).Str("method", method).Str("action", action).
			Dur("elapsed", time.Since(start)).Msg("device call failed")
		return false
	}

	d.logger.Info().Str("method", method).Str("action", action).
		Dur("elapsed", time.Since(start)).Msg("device call succeeded")
	return true
}
