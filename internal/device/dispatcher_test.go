package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muenzbox/internal/models"
)

type fakeController struct {
	mu      sync.Mutex
	unlocks []Target
	locks   []Target
	err     error
	block   bool
	panics  bool
}

func (f *fakeController) Unlock(ctx context.Context, target Target) error {
	return f.do(ctx, target, &f.unlocks)
}

func (f *fakeController) Lock(ctx context.Context, target Target) error {
	return f.do(ctx, target, &f.locks)
}

func (f *fakeController) do(ctx context.Context, target Target, calls *[]Target) error {
	if f.panics {
		panic("adapter exploded")
	}
	if f.block {
		// Ignores ctx on purpose
		time.Sleep(2 * time.Second)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	*calls = append(*calls, target)
	return f.err
}

type fakeConsole struct {
	minutes []int
	locks   int
	err     error
}

func (f *fakeConsole) Unlock(_ context.Context, minutes int) error {
	f.minutes = append(f.minutes, minutes)
	return f.err
}

func (f *fakeConsole) Lock(context.Context) error {
	f.locks++
	return f.err
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingObserver) DeviceCall(method, action string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := "ok"
	if !ok {
		result = "fail"
	}
	r.calls = append(r.calls, method+"/"+action+"/"+result)
}

func tvDevice(method models.ControlMethod) *models.Device {
	return &models.Device{
		Name:          "Living room TV",
		DeviceClass:   models.ClassTV,
		ControlMethod: method,
		Identifier:    "tv-livingroom",
		Config:        map[string]string{"host": "router.lan"},
		IsActive:      true,
	}
}

func TestDispatcherRoutesByControlMethod(t *testing.T) {
	mikrotik := &fakeController{}
	fritzbox := &fakeController{}
	d := New(Options{MikroTik: mikrotik, FritzBox: fritzbox, Logger: zerolog.Nop()})
	ctx := context.Background()

	assert.True(t, d.Unlock(ctx, tvDevice(models.ControlMikroTik)))
	assert.True(t, d.Lock(ctx, tvDevice(models.ControlFritzBox)))

	require.Len(t, mikrotik.unlocks, 1)
	assert.Equal(t, "tv-livingroom", mikrotik.unlocks[0].Identifier)
	assert.Equal(t, "router.lan", mikrotik.unlocks[0].Config["host"])
	assert.Empty(t, mikrotik.locks)
	assert.Len(t, fritzbox.locks, 1)
	assert.Empty(t, fritzbox.unlocks)
}

func TestDispatcherNoHardwareMethods(t *testing.T) {
	mikrotik := &fakeController{}
	d := New(Options{MikroTik: mikrotik, Logger: zerolog.Nop()})
	ctx := context.Background()

	for _, method := range []models.ControlMethod{models.ControlNone, models.ControlScheduleOnly, "nintendo", ""} {
		assert.False(t, d.Unlock(ctx, tvDevice(method)), string(method))
		assert.False(t, d.Lock(ctx, tvDevice(method)), string(method))
	}
	assert.False(t, d.Unlock(ctx, nil))
	assert.Empty(t, mikrotik.unlocks)
}

func TestDispatcherMockMethodUsesSimulator(t *testing.T) {
	d := New(Options{Logger: zerolog.Nop()})
	ctx := context.Background()

	assert.True(t, d.Unlock(ctx, tvDevice(models.ControlMock)))
	assert.True(t, d.Simulator().Status().TVUnlocked)

	assert.True(t, d.Lock(ctx, tvDevice(models.ControlMock)))
	assert.False(t, d.Simulator().Status().TVUnlocked)
}

func TestDispatcherMockModeReplacesAdapters(t *testing.T) {
	mikrotik := &fakeController{}
	console := &fakeConsole{}
	d := New(Options{MikroTik: mikrotik, Console: console, UseMock: true, Logger: zerolog.Nop()})
	ctx := context.Background()

	assert.True(t, d.Unlock(ctx, tvDevice(models.ControlMikroTik)))
	assert.True(t, d.UnlockConsole(ctx, 60))

	status := d.Simulator().Status()
	assert.True(t, status.TVUnlocked)
	assert.Equal(t, 60, status.SwitchMinutes)
	assert.Empty(t, mikrotik.unlocks)
	assert.Empty(t, console.minutes)
	assert.True(t, d.MockMode())
}

func TestDispatcherNormalizesFailures(t *testing.T) {
	observer := &recordingObserver{}
	d := New(Options{
		MikroTik: &fakeController{err: errors.New("connection refused")},
		FritzBox: &fakeController{panics: true},
		Logger:   zerolog.Nop(),
		Observer: observer,
	})
	ctx := context.Background()

	assert.False(t, d.Unlock(ctx, tvDevice(models.ControlMikroTik)))
	assert.False(t, d.Lock(ctx, tvDevice(models.ControlFritzBox)))
	assert.Equal(t, []string{"mikrotik/unlock/fail", "fritzbox/lock/fail"}, observer.calls)
}

func TestDispatcherMissingAdapter(t *testing.T) {
	d := New(Options{Logger: zerolog.Nop()})
	ctx := context.Background()

	assert.False(t, d.Unlock(ctx, tvDevice(models.ControlMikroTik)))
	assert.False(t, d.UnlockConsole(ctx, 30))
	assert.False(t, d.LockConsole(ctx))
	assert.False(t, d.HasConsole())

	assert.True(t, New(Options{UseMock: true, Logger: zerolog.Nop()}).HasConsole())
}

func TestDispatcherTimeout(t *testing.T) {
	d := New(Options{
		MikroTik: &fakeController{block: true},
		Timeout:  50 * time.Millisecond,
		Logger:   zerolog.Nop(),
	})

	start := time.Now()
	ok := d.Unlock(context.Background(), tvDevice(models.ControlMikroTik))
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatcherTimeoutIsCapped(t *testing.T) {
	d := New(Options{Timeout: time.Hour, Logger: zerolog.Nop()})
	assert.Equal(t, 10*time.Second, d.timeout)

	d = New(Options{Logger: zerolog.Nop()})
	assert.Equal(t, 10*time.Second, d.timeout)
}

func TestDispatcherConsole(t *testing.T) {
	console := &fakeConsole{}
	d := New(Options{Console: console, Logger: zerolog.Nop()})
	ctx := context.Background()

	assert.True(t, d.UnlockConsole(ctx, 90))
	assert.True(t, d.LockConsole(ctx))
	assert.Equal(t, []int{90}, console.minutes)
	assert.Equal(t, 1, console.locks)

	console.err = errors.New("bridge down")
	assert.False(t, d.LockConsole(ctx))
}
