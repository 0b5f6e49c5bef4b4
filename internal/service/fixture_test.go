package service

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"muenzbox/internal/database"
	"muenzbox/internal/device"
	"muenzbox/internal/models"
	"muenzbox/internal/testutil"
	"muenzbox/internal/timewindow"
)

// wednesdayAfternoon is 15:00 in Berlin on an ordinary school day.
var wednesdayAfternoon = time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC)

type fixture struct {
	db         *database.DB
	clock      *testutil.Clock
	router     *testutil.MockController
	simulator  *device.Simulator
	notifier   *testutil.MockNotifier
	dispatcher *device.Dispatcher
	ledger     *LedgerService
	sessions   *SessionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	f := &fixture{
		db:        testutil.NewTestDB(t),
		clock:     testutil.NewClock(wednesdayAfternoon),
		router:    &testutil.MockController{},
		simulator: device.NewSimulator(),
		notifier:  &testutil.MockNotifier{},
	}
	f.dispatcher = device.New(device.Options{
		MikroTik:  f.router,
		Console:   f.simulator.Console(),
		Simulator: f.simulator,
		Timeout:   time.Second,
		Logger:    zerolog.Nop(),
	})
	f.ledger = NewLedgerService(f.db, zerolog.Nop())
	f.ledger.SetClock(f.clock.Now)
	f.sessions = NewSessionService(f.db, f.ledger, timewindow.NewEvaluator(berlin), f.dispatcher, nil, f.notifier, zerolog.Nop())
	f.sessions.SetClock(f.clock.Now)
	return f
}

func childPrincipal(c *models.Child) models.Principal {
	return models.Principal{Subject: c.ID, Role: models.RoleChild, Name: c.Name}
}

var adminPrincipal = models.Principal{Role: models.RoleAdmin, Name: "admin"}
