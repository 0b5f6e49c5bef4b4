package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"muenzbox/internal/database"
	"muenzbox/internal/models"
)

// NewTestDB opens a migrated SQLite database in a temp dir that is closed
// when the test ends.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Initialize(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.RunMigrations(context.Background(), zerolog.Nop()))
	return db
}

// ChildFixture describes a child row inserted by InsertChild
type ChildFixture struct {
	Name              string
	PINHash           string
	SwitchCoins       int
	SwitchCoinsWeekly int
	SwitchCoinsMax    int
	TVCoins           int
	TVCoinsWeekly     int
	TVCoinsMax        int
	PocketMoneyCents  int64
	PocketMoneyWeekly int64
	AllowedPeriods    string
	WeekendPeriods    string
}

// InsertChild stores a child directly and returns it as read back
func InsertChild(t *testing.T, db *database.DB, f ChildFixture) *models.Child {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	if f.Name == "" {
		f.Name = "Mia"
	}

	id, err := db.ExecReturningID(ctx, `
		INSERT INTO children (name, pin_hash, avatar,
			switch_coins, switch_coins_weekly, switch_coins_max,
			tv_coins, tv_coins_weekly, tv_coins_max,
			pocket_money_cents, pocket_money_weekly_cents,
			allowed_periods, weekend_periods, created_at, updated_at)
		VALUES (?, ?, '', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Name, f.PINHash,
		f.SwitchCoins, f.SwitchCoinsWeekly, f.SwitchCoinsMax,
		f.TVCoins, f.TVCoinsWeekly, f.TVCoinsMax,
		f.PocketMoneyCents, f.PocketMoneyWeekly,
		f.AllowedPeriods, f.WeekendPeriods, now, now)
	require.NoError(t, err)

	return &models.Child{
		ID: id, Name: f.Name, PINHash: f.PINHash,
		SwitchCoins: f.SwitchCoins, SwitchCoinsWeekly: f.SwitchCoinsWeekly, SwitchCoinsMax: f.SwitchCoinsMax,
		TVCoins: f.TVCoins, TVCoinsWeekly: f.TVCoinsWeekly, TVCoinsMax: f.TVCoinsMax,
		PocketMoneyCents: f.PocketMoneyCents, PocketMoneyWeeklyCents: f.PocketMoneyWeekly,
		AllowedPeriods: f.AllowedPeriods, WeekendPeriods: f.WeekendPeriods,
		CreatedAt: now, UpdatedAt: now,
	}
}

// InsertDevice stores a device directly and returns its id
func InsertDevice(t *testing.T, db *database.DB, class models.DeviceClass, method models.ControlMethod, identifier string) int64 {
	t.Helper()
	id, err := db.ExecReturningID(context.Background(),
		"INSERT INTO devices (name, device_class, control_method, identifier, config, is_active, created_at) VALUES (?, ?, ?, ?, '{}', ?, ?)",
		string(class)+"-"+identifier, class, method, identifier, true, time.Now().UTC().Truncate(time.Second))
	require.NoError(t, err)
	return id
}

// CountRows returns the number of rows in table
func CountRows(t *testing.T, db *database.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
