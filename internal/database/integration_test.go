package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMigrated(t *testing.T) *DB {
	t.Helper()

	db, err := Initialize(filepath.Join(t.TempDir(), "muenzbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.RunMigrations(context.Background(), zerolog.Nop()))
	return db
}

func TestDatabaseIntegration(t *testing.T) {
	db := openMigrated(t)
	ctx := context.Background()

	tables := []string{"children", "sessions", "coin_log", "pocket_money_log", "devices", "settings"}
	for _, table := range tables {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}

	// Second run is a no-op
	require.NoError(t, db.RunMigrations(ctx, zerolog.Nop()))
}

func TestDatabaseTransactions(t *testing.T) {
	db := openMigrated(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	var childID int64
	err := db.WithTx(ctx, func(tx *Tx) error {
		id, err := tx.ExecReturningID(ctx,
			"INSERT INTO children (name, pin_hash, created_at, updated_at) VALUES (?, ?, ?, ?)",
			"Mia", "x", now, now)
		childID = id
		return err
	})
	require.NoError(t, err)
	assert.NotZero(t, childID)

	err = db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, "UPDATE children SET tv_coins = 5 WHERE id = ?", childID); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	var coins int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT tv_coins FROM children WHERE id = ?", childID).Scan(&coins))
	assert.Equal(t, 0, coins, "rolled back update must not be visible")
}

func TestOneActiveSessionIndex(t *testing.T) {
	db := openMigrated(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	childID, err := db.ExecReturningID(ctx,
		"INSERT INTO children (name, pin_hash, created_at, updated_at) VALUES (?, ?, ?, ?)",
		"Ben", "x", now, now)
	require.NoError(t, err)

	insert := "INSERT INTO sessions (child_id, device_class, started_at, ends_at, coins_used, status) VALUES (?, 'tv', ?, ?, 1, ?)"
	_, err = db.ExecContext(ctx, insert, childID, now, now.Add(30*time.Minute), "active")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, insert, childID, now, now.Add(30*time.Minute), "active")
	require.Error(t, err)
	assert.True(t, db.Dialect.IsUniqueViolation(err))

	// Terminal rows do not count
	_, err = db.ExecContext(ctx, insert, childID, now, now.Add(30*time.Minute), "completed")
	assert.NoError(t, err)
}
