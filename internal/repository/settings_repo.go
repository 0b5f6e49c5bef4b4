package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"muenzbox/internal/database"
)

// LastWeeklyRefillKey stores the local date (YYYY-MM-DD) of the last weekly refill
const LastWeeklyRefillKey = "last_weekly_refill"

type SettingsRepository struct {
	db database.DBTX
}

func NewSettingsRepository(db database.DBTX) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *SettingsRepository) WithTx(tx *database.Tx) *SettingsRepository {
	return &SettingsRepository{db: tx}
}

// Get retrieves a setting value by name. A missing setting yields "".
func (r *SettingsRepository) Get(ctx context.Context, name string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE name = ?", name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", name, err)
	}
	return value, nil
}

// Set updates or inserts a setting
func (r *SettingsRepository) Set(ctx context.Context, name, value string) error {
	if _, err := r.db.ExecContext(ctx, r.db.GetDialect().UpsertSettingQuery(), name, value); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", name, err)
	}
	return nil
}
