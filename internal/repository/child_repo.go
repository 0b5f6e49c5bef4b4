package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"muenzbox/internal/database"
	"muenzbox/internal/models"
)

const childColumns = `id, name, pin_hash, avatar,
	switch_coins, switch_coins_weekly, switch_coins_max,
	tv_coins, tv_coins_weekly, tv_coins_max,
	pocket_money_cents, pocket_money_weekly_cents,
	allowed_periods, weekend_periods, created_at, updated_at`

// ChildRepository handles database operations for children
type ChildRepository struct {
	db database.DBTX
}

// NewChildRepository creates a new child repository
func NewChildRepository(db database.DBTX) *ChildRepository {
	return &ChildRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *ChildRepository) WithTx(tx *database.Tx) *ChildRepository {
	return &ChildRepository{db: tx}
}

// coinColumn maps a device class to its balance column
func coinColumn(class models.DeviceClass) (string, error) {
	switch class {
	case models.ClassSwitch:
		return "switch_coins", nil
	case models.ClassTV:
		return "tv_coins", nil
	}
	return "", fmt.Errorf("unknown device class %q", class)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChild(row rowScanner) (*models.Child, error) {
	c := &models.Child{}
	err := row.Scan(
		&c.ID, &c.Name, &c.PINHash, &c.Avatar,
		&c.SwitchCoins, &c.SwitchCoinsWeekly, &c.SwitchCoinsMax,
		&c.TVCoins, &c.TVCoinsWeekly, &c.TVCoinsMax,
		&c.PocketMoneyCents, &c.PocketMoneyWeeklyCents,
		&c.AllowedPeriods, &c.WeekendPeriods, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts a child and sets its ID
func (r *ChildRepository) Create(ctx context.Context, c *models.Child) error {
	query := `
		INSERT INTO children (name, pin_hash, avatar,
			switch_coins, switch_coins_weekly, switch_coins_max,
			tv_coins, tv_coins_weekly, tv_coins_max,
			pocket_money_cents, pocket_money_weekly_cents,
			allowed_periods, weekend_periods, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		c.Name, c.PINHash, c.Avatar,
		c.SwitchCoins, c.SwitchCoinsWeekly, c.SwitchCoinsMax,
		c.TVCoins, c.TVCoinsWeekly, c.TVCoinsMax,
		c.PocketMoneyCents, c.PocketMoneyWeeklyCents,
		c.AllowedPeriods, c.WeekendPeriods, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create child: %w", err)
	}
	c.ID = id
	return nil
}

// GetByID retrieves a child by ID, or nil if it does not exist
func (r *ChildRepository) GetByID(ctx context.Context, id int64) (*models.Child, error) {
	query := "SELECT " + childColumns + " FROM children WHERE id = ?"
	return r.get(ctx, query, id)
}

// GetForUpdate reads a child and locks its row for the rest of the transaction
func (r *ChildRepository) GetForUpdate(ctx context.Context, id int64) (*models.Child, error) {
	query := "SELECT " + childColumns + " FROM children WHERE id = ?" + r.db.GetDialect().LockSuffix()
	return r.get(ctx, query, id)
}

func (r *ChildRepository) get(ctx context.Context, query string, id int64) (*models.Child, error) {
	c, err := scanChild(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get child: %w", err)
	}
	return c, nil
}

// List returns all children ordered by name
func (r *ChildRepository) List(ctx context.Context) ([]models.Child, error) {
	query := "SELECT " + childColumns + " FROM children ORDER BY name ASC, id ASC"
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query children: %w", err)
	}
	defer rows.Close()

	var children []models.Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan child: %w", err)
		}
		children = append(children, *c)
	}
	return children, rows.Err()
}

// IDs returns the ids of all children
func (r *ChildRepository) IDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM children ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query child ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan child id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Update stores every mutable field of c
func (r *ChildRepository) Update(ctx context.Context, c *models.Child) error {
	query := `
		UPDATE children SET name = ?, pin_hash = ?, avatar = ?,
			switch_coins = ?, switch_coins_weekly = ?, switch_coins_max = ?,
			tv_coins = ?, tv_coins_weekly = ?, tv_coins_max = ?,
			pocket_money_cents = ?, pocket_money_weekly_cents = ?,
			allowed_periods = ?, weekend_periods = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		c.Name, c.PINHash, c.Avatar,
		c.SwitchCoins, c.SwitchCoinsWeekly, c.SwitchCoinsMax,
		c.TVCoins, c.TVCoinsWeekly, c.TVCoinsMax,
		c.PocketMoneyCents, c.PocketMoneyWeeklyCents,
		c.AllowedPeriods, c.WeekendPeriods, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update child: %w", err)
	}
	return nil
}

// Delete removes a child. It reports whether a row was deleted.
func (r *ChildRepository) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM children WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete child: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete child: %w", err)
	}
	return n > 0, nil
}

// SetCoins overwrites one coin balance
func (r *ChildRepository) SetCoins(ctx context.Context, id int64, class models.DeviceClass, coins int, now time.Time) error {
	column, err := coinColumn(class)
	if err != nil {
		return err
	}
	query := "UPDATE children SET " + column + " = ?, updated_at = ? WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, coins, now, id); err != nil {
		return fmt.Errorf("failed to set coins: %w", err)
	}
	return nil
}

// DebitCoins subtracts n coins only if the balance covers them. It reports
// whether the debit happened.
func (r *ChildRepository) DebitCoins(ctx context.Context, id int64, class models.DeviceClass, n int, now time.Time) (bool, error) {
	column, err := coinColumn(class)
	if err != nil {
		return false, err
	}
	query := "UPDATE children SET " + column + " = " + column + " - ?, updated_at = ? WHERE id = ? AND " + column + " >= ?"
	result, err := r.db.ExecContext(ctx, query, n, now, id, n)
	if err != nil {
		return false, fmt.Errorf("failed to debit coins: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to debit coins: %w", err)
	}
	return affected == 1, nil
}

// SetPocketMoney overwrites the pocket money balance
func (r *ChildRepository) SetPocketMoney(ctx context.Context, id int64, cents int64, now time.Time) error {
	query := "UPDATE children SET pocket_money_cents = ?, updated_at = ? WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, cents, now, id); err != nil {
		return fmt.Errorf("failed to set pocket money: %w", err)
	}
	return nil
}

// SetPINHash replaces the PIN hash
func (r *ChildRepository) SetPINHash(ctx context.Context, id int64, hash string, now time.Time) error {
	query := "UPDATE children SET pin_hash = ?, updated_at = ? WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, hash, now, id); err != nil {
		return fmt.Errorf("failed to set pin: %w", err)
	}
	return nil
}
