package repository

import (
	"context"
	"fmt"

	"muenzbox/internal/database"
	"muenzbox/internal/models"
)

// LedgerRepository stores the append-only coin and pocket money logs
type LedgerRepository struct {
	db database.DBTX
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db database.DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *LedgerRepository) WithTx(tx *database.Tx) *LedgerRepository {
	return &LedgerRepository{db: tx}
}

// InsertCoinLog appends a coin log row
func (r *LedgerRepository) InsertCoinLog(ctx context.Context, e *models.CoinLogEntry) error {
	query := "INSERT INTO coin_log (child_id, coin_type, delta, reason, created_at) VALUES (?, ?, ?, ?, ?)"
	id, err := r.db.ExecReturningID(ctx, query, e.ChildID, e.CoinType, e.Delta, e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert coin log: %w", err)
	}
	e.ID = id
	return nil
}

// InsertPocketMoneyLog appends a pocket money log row
func (r *LedgerRepository) InsertPocketMoneyLog(ctx context.Context, e *models.PocketMoneyLogEntry) error {
	query := "INSERT INTO pocket_money_log (child_id, delta_cents, reason, note, created_at) VALUES (?, ?, ?, ?, ?)"
	id, err := r.db.ExecReturningID(ctx, query, e.ChildID, e.DeltaCents, e.Reason, e.Note, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert pocket money log: %w", err)
	}
	e.ID = id
	return nil
}

// ListCoinLog returns coin log rows newest first, bounded by filter.Limit
func (r *LedgerRepository) ListCoinLog(ctx context.Context, filter models.LogFilter) ([]models.CoinLogEntry, error) {
	query := `SELECT l.id, l.child_id, c.name, l.coin_type, l.delta, l.reason, l.created_at
		FROM coin_log l JOIN children c ON c.id = l.child_id`
	query, args := applyFilter(query, filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query coin log: %w", err)
	}
	defer rows.Close()

	entries := []models.CoinLogEntry{}
	for rows.Next() {
		var e models.CoinLogEntry
		if err := rows.Scan(&e.ID, &e.ChildID, &e.ChildName, &e.CoinType, &e.Delta, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan coin log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListPocketMoneyLog returns pocket money log rows newest first
func (r *LedgerRepository) ListPocketMoneyLog(ctx context.Context, filter models.LogFilter) ([]models.PocketMoneyLogEntry, error) {
	query := `SELECT l.id, l.child_id, c.name, l.delta_cents, l.reason, l.note, l.created_at
		FROM pocket_money_log l JOIN children c ON c.id = l.child_id`
	query, args := applyFilter(query, filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pocket money log: %w", err)
	}
	defer rows.Close()

	entries := []models.PocketMoneyLogEntry{}
	for rows.Next() {
		var e models.PocketMoneyLogEntry
		if err := rows.Scan(&e.ID, &e.ChildID, &e.ChildName, &e.DeltaCents, &e.Reason, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pocket money log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteByChild removes both logs of a child
func (r *LedgerRepository) DeleteByChild(ctx context.Context, childID int64) error {
	for _, table := range []string{"coin_log", "pocket_money_log"} {
		if _, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE child_id = ?", childID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}
	return nil
}

func applyFilter(query string, filter models.LogFilter) (string, []any) {
	filter = filter.Normalize()
	var args []any
	if filter.ChildID > 0 {
		query += " WHERE l.child_id = ?"
		args = append(args, filter.ChildID)
	}
	query += " ORDER BY l.created_at DESC, l.id DESC LIMIT ?"
	args = append(args, filter.Limit)
	return query, args
}
