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

const sessionColumns = "s.id, s.child_id, s.device_class, s.started_at, s.ends_at, s.coins_used, s.status, s.hardware_ok, s.ended_at"

// SessionRepository handles database operations for sessions
type SessionRepository struct {
	db database.DBTX
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db database.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *SessionRepository) WithTx(tx *database.Tx) *SessionRepository {
	return &SessionRepository{db: tx}
}

func scanSession(row rowScanner, extra ...any) (*models.Session, error) {
	s := &models.Session{}
	var endedAt sql.NullTime
	dest := append([]any{
		&s.ID, &s.ChildID, &s.DeviceClass, &s.StartedAt, &s.EndsAt,
		&s.CoinsUsed, &s.Status, &s.HardwareOK, &endedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	return s, nil
}

// Create inserts an active session and sets its ID
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (child_id, device_class, started_at, ends_at, coins_used, status, hardware_ok)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		s.ChildID, s.DeviceClass, s.StartedAt, s.EndsAt, s.CoinsUsed, s.Status, s.HardwareOK)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	s.ID = id
	return nil
}

// GetByID retrieves a session, or nil if it does not exist
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions s WHERE s.id = ?"
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// GetActiveByChild returns the child's active session, or nil
func (r *SessionRepository) GetActiveByChild(ctx context.Context, childID int64) (*models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions s WHERE s.child_id = ? AND s.status = ?"
	s, err := scanSession(r.db.QueryRowContext(ctx, query, childID, models.StatusActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return s, nil
}

// ListDue returns active sessions whose end time is at or before now
func (r *SessionRepository) ListDue(ctx context.Context, now time.Time) ([]models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions s WHERE s.status = ? AND s.ends_at <= ? ORDER BY s.ends_at ASC"
	rows, err := r.db.QueryContext(ctx, query, models.StatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Finish moves an active session to a terminal status. It reports false
// when the session was not active, so terminal rows are never rewritten.
func (r *SessionRepository) Finish(ctx context.Context, id int64, status models.SessionStatus, now time.Time) (bool, error) {
	query := "UPDATE sessions SET status = ?, ended_at = ? WHERE id = ? AND status = ?"
	result, err := r.db.ExecContext(ctx, query, status, now, id, models.StatusActive)
	if err != nil {
		return false, fmt.Errorf("failed to finish session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to finish session: %w", err)
	}
	return n == 1, nil
}

// SetHardwareOK records the outcome of the unlock call
func (r *SessionRepository) SetHardwareOK(ctx context.Context, id int64, ok bool) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE sessions SET hardware_ok = ? WHERE id = ?", ok, id); err != nil {
		return fmt.Errorf("failed to set hardware status: %w", err)
	}
	return nil
}

// List returns sessions newest first with the child's name
func (r *SessionRepository) List(ctx context.Context, filter models.LogFilter) ([]models.SessionWithChild, error) {
	filter = filter.Normalize()
	query := "SELECT " + sessionColumns + ", c.name FROM sessions s JOIN children c ON c.id = s.child_id"
	args := []any{}
	if filter.ChildID > 0 {
		query += " WHERE s.child_id = ?"
		args = append(args, filter.ChildID)
	}
	query += " ORDER BY s.started_at DESC, s.id DESC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.SessionWithChild{}
	for rows.Next() {
		var name string
		s, err := scanSession(rows, &name)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, models.SessionWithChild{Session: *s, ChildName: name})
	}
	return sessions, rows.Err()
}

// DeleteByChild removes all sessions of a child
func (r *SessionRepository) DeleteByChild(ctx context.Context, childID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE child_id = ?", childID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}
