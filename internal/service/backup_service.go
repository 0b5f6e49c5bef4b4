package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"muenzbox/internal/database"
	"muenzbox/internal/models"
	"muenzbox/internal/repository"
)

// BackupVersion is written into every export
const BackupVersion = "1"

// BackupData represents the complete database backup
type BackupData struct {
	Version        string                       `json:"version"`
	ExportedAt     time.Time                    `json:"exported_at"`
	DatabaseType   string                       `json:"database_type"`
	Children       []models.Child               `json:"children"`
	Devices        []models.Device              `json:"devices"`
	Sessions       []models.Session             `json:"sessions"`
	CoinLog        []models.CoinLogEntry        `json:"coin_log"`
	PocketMoneyLog []models.PocketMoneyLogEntry `json:"pocket_money_log"`
	Settings       map[string]string            `json:"settings"`
}

// BackupService handles database backup and restore operations
type BackupService struct {
	db     *database.DB
	logger zerolog.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB, logger zerolog.Logger) *BackupService {
	return &BackupService{db: db, logger: logger.With().Str("component", "backup").Logger()}
}

// tables lists every data table in dependency order
var tables = []string{"children", "devices", "sessions", "coin_log", "pocket_money_log", "settings"}

// Export writes a complete backup as JSON
func (s *BackupService) Export(ctx context.Context, w io.Writer) (*BackupData, error) {
	backup := &BackupData{
		Version:      BackupVersion,
		ExportedAt:   time.Now().UTC(),
		DatabaseType: s.db.Dialect.DriverName(),
		Settings:     map[string]string{},
	}

	var err error
	if backup.Children, err = repository.NewChildRepository(s.db).List(ctx); err != nil {
		return nil, fmt.Errorf("failed to export children: %w", err)
	}
	if backup.Devices, err = repository.NewDeviceRepository(s.db).List(ctx); err != nil {
		return nil, fmt.Errorf("failed to export devices: %w", err)
	}
	if err := s.exportSessions(ctx, backup); err != nil {
		return nil, fmt.Errorf("failed to export sessions: %w", err)
	}
	if err := s.exportLogs(ctx, backup); err != nil {
		return nil, fmt.Errorf("failed to export logs: %w", err)
	}
	if err := s.exportSettings(ctx, backup); err != nil {
		return nil, fmt.Errorf("failed to export settings: %w", err)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return nil, fmt.Errorf("failed to encode backup: %w", err)
	}

	s.logger.Info().Int("children", len(backup.Children)).Int("devices", len(backup.Devices)).
		Int("sessions", len(backup.Sessions)).Int("coin_log", len(backup.CoinLog)).
		Int("pocket_money_log", len(backup.PocketMoneyLog)).Msg("database exported")
	return backup, nil
}

func (s *BackupService) exportSessions(ctx context.Context, backup *BackupData) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, child_id, device_class, started_at, ends_at, coins_used, status, hardware_ok, ended_at
		FROM sessions ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var sess models.Session
		var endedAt sql.NullTime
		if err := rows.Scan(&sess.ID, &sess.ChildID, &sess.DeviceClass, &sess.StartedAt, &sess.EndsAt,
			&sess.CoinsUsed, &sess.Status, &sess.HardwareOK, &endedAt); err != nil {
			return err
		}
		if endedAt.Valid {
			t := endedAt.Time
			sess.EndedAt = &t
		}
		backup.Sessions = append(backup.Sessions, sess)
	}
	return rows.Err()
}

func (s *BackupService) exportLogs(ctx context.Context, backup *BackupData) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id, child_id, coin_type, delta, reason, created_at FROM coin_log ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var e models.CoinLogEntry
		if err := rows.Scan(&e.ID, &e.ChildID, &e.CoinType, &e.Delta, &e.Reason, &e.CreatedAt); err != nil {
			return err
		}
		backup.CoinLog = append(backup.CoinLog, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	pmRows, err := s.db.QueryContext(ctx, "SELECT id, child_id, delta_cents, reason, note, created_at FROM pocket_money_log ORDER BY id")
	if err != nil {
		return err
	}
	defer pmRows.Close()
	for pmRows.Next() {
		var e models.PocketMoneyLogEntry
		if err := pmRows.Scan(&e.ID, &e.ChildID, &e.DeltaCents, &e.Reason, &e.Note, &e.CreatedAt); err != nil {
			return err
		}
		backup.PocketMoneyLog = append(backup.PocketMoneyLog, e)
	}
	return pmRows.Err()
}

func (s *BackupService) exportSettings(ctx context.Context, backup *BackupData) error {
	rows, err := s.db.QueryContext(ctx, "SELECT name, value FROM settings")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return err
		}
		backup.Settings[name] = value
	}
	return rows.Err()
}

// Import restores a backup in one transaction, keeping the original ids.
// With wipe set, existing rows are deleted first.
func (s *BackupService) Import(ctx context.Context, r io.Reader, wipe bool) (*BackupData, error) {
	var backup BackupData
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return nil, fmt.Errorf("failed to decode backup: %w", err)
	}
	if backup.Version != BackupVersion {
		return nil, fmt.Errorf("unsupported backup version %q", backup.Version)
	}

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		if wipe {
			for i := len(tables) - 1; i >= 0; i-- {
				if _, err := tx.ExecContext(ctx, "DELETE FROM "+tables[i]); err != nil {
					return fmt.Errorf("failed to clear %s: %w", tables[i], err)
				}
			}
		}
		if err := importChildren(ctx, tx, backup.Children); err != nil {
			return fmt.Errorf("failed to import children: %w", err)
		}
		if err := importDevices(ctx, tx, backup.Devices); err != nil {
			return fmt.Errorf("failed to import devices: %w", err)
		}
		if err := importSessions(ctx, tx, backup.Sessions); err != nil {
			return fmt.Errorf("failed to import sessions: %w", err)
		}
		if err := importLogs(ctx, tx, &backup); err != nil {
			return fmt.Errorf("failed to import logs: %w", err)
		}
		settings := repository.NewSettingsRepository(tx)
		for name, value := range backup.Settings {
			if err := settings.Set(ctx, name, value); err != nil {
				return err
			}
		}
		return resetSequences(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("exported_at", backup.ExportedAt.Format(time.RFC3339)).
		Int("children", len(backup.Children)).Int("sessions", len(backup.Sessions)).Msg("database imported")
	return &backup, nil
}

func importChildren(ctx context.Context, tx *database.Tx, children []models.Child) error {
	for _, c := range children {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO children (id, name, pin_hash, avatar,
				switch_coins, switch_coins_weekly, switch_coins_max,
				tv_coins, tv_coins_weekly, tv_coins_max,
				pocket_money_cents, pocket_money_weekly_cents,
				allowed_periods, weekend_periods, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.PINHash, c.Avatar,
			c.SwitchCoins, c.SwitchCoinsWeekly, c.SwitchCoinsMax,
			c.TVCoins, c.TVCoinsWeekly, c.TVCoinsMax,
			c.PocketMoneyCents, c.PocketMoneyWeeklyCents,
			c.AllowedPeriods, c.WeekendPeriods, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
		if err != nil {
			return err
		}
	}
	return nil
}

func importDevices(ctx context.Context, tx *database.Tx, devices []models.Device) error {
	for _, d := range devices {
		cfg, err := json.Marshal(d.Config)
		if err != nil {
			return err
		}
		if d.Config == nil {
			cfg = []byte("{}")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO devices (id, name, device_class, control_method, identifier, config, is_active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.Name, d.DeviceClass, d.ControlMethod, d.Identifier, string(cfg), d.IsActive, d.CreatedAt.UTC())
		if err != nil {
			return err
		}
	}
	return nil
}

func importSessions(ctx context.Context, tx *database.Tx, sessions []models.Session) error {
	for _, sess := range sessions {
		var endedAt any
		if sess.EndedAt != nil {
			endedAt = sess.EndedAt.UTC()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, child_id, device_class, started_at, ends_at, coins_used, status, hardware_ok, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, sess.ChildID, sess.DeviceClass, sess.StartedAt.UTC(), sess.EndsAt.UTC(),
			sess.CoinsUsed, sess.Status, sess.HardwareOK, endedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func importLogs(ctx context.Context, tx *database.Tx, backup *BackupData) error {
	for _, e := range backup.CoinLog {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO coin_log (id, child_id, coin_type, delta, reason, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			e.ID, e.ChildID, e.CoinType, e.Delta, e.Reason, e.CreatedAt.UTC()); err != nil {
			return err
		}
	}
	for _, e := range backup.PocketMoneyLog {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO pocket_money_log (id, child_id, delta_cents, reason, note, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			e.ID, e.ChildID, e.DeltaCents, e.Reason, e.Note, e.CreatedAt.UTC()); err != nil {
			return err
		}
	}
	return nil
}

// resetSequences moves PostgreSQL id sequences past the imported ids.
func resetSequences(ctx context.Context, tx *database.Tx) error {
	if tx.GetDialect().DriverName() != "postgres" {
		return nil
	}
	for _, table := range []string{"children", "devices", "sessions", "coin_log", "pocket_money_log"} {
		query := fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE(MAX(id), 1)) FROM %s", table, table)
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to reset sequence for %s: %w", table, err)
		}
	}
	return nil
}
