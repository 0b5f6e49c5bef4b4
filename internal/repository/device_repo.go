package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"muenzbox/internal/database"
	"muenzbox/internal/models"
)

const deviceColumns = "id, name, device_class, control_method, identifier, config, is_active, created_at"

// DeviceRepository handles database operations for devices
type DeviceRepository struct {
	db database.DBTX
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db database.DBTX) *DeviceRepository {
	return &DeviceRepository{db: db}
}

func scanDevice(row rowScanner) (*models.Device, error) {
	d := &models.Device{}
	var raw string
	if err := row.Scan(&d.ID, &d.Name, &d.DeviceClass, &d.ControlMethod, &d.Identifier, &raw, &d.IsActive, &d.CreatedAt); err != nil {
		return nil, err
	}
	cfg, err := decodeConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("device %d: %w", d.ID, err)
	}
	d.Config = cfg
	return d, nil
}

func decodeConfig(raw string) (map[string]string, error) {
	cfg := map[string]string{}
	if raw == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func encodeConfig(cfg map[string]string) (string, error) {
	if len(cfg) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Create inserts a device and sets its ID
func (r *DeviceRepository) Create(ctx context.Context, d *models.Device) error {
	cfg, err := encodeConfig(d.Config)
	if err != nil {
		return fmt.Errorf("failed to encode device config: %w", err)
	}
	query := `
		INSERT INTO devices (name, device_class, control_method, identifier, config, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, d.Name, d.DeviceClass, d.ControlMethod, d.Identifier, cfg, d.IsActive, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	d.ID = id
	return nil
}

// GetByID retrieves a device, or nil if it does not exist
func (r *DeviceRepository) GetByID(ctx context.Context, id int64) (*models.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return d, nil
}

// ActiveByClass returns the first active device of a class, or nil
func (r *DeviceRepository) ActiveByClass(ctx context.Context, class models.DeviceClass) (*models.Device, error) {
	query := "SELECT " + deviceColumns + " FROM devices WHERE device_class = ? AND is_active = ? ORDER BY id ASC LIMIT 1"
	d, err := scanDevice(r.db.QueryRowContext(ctx, query, class, true))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active device: %w", err)
	}
	return d, nil
}

// List returns all devices ordered by id
func (r *DeviceRepository) List(ctx context.Context) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// Update stores every mutable field of d
func (r *DeviceRepository) Update(ctx context.Context, d *models.Device) error {
	cfg, err := encodeConfig(d.Config)
	if err != nil {
		return fmt.Errorf("failed to encode device config: %w", err)
	}
	query := `
		UPDATE devices SET name = ?, device_class = ?, control_method = ?, identifier = ?, config = ?, is_active = ?
		WHERE id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, d.Name, d.DeviceClass, d.ControlMethod, d.Identifier, cfg, d.IsActive, d.ID); err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	return nil
}

// Delete removes a device. It reports whether a row was deleted.
func (r *DeviceRepository) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete device: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete device: %w", err)
	}
	return n > 0, nil
}
