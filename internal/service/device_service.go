package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"muenzbox/internal/device"
	"muenzbox/internal/models"
	"muenzbox/internal/repository"
	"muenzbox/internal/validation"
)

// MaskedValue replaces secrets in device configs shown to the admin.
const MaskedValue = "***"

// DeviceInput carries admin edits. Nil fields are left unchanged on update.
type DeviceInput struct {
	Name          *string               `json:"name"`
	DeviceClass   *models.DeviceClass   `json:"device_type"`
	ControlMethod *models.ControlMethod `json:"control_type"`
	Identifier    *string               `json:"identifier"`
	Config        map[string]string     `json:"config"`
	IsActive      *bool                 `json:"is_active"`
}

// DeviceService manages the device table
type DeviceService struct {
	devices    *repository.DeviceRepository
	dispatcher *device.Dispatcher
	now        func() time.Time
	logger     zerolog.Logger
}

// NewDeviceService creates a new device service
func NewDeviceService(devices *repository.DeviceRepository, dispatcher *device.Dispatcher, logger zerolog.Logger) *DeviceService {
	return &DeviceService{
		devices:    devices,
		dispatcher: dispatcher,
		now:        time.Now,
		logger:     logger.With().Str("component", "devices").Logger(),
	}
}

// isSecretKey reports whether a config key holds a credential
func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	return strings.Contains(key, "password") || strings.Contains(key, "token") || strings.Contains(key, "secret")
}

// MaskConfig returns a copy of cfg with every non-empty secret replaced by MaskedValue
func MaskConfig(cfg map[string]string) map[string]string {
	masked := make(map[string]string, len(cfg))
	for k, v := range cfg {
		if v != "" && isSecretKey(k) {
			v = MaskedValue
		}
		masked[k] = v
	}
	return masked
}

// MergeConfig overlays update on stored. A masked secret in update keeps the
// stored value.
func MergeConfig(stored, update map[string]string) map[string]string {
	merged := make(map[string]string, len(stored)+len(update))
	for k, v := range stored {
		merged[k] = v
	}
	for k, v := range update {
		if v == MaskedValue && isSecretKey(k) {
			if old, ok := stored[k]; ok {
				merged[k] = old
			} else {
				delete(merged, k)
			}
			continue
		}
		merged[k] = v
	}
	return merged
}

func masked(d *models.Device) *models.Device {
	out := *d
	out.Config = MaskConfig(d.Config)
	return &out
}

// List returns all devices with secrets masked
func (s *DeviceService) List(ctx context.Context) ([]models.Device, error) {
	devices, err := s.devices.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range devices {
		devices[i].Config = MaskConfig(devices[i].Config)
	}
	return devices, nil
}

// Create adds a device. Class and control method are required.
func (s *DeviceService) Create(ctx context.Context, in DeviceInput) (*models.Device, error) {
	if in.Name == nil {
		return nil, invalidInput("name", "name is required")
	}
	if in.DeviceClass == nil {
		return nil, ErrInvalidDeviceClass
	}
	d := &models.Device{
		ControlMethod: models.ControlNone,
		IsActive:      true,
		Config:        map[string]string{},
		CreatedAt:     s.now().UTC().Truncate(time.Second),
	}
	if err := applyDeviceInput(d, in); err != nil {
		return nil, err
	}
	if err := s.devices.Create(ctx, d); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("device_id", d.ID).Str("method", string(d.ControlMethod)).Msg("device created")
	return masked(d), nil
}

// Update applies the non-nil fields of in and merges the config
func (s *DeviceService) Update(ctx context.Context, id int64, in DeviceInput) (*models.Device, error) {
	d, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrDeviceNotFound
	}
	if err := applyDeviceInput(d, in); err != nil {
		return nil, err
	}
	if err := s.devices.Update(ctx, d); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("device_id", id).Msg("device updated")
	return masked(d), nil
}

func applyDeviceInput(d *models.Device, in DeviceInput) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validation.ValidateName("name", name); err != nil {
			return validationFailed(err)
		}
		d.Name = name
	}
	if in.DeviceClass != nil {
		if !in.DeviceClass.Valid() {
			return ErrInvalidDeviceClass
		}
		d.DeviceClass = *in.DeviceClass
	}
	if in.ControlMethod != nil {
		if !in.ControlMethod.Valid() {
			return invalidInput("control_type", "unknown control method "+string(*in.ControlMethod))
		}
		d.ControlMethod = *in.ControlMethod
	}
	if in.Identifier != nil {
		d.Identifier = strings.TrimSpace(*in.Identifier)
	}
	if in.Config != nil {
		d.Config = MergeConfig(d.Config, in.Config)
	}
	if in.IsActive != nil {
		d.IsActive = *in.IsActive
	}
	return nil
}

// Delete removes a device
func (s *DeviceService) Delete(ctx context.Context, id int64) error {
	deleted, err := s.devices.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrDeviceNotFound
	}
	s.logger.Info().Int64("device_id", id).Msg("device deleted")
	return nil
}

// MockStatus returns the simulated hardware state, or nil outside mock mode
func (s *DeviceService) MockStatus() *device.SimulatorStatus {
	if s.dispatcher == nil || !s.dispatcher.MockMode() {
		return nil
	}
	status := s.dispatcher.Simulator().Status()
	return &status
}
