package models

import "time"

// ControlMethod selects the adapter that drives a device
type ControlMethod string

const (
	ControlMikroTik     ControlMethod = "mikrotik"
	ControlFritzBox     ControlMethod = "fritzbox"
	ControlMock         ControlMethod = "mock"
	ControlScheduleOnly ControlMethod = "schedule_only"
	ControlNone         ControlMethod = "none"
)

// Valid reports whether m is one of the known methods
func (m ControlMethod) Valid() bool {
	switch m {
	case ControlMikroTik, ControlFritzBox, ControlMock, ControlScheduleOnly, ControlNone:
		return true
	}
	return false
}

// Device is a controllable screen or network client
type Device struct {
	ID            int64             `json:"id"`
	Name          string            `json:"name"`
	DeviceClass   DeviceClass       `json:"device_type"`
	ControlMethod ControlMethod     `json:"control_type"`
	Identifier    string            `json:"identifier"`
	Config        map[string]string `json:"config"`
	IsActive      bool              `json:"is_active"`
	CreatedAt     time.Time         `json:"created_at"`
}
