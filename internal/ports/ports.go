package ports

import (
	"context"
	"errors"
	"time"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
	"github.com/Agrid-Dev/thermoguard/internal/safety"
)

// ErrNotFound is returned by a Store when nothing was saved under a key.
var ErrNotFound = errors.New("not found")

// Device is the wrapped climate device the orchestrator drives.
type Device interface {
	Observe() hvac.Observation
	Apply(hvac.Directive) error
}

// Store persists small opaque records keyed by name.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// EventLog exposes recorded safety notifications, newest first.
type EventLog interface {
	List(ctx context.Context, limit int) ([]safety.Event, error)
}

// Service is the control-plane port used by controllers (HTTP/MQTT/etc).
type Service interface {
	Status() Status
	SetSetpoint(float64) error
	SetMode(hvac.Mode) error
	ClearOverride()
}

type SafetyStatus struct {
	State      string   `json:"state"`
	MinTemp    *float64 `json:"min_temp,omitempty"`
	MaxTemp    *float64 `json:"max_temp,omitempty"`
	Hysteresis float64  `json:"hysteresis"`
}

type OverrideStatus struct {
	Active    bool       `json:"active"`
	Since     *time.Time `json:"since,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Status is the read model shared by every controller.
type Status struct {
	DeviceID            string         `json:"device_id"`
	AmbientTemperature  *float64       `json:"ambient_temperature"`
	TemperatureSetpoint *float64       `json:"temperature_setpoint"`
	Mode                hvac.Mode      `json:"mode"`
	Action              hvac.Action    `json:"action"`
	ObservedAt          time.Time      `json:"observed_at"`
	Safety              SafetyStatus   `json:"safety"`
	Override            OverrideStatus `json:"override"`
	HeatingHoursToday   float64        `json:"heating_hours_today"`
	CoolingHoursToday   float64        `json:"cooling_hours_today"`
}
