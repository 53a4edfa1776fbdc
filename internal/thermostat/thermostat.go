// Package thermostat simulates the climate device wrapped by the guard: a
// setpoint with a permitted range, a hysteresis regulator and heat loss
// toward the outdoor temperature.
package thermostat

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
)

const changesBuffer = 16

type Snapshot struct {
	TemperatureSetpoint    float64
	TemperatureSetpointMin float64
	TemperatureSetpointMax float64
	Mode                   hvac.Mode
	AmbientTemperature     float64
}

type Thermostat struct {
	mu   sync.RWMutex
	s    Snapshot
	reg  *PIDRegulator
	loss *HeatLossSimulator
	now  func() time.Time

	changes chan hvac.Observation
}

func New(initial Snapshot, pidParams PIDRegulatorParams, lossParams HeatLossSimulatorParams) (*Thermostat, error) {
	if err := validateSnapshot(initial); err != nil {
		return nil, err
	}
	if err := pidParams.Validate(); err != nil {
		return nil, err
	}
	loss, err := NewHeatLossSimulator(lossParams)
	if err != nil {
		return nil, err
	}
	return &Thermostat{
		s:       initial,
		reg:     NewPIDRegulator(pidParams),
		loss:    loss,
		now:     time.Now,
		changes: make(chan hvac.Observation, changesBuffer),
	}, nil
}

func validateSnapshot(s Snapshot) error {
	if !s.Mode.Valid() {
		return ErrInvalidMode
	}
	if !finite(s.TemperatureSetpoint) || !finite(s.AmbientTemperature) {
		return ErrInvalidSetpoint
	}
	if s.TemperatureSetpointMin > s.TemperatureSetpointMax {
		return ErrInvalidMinMax
	}
	if s.TemperatureSetpoint < s.TemperatureSetpointMin || s.TemperatureSetpoint > s.TemperatureSetpointMax {
		return ErrSetpointOutOfRange
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func (t *Thermostat) Get() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.s
}

// Changes delivers an observation whenever mode, setpoint or activity
// changes. Slow readers miss intermediate states.
func (t *Thermostat) Changes() <-chan hvac.Observation { return t.changes }

func (t *Thermostat) SetMode(m hvac.Mode) error {
	return t.Apply(hvac.Directive{Mode: &m})
}

func (t *Thermostat) SetSetpoint(sp float64) error {
	return t.Apply(hvac.Directive{Temperature: &sp})
}

func (t *Thermostat) SetMinMax(min, max float64) error {
	if min > max {
		return ErrInvalidMinMax
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Enforce current setpoint remains valid
	if t.s.TemperatureSetpoint < min || t.s.TemperatureSetpoint > max {
		return ErrSetpointOutOfRange
	}
	t.s.TemperatureSetpointMin = min
	t.s.TemperatureSetpointMax = max
	return nil
}

// SetClock replaces the source of observation timestamps, for simulations
// that run faster than real time.
func (t *Thermostat) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Observe implements ports.Device.
func (t *Thermostat) Observe() hvac.Observation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.observation()
}

// Apply implements ports.Device. Both fields are validated before either
// is changed.
func (t *Thermostat) Apply(d hvac.Directive) error {
	if d.Mode != nil && !d.Mode.Valid() {
		return ErrInvalidMode
	}
	if d.Temperature != nil && !finite(*d.Temperature) {
		return ErrInvalidSetpoint
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if d.Temperature != nil {
		if *d.Temperature < t.s.TemperatureSetpointMin || *d.Temperature > t.s.TemperatureSetpointMax {
			return ErrSetpointOutOfRange
		}
		t.s.TemperatureSetpoint = *d.Temperature
	}
	if d.Mode != nil {
		t.s.Mode = *d.Mode
	}
	t.reg.Activate(t.s.TemperatureSetpoint, t.s.AmbientTemperature, t.s.Mode)
	t.publish()
	return nil
}

// Step advances the simulation by dt.
func (t *Thermostat) Step(dt time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	before := t.reg.Action()
	ambient := t.reg.Update(t.s.TemperatureSetpoint, t.s.AmbientTemperature, t.s.Mode, dt)
	t.s.AmbientTemperature = ambient + t.loss.DeltaTemperature(ambient, t.now(), dt)
	if t.reg.Action() != before {
		t.publish()
	}
}

func (t *Thermostat) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.Step(interval)
		}
	}
}

func (t *Thermostat) observation() hvac.Observation {
	return hvac.Observation{
		Temperature: hvac.FloatPtr(t.s.AmbientTemperature),
		Setpoint:    hvac.FloatPtr(t.s.TemperatureSetpoint),
		Mode:        t.s.Mode,
		Action:      t.reg.Action(),
		Timestamp:   t.now(),
	}
}

// publish must be called with t.mu held.
func (t *Thermostat) publish() {
	select {
	case t.changes <- t.observation():
	default:
	}
}
