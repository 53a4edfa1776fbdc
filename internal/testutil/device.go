package testutil

import (
	"sync"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
)

// FakeDevice is a reusable fake implementing ports.Device. Applied
// directives update the observation the way a real device would.
type FakeDevice struct {
	mu      sync.Mutex
	Obs     hvac.Observation
	Applied []hvac.Directive
	Err     error
}

func NewFakeDevice(temp float64, mode hvac.Mode) *FakeDevice {
	return &FakeDevice{Obs: hvac.Observation{
		Temperature: hvac.FloatPtr(temp),
		Setpoint:    hvac.FloatPtr(21),
		Mode:        mode,
		Action:      hvac.ActionIdle,
	}}
}

func (d *FakeDevice) Observe() hvac.Observation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Obs
}

func (d *FakeDevice) Apply(dir hvac.Directive) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Applied = append(d.Applied, dir)
	if d.Err != nil {
		return d.Err
	}
	if dir.Mode != nil {
		d.Obs.Mode = *dir.Mode
	}
	if dir.Temperature != nil {
		d.Obs.Setpoint = hvac.FloatPtr(*dir.Temperature)
	}
	return nil
}

func (d *FakeDevice) Last() (hvac.Directive, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Applied) == 0 {
		return hvac.Directive{}, false
	}
	return d.Applied[len(d.Applied)-1], true
}
