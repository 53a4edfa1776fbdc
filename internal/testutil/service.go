package testutil

import (
	"sync"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
	"github.com/Agrid-Dev/thermoguard/internal/ports"
	"github.com/Agrid-Dev/thermoguard/internal/safety"
)

// FakeService is a reusable fake implementing ports.Service.
// Put ONLY what multiple test packages need here.
type FakeService struct {
	mu sync.Mutex
	S  ports.Status

	SetSetpointCalled bool
	SetSetpointArg    float64
	SetSetpointErr    error

	SetModeCalled bool
	SetModeArg    hvac.Mode
	SetModeErr    error

	ClearOverrideCalled bool
}

func NewFakeService() *FakeService {
	return &FakeService{
		S: ports.Status{
			DeviceID:            "dev-1",
			AmbientTemperature:  hvac.FloatPtr(21),
			TemperatureSetpoint: hvac.FloatPtr(22),
			Mode:                hvac.ModeHeat,
			Action:              hvac.ActionHeating,
			Safety:              ports.SafetyStatus{State: "inactive", Hysteresis: safety.DefaultHysteresis},
			HeatingHoursToday:   1.5,
			CoolingHoursToday:   0.25,
		},
	}
}

func (f *FakeService) Status() ports.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.S
}

func (f *FakeService) SetSetpoint(v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetSetpointCalled = true
	f.SetSetpointArg = v
	if f.SetSetpointErr != nil {
		return f.SetSetpointErr
	}
	f.S.TemperatureSetpoint = hvac.FloatPtr(v)
	return nil
}

func (f *FakeService) SetMode(m hvac.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetModeCalled = true
	f.SetModeArg = m
	if f.SetModeErr != nil {
		return f.SetModeErr
	}
	f.S.Mode = m
	return nil
}

func (f *FakeService) ClearOverride() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ClearOverrideCalled = true
	f.S.Override = ports.OverrideStatus{}
}

// Recorder collects safety events.
type Recorder struct {
	mu     sync.Mutex
	Events []safety.Event
}

func (r *Recorder) Notify(e safety.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Events)
}
