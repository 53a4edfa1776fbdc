// Package safety force-activates heating or cooling when the wrapped device
// is off and the ambient temperature leaves the configured limits.
package safety

import (
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
)

type Guard struct {
	cfg      Config
	deviceID string
	state    State
	notifier Notifier
	log      *zap.SugaredLogger
}

func New(cfg Config, deviceID string, notifier Notifier, log *zap.SugaredLogger) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Guard{
		cfg:      cfg,
		deviceID: deviceID,
		notifier: notifier,
		log:      log,
	}, nil
}

func (g *Guard) Config() Config { return g.cfg }

func (g *Guard) State() State { return g.state }

func (g *Guard) Active() bool { return g.state != StateInactive }

// Forcing reports whether mode is the one this guard forced the device
// into. A device running in that mode is still "off" from the user's point
// of view.
func (g *Guard) Forcing(mode hvac.Mode) bool {
	switch g.state {
	case StateActiveHeat:
		return mode == hvac.ModeHeat
	case StateActiveCool:
		return mode == hvac.ModeCool
	default:
		return false
	}
}

// Directive returns what the device must be doing while the guard holds
// it. It is false when the guard is inactive.
func (g *Guard) Directive() (hvac.Directive, bool) {
	switch g.state {
	case StateActiveHeat:
		return forceDirective(hvac.ModeHeat, *g.cfg.MinTemp), true
	case StateActiveCool:
		return forceDirective(hvac.ModeCool, *g.cfg.MaxTemp), true
	default:
		return hvac.Directive{}, false
	}
}

// Evaluate runs one step of the state machine. It returns a directive only
// on transitions that require the device to change.
func (g *Guard) Evaluate(temp float64, deviceIsOff bool, at time.Time) (hvac.Directive, bool) {
	if math.IsNaN(temp) || math.IsInf(temp, 0) {
		g.log.Warnw("safety: skipping evaluation, temperature not finite", "device_id", g.deviceID, "temperature", temp)
		return hvac.Directive{}, false
	}

	switch g.state {
	case StateActiveHeat:
		if !deviceIsOff {
			g.release(temp, at, ReasonDeviceOn)
			return hvac.Directive{}, false
		}
		if temp >= *g.cfg.MinTemp+g.cfg.Hysteresis {
			g.release(temp, at, ReasonRecovered)
			return offDirective(), true
		}
		return hvac.Directive{}, false

	case StateActiveCool:
		if !deviceIsOff {
			g.release(temp, at, ReasonDeviceOn)
			return hvac.Directive{}, false
		}
		if temp <= *g.cfg.MaxTemp-g.cfg.Hysteresis {
			g.release(temp, at, ReasonRecovered)
			return offDirective(), true
		}
		return hvac.Directive{}, false
	}

	if !deviceIsOff {
		return hvac.Directive{}, false
	}

	// Heat wins when both limits are crossed.
	if g.cfg.MinTemp != nil && temp < *g.cfg.MinTemp {
		g.engage(StateActiveHeat, temp, at)
		return forceDirective(hvac.ModeHeat, *g.cfg.MinTemp), true
	}
	if g.cfg.MaxTemp != nil && temp > *g.cfg.MaxTemp {
		g.engage(StateActiveCool, temp, at)
		return forceDirective(hvac.ModeCool, *g.cfg.MaxTemp), true
	}
	return hvac.Directive{}, false
}

// Release drops an active hold without a directive, notifying with reason.
// It reports whether the guard was active.
func (g *Guard) Release(temp float64, at time.Time, reason string) bool {
	if g.state == StateInactive {
		return false
	}
	g.release(temp, at, reason)
	return true
}

func (g *Guard) engage(s State, temp float64, at time.Time) {
	g.state = s
	g.log.Infow("safety: activated", "device_id", g.deviceID, "direction", s.Direction().String(), "temperature", temp)
	g.notify(EventActivated, s.Direction(), temp, at, ReasonThreshold)
}

func (g *Guard) release(temp float64, at time.Time, reason string) {
	dir := g.state.Direction()
	g.state = StateInactive
	g.log.Infow("safety: deactivated", "device_id", g.deviceID, "direction", dir.String(), "temperature", temp, "reason", reason)
	g.notify(EventDeactivated, dir, temp, at, reason)
}

func (g *Guard) notify(kind EventKind, dir Direction, temp float64, at time.Time, reason string) {
	if g.notifier == nil {
		return
	}
	g.notifier.Notify(Event{
		ID:                 uuid.NewString(),
		DeviceID:           g.deviceID,
		Kind:               kind,
		Direction:          dir,
		TriggerTemperature: temp,
		Timestamp:          at,
		Reason:             reason,
	})
}

func forceDirective(m hvac.Mode, target float64) hvac.Directive {
	return hvac.Directive{Mode: hvac.ModePtr(m), Temperature: hvac.FloatPtr(target), Source: hvac.SourceSafety}
}

func offDirective() hvac.Directive {
	return hvac.Directive{Mode: hvac.ModePtr(hvac.ModeOff), Source: hvac.SourceSafety}
}
