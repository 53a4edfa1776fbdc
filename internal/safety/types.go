package safety

import (
	"fmt"
	"math"
	"time"
)

// DefaultHysteresis is the margin past a limit required before a forced
// heat or cool is released.
const DefaultHysteresis = 0.5

type Config struct {
	MinTemp    *float64
	MaxTemp    *float64
	Hysteresis float64
}

func (c Config) Validate() error {
	for _, b := range []*float64{c.MinTemp, c.MaxTemp} {
		if b != nil && (math.IsNaN(*b) || math.IsInf(*b, 0)) {
			return ErrNonFiniteBound
		}
	}
	if c.Hysteresis < 0 || math.IsNaN(c.Hysteresis) {
		return ErrNegativeHysteresis
	}
	if c.MinTemp != nil && c.MaxTemp != nil && *c.MinTemp >= *c.MaxTemp {
		return ErrInvalidBounds
	}
	return nil
}

// Equal compares bound values, not pointers.
func (c Config) Equal(o Config) bool {
	return sameBound(c.MinTemp, o.MinTemp) && sameBound(c.MaxTemp, o.MaxTemp) && c.Hysteresis == o.Hysteresis
}

func sameBound(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Enabled reports whether at least one bound is configured.
func (c Config) Enabled() bool {
	return c.MinTemp != nil || c.MaxTemp != nil
}

// State is an integer enum.
type State int

const (
	StateInactive State = iota
	StateActiveHeat
	StateActiveCool
)

func (s State) String() string {
	switch s {
	case StateActiveHeat:
		return "active_heat"
	case StateActiveCool:
		return "active_cool"
	default:
		return "inactive"
	}
}

func (s State) Direction() Direction {
	switch s {
	case StateActiveHeat:
		return DirectionHeat
	case StateActiveCool:
		return DirectionCool
	default:
		return DirectionNone
	}
}

type Direction int

const (
	DirectionNone Direction = iota
	DirectionHeat
	DirectionCool
)

func (d Direction) String() string {
	switch d {
	case DirectionHeat:
		return "heat"
	case DirectionCool:
		return "cool"
	default:
		return "none"
	}
}

func ParseDirection(s string) (Direction, error) {
	switch s {
	case "heat":
		return DirectionHeat, nil
	case "cool":
		return DirectionCool, nil
	case "none":
		return DirectionNone, nil
	default:
		return DirectionNone, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

type EventKind string

const (
	EventActivated   EventKind = "activated"
	EventDeactivated EventKind = "deactivated"
)

// Deactivation reasons.
const (
	ReasonThreshold = "temperature crossed safety limit"
	ReasonRecovered = "temperature back inside safety limits"
	ReasonDeviceOn  = "device turned on by another party"
	ReasonReplaced  = "safety configuration replaced"
)

// Event is sent to the Notifier on every transition into or out of an
// active state.
type Event struct {
	ID                 string    `json:"id"`
	DeviceID           string    `json:"device_id,omitempty"`
	Kind               EventKind `json:"kind"`
	Direction          Direction `json:"direction"`
	TriggerTemperature float64   `json:"trigger_temperature"`
	Timestamp          time.Time `json:"timestamp"`
	Reason             string    `json:"reason"`
}

// Notifier receives safety events. Delivery is fire-and-forget.
type Notifier interface {
	Notify(Event)
}

type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }
