package hvac

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// SetpointTolerance is how far apart two setpoints may be and still count
// as the same. Devices that store hundredths round to within it.
const SetpointTolerance = 0.005

// Directive asks the wrapped device to change mode and/or target
// temperature. Nil fields leave that aspect of the device unchanged.
type Directive struct {
	Mode        *Mode
	Temperature *float64
	Source      Source
}

func (d Directive) IsZero() bool {
	return d.Mode == nil && d.Temperature == nil
}

// SatisfiedBy reports whether a device already in the given mode with the
// given setpoint needs nothing from d.
func (d Directive) SatisfiedBy(mode Mode, setpoint *float64) bool {
	if d.Mode != nil && *d.Mode != mode {
		return false
	}
	if d.Temperature != nil && !SameSetpoint(setpoint, d.Temperature) {
		return false
	}
	return true
}

// SameSetpoint compares two optional setpoints within SetpointTolerance.
func SameSetpoint(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) <= SetpointTolerance
}

func (d Directive) String() string {
	parts := make([]string, 0, 3)
	parts = append(parts, "source="+d.Source.String())
	if d.Mode != nil {
		parts = append(parts, "mode="+d.Mode.String())
	}
	if d.Temperature != nil {
		parts = append(parts, fmt.Sprintf("temperature=%.2f", *d.Temperature))
	}
	return strings.Join(parts, " ")
}

// Observation is one reading of the wrapped device's state.
type Observation struct {
	Temperature *float64
	Setpoint    *float64
	Mode        Mode
	Action      Action
	Timestamp   time.Time
}

// ModePtr and FloatPtr build the optional fields of a Directive.
func ModePtr(m Mode) *Mode { return &m }

func FloatPtr(v float64) *float64 { return &v }
