// Package hvac holds the vocabulary shared by the safety, schedule and
// runtime engines: device modes, reported activity, directives and
// observations.
package hvac

import "fmt"

// Mode is an integer enum.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeOff
	ModeHeat
	ModeCool
	ModeHeatCool
)

func (m Mode) Valid() bool {
	return m == ModeOff || m == ModeHeat || m == ModeCool || m == ModeHeatCool
}

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeHeat:
		return "heat"
	case ModeCool:
		return "cool"
	case ModeHeatCool:
		return "heat_cool"
	default:
		return "unknown"
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "off":
		return ModeOff, nil
	case "heat":
		return ModeHeat, nil
	case "cool":
		return ModeCool, nil
	case "heat_cool":
		return ModeHeatCool, nil
	default:
		return ModeUnknown, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Action is what the device is actually doing, as opposed to the Mode it
// was asked to run in.
type Action int

const (
	ActionUnknown Action = iota
	ActionIdle
	ActionHeating
	ActionCooling
)

func (a Action) Valid() bool {
	return a == ActionIdle || a == ActionHeating || a == ActionCooling
}

func (a Action) String() string {
	switch a {
	case ActionIdle:
		return "idle"
	case ActionHeating:
		return "heating"
	case ActionCooling:
		return "cooling"
	default:
		return "unknown"
	}
}

func ParseAction(s string) (Action, error) {
	switch s {
	case "idle":
		return ActionIdle, nil
	case "heating":
		return ActionHeating, nil
	case "cooling":
		return ActionCooling, nil
	default:
		return ActionUnknown, fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(b []byte) error {
	v, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Source identifies the party that produced a Directive.
type Source int

const (
	SourceUnknown Source = iota
	SourceSafety
	SourceSchedule
	SourceManual
)

func (s Source) String() string {
	switch s {
	case SourceSafety:
		return "safety"
	case SourceSchedule:
		return "schedule"
	case SourceManual:
		return "manual"
	default:
		return "unknown"
	}
}
