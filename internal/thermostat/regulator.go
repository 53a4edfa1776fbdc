package thermostat

import (
	"time"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
)

type PIDRegulatorParams struct {
	Kp                float64
	Ki                float64
	Kd                float64
	TriggerHysteresis float64 // distance below/above setpoint that starts heating/cooling
	TargetHysteresis  float64 // overshoot past setpoint that stops it
}

func (params PIDRegulatorParams) Validate() error {
	if params.TargetHysteresis > params.TriggerHysteresis {
		return ErrInvalidRegulatorHysteresis
	}
	if params.Kp < 0 || params.Ki < 0 || params.Kd < 0 {
		return ErrInvalidRegulatorCoefficients
	}
	return nil
}

type PIDRegulator struct {
	params    PIDRegulatorParams
	prevError float64
	integral  float64
	isHeating bool
	isCooling bool
}

func NewPIDRegulator(params PIDRegulatorParams) *PIDRegulator {
	return &PIDRegulator{params: params}
}

func canHeat(m hvac.Mode) bool { return m == hvac.ModeHeat || m == hvac.ModeHeatCool }

func canCool(m hvac.Mode) bool { return m == hvac.ModeCool || m == hvac.ModeHeatCool }

// Activate decides whether the unit heats, cools or idles.
func (pid *PIDRegulator) Activate(setpoint, ambient float64, mode hvac.Mode) {
	if pid.isHeating && !canHeat(mode) || pid.isCooling && !canCool(mode) {
		pid.stop()
	}

	if canHeat(mode) && !pid.isHeating && ambient < setpoint-pid.params.TriggerHysteresis {
		pid.isHeating, pid.isCooling = true, false
	} else if canCool(mode) && !pid.isCooling && ambient > setpoint+pid.params.TriggerHysteresis {
		pid.isHeating, pid.isCooling = false, true
	}

	// Target reached
	if pid.isHeating && ambient >= setpoint+pid.params.TargetHysteresis {
		pid.stop()
	} else if pid.isCooling && ambient <= setpoint-pid.params.TargetHysteresis {
		pid.stop()
	}
}

func (pid *PIDRegulator) stop() {
	pid.isHeating, pid.isCooling = false, false
	pid.integral, pid.prevError = 0, 0
}

func (pid *PIDRegulator) Action() hvac.Action {
	switch {
	case pid.isHeating:
		return hvac.ActionHeating
	case pid.isCooling:
		return hvac.ActionCooling
	default:
		return hvac.ActionIdle
	}
}

func (pid *PIDRegulator) GetTarget(setpoint float64) float64 {
	if pid.isHeating {
		return setpoint + pid.params.TargetHysteresis
	}
	if pid.isCooling {
		return setpoint - pid.params.TargetHysteresis
	}
	return setpoint
}

// Update returns the ambient temperature after dt of regulation.
func (pid *PIDRegulator) Update(setpoint, ambient float64, mode hvac.Mode, dt time.Duration) float64 {
	pid.Activate(setpoint, ambient, mode)
	if !pid.isHeating && !pid.isCooling || dt <= 0 {
		return ambient
	}

	err := pid.GetTarget(setpoint) - ambient
	pid.integral += err * dt.Seconds()
	derivative := (err - pid.prevError) / dt.Seconds()
	pid.prevError = err

	output := pid.params.Kp*err + pid.params.Ki*pid.integral + pid.params.Kd*derivative
	return ambient + output
}
