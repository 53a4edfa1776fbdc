package thermostat

import "errors"

var (
	ErrInvalidMode                  = errors.New("invalid mode")
	ErrInvalidSetpoint              = errors.New("invalid temperature setpoint")
	ErrInvalidMinMax                = errors.New("invalid min/max setpoints")
	ErrSetpointOutOfRange           = errors.New("setpoint out of range")
	ErrInvalidRegulatorHysteresis   = errors.New("trigger hysteresis must be greater or equal to target hysteresis")
	ErrInvalidRegulatorCoefficients = errors.New("regulation PID coefficients must be greater or equal to zero")
	ErrNegativeHeatLossCoefficient  = errors.New("heat loss coefficient must be greater or equal to zero")
	ErrNegativeDailySwing           = errors.New("outdoor daily swing must be greater or equal to zero")
)
