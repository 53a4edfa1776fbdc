package orchestrator

import "errors"

var (
	ErrNoDevice        = errors.New("orchestrator needs a device")
	ErrInvalidSetpoint = errors.New("setpoint must be a finite number")
)
