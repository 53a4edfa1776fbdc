package schedule

import "errors"

var (
	ErrInvalidKey         = errors.New("invalid weekday key")
	ErrInvalidTime        = errors.New("invalid time of day, expected HH:MM")
	ErrMissingTime        = errors.New("missing time")
	ErrEmptyEvent         = errors.New("event sets neither temperature nor hvac_mode")
	ErrInvalidTemperature = errors.New("temperature must be a finite number")
	ErrMalformed          = errors.New("malformed schedule document")
)
