package safety

import "errors"

var (
	ErrInvalidBounds      = errors.New("safety min_temp must be strictly lower than max_temp")
	ErrNonFiniteBound     = errors.New("safety bounds must be finite numbers")
	ErrNegativeHysteresis = errors.New("safety hysteresis must be greater or equal to zero")
	ErrInvalidDirection   = errors.New("invalid safety direction")
)
