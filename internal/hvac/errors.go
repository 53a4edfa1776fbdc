package hvac

import "errors"

var (
	ErrInvalidMode   = errors.New("invalid hvac mode")
	ErrInvalidAction = errors.New("invalid hvac action")
)
