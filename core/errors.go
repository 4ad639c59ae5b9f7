package core

import "errors"

var (
	ErrNotGPIO       = errors.New("pin is not configured as GPIO")
	ErrNotOwned      = errors.New("pin is not attached to this peripheral")
	ErrBusActive     = errors.New("bus already initialized")
	ErrBusInactive   = errors.New("bus not initialized")
	ErrNoChannel     = errors.New("no free channel")
	ErrNotCapable    = errors.New("pin has no such function")
	ErrInvalidBusNum = errors.New("invalid bus number")
	ErrInvalidArg    = errors.New("invalid argument")
)
