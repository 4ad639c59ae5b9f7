package periman

import "errors"

var (
	ErrInvalidPin   = errors.New("invalid pin")
	ErrInvalidType  = errors.New("invalid bus type")
	ErrNilBus       = errors.New("bus handle is nil")
	ErrBusOnInit    = errors.New("bus handle given for INIT")
	ErrInvalidBus   = errors.New("bus handle is not comparable")
	ErrNoDeinit     = errors.New("no deinit registered")
	ErrDeinitFailed = errors.New("deinit failed")
	ErrNilDeinit    = errors.New("deinit is nil")
	ErrPinUnowned   = errors.New("pin is not owned")
	ErrPinRepeated  = errors.New("pin queued twice in one attachment")
)
