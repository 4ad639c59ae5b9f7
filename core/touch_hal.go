package core

import "gohal/periman"

// TouchPad is a touch sensor channel
type TouchPad uint8

// TouchValue is a raw touch measurement
type TouchValue uint32

// TouchDriver is implemented by target code for capacitive touch sensing.
type TouchDriver interface {
	PinToPad(pin periman.Pin) (TouchPad, bool)

	// NewController powers up the sensor block; channels need it running
	NewController() error
	DeleteController() error

	NewChannel(pad TouchPad) error
	DeleteChannel(pad TouchPad) error
	Read(pad TouchPad) (TouchValue, error)
	SetThreshold(pad TouchPad, threshold TouchValue) error
}

var touchDriver TouchDriver

// SetTouchDriver is called by target code to register its touch driver
func SetTouchDriver(d TouchDriver) {
	touchDriver = d
}

// MustTouch returns the touch driver or panics if missing
func MustTouch() TouchDriver {
	if touchDriver == nil {
		panic("touch driver not configured")
	}
	return touchDriver
}
