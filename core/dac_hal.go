package core

import "gohal/periman"

// DACChannel identifies a DAC output
type DACChannel uint8

// DACDriver is the abstract DAC interface that core code uses.
type DACDriver interface {
	// PinToChannel maps a GPIO to its DAC channel
	PinToChannel(pin periman.Pin) (DACChannel, bool)

	// Enable powers a channel up
	Enable(ch DACChannel) error

	// Write sets the 8-bit output voltage
	Write(ch DACChannel, value uint8) error

	// Disable powers a channel down
	Disable(ch DACChannel) error
}

// Global singleton used by core code.
var dacDriver DACDriver

// SetDACDriver is called by target-specific code to register its driver.
func SetDACDriver(d DACDriver) {
	dacDriver = d
}

// MustDAC returns the configured driver or panics if missing.
func MustDAC() DACDriver {
	if dacDriver == nil {
		panic("DAC driver not configured")
	}
	return dacDriver
}
