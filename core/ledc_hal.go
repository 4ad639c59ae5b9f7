package core

import (
	"periph.io/x/conn/v3/physic"

	"gohal/periman"
)

// LEDCChannelID identifies a hardware PWM channel (a PWM slice output on
// RP2040).
type LEDCChannelID uint8

// LEDCDriver is the abstract PWM interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type LEDCDriver interface {
	// ChannelCount returns the number of channels
	ChannelCount() int

	// ChannelFor returns the channels that can drive pin. A nil result
	// means any channel can be routed to it.
	ChannelFor(pin periman.Pin) []LEDCChannelID

	// Configure routes ch to pin at the given frequency and duty resolution.
	// Returns the frequency actually achieved.
	Configure(ch LEDCChannelID, pin periman.Pin, freq physic.Frequency, resolution uint8) (physic.Frequency, error)

	// SetDuty sets the duty cycle (0 .. 1<<resolution)
	SetDuty(ch LEDCChannelID, duty uint32) error

	// SetFrequency changes the frequency of a running channel
	SetFrequency(ch LEDCChannelID, freq physic.Frequency) (physic.Frequency, error)

	// Stop halts output and releases the channel's timer
	Stop(ch LEDCChannelID) error
}

// Global singleton used by core code.
var ledcDriver LEDCDriver

// SetLEDCDriver is called by target-specific code to register its driver.
func SetLEDCDriver(d LEDCDriver) {
	ledcDriver = d
}

// MustLEDC returns the configured driver or panics if missing.
func MustLEDC() LEDCDriver {
	if ledcDriver == nil {
		panic("LEDC driver not configured")
	}
	return ledcDriver
}
