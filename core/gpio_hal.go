package core

import (
	"periph.io/x/conn/v3/gpio"

	"gohal/periman"
)

// GPIODriver is the low-level GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureInput configures a pin as a digital input with the given pull
	ConfigureInput(pin periman.Pin, pull gpio.Pull) error

	// ConfigureOutput configures a pin as a push-pull or open-drain output
	ConfigureOutput(pin periman.Pin, openDrain bool) error

	// Reset returns a pin to its power-on state and detaches any matrix signal
	Reset(pin periman.Pin) error

	// Set drives the pin level
	Set(pin periman.Pin, level gpio.Level) error

	// Get reads the pin level
	Get(pin periman.Pin) (gpio.Level, error)
}

// Global singleton used by core code.
var gpioDriver GPIODriver

// SetGPIODriver is called by target-specific code to register its driver.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// MustGPIO returns the configured driver or panics if missing.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}
