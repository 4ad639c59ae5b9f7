package core

import (
	"time"

	"periph.io/x/conn/v3/physic"

	"gohal/periman"
)

// I2CBusID identifies a specific I2C controller (e.g., I2C0, I2C1).
type I2CBusID uint8

// I2CDriver is the abstract I2C master interface that core code uses.
type I2CDriver interface {
	// BusCount returns the number of controllers
	BusCount() int

	// Init routes sda/scl to a controller and starts it at freq.
	Init(bus I2CBusID, sda, scl periman.Pin, freq physic.Frequency) error

	// Deinit stops the controller and detaches its pins.
	Deinit(bus I2CBusID) error

	// SetClock changes the bus frequency of a running controller
	SetClock(bus I2CBusID, freq physic.Frequency) error

	// Tx writes w then reads into r with a repeated start in between.
	// Either may be empty.
	Tx(bus I2CBusID, addr uint16, w, r []byte, timeout time.Duration) error
}

// I2CSlaveDriver is the abstract I2C slave interface.
type I2CSlaveDriver interface {
	// Init starts a controller in slave mode answering at addr
	Init(bus I2CBusID, sda, scl periman.Pin, addr uint16, freq physic.Frequency) error

	// Deinit stops the controller
	Deinit(bus I2CBusID) error

	// Write queues data for the master to read
	Write(bus I2CBusID, data []byte, timeout time.Duration) (int, error)

	// Read returns data written by the master
	Read(bus I2CBusID, buf []byte, timeout time.Duration) (int, error)
}

// Global singletons used by core code.
var (
	i2cDriver      I2CDriver
	i2cSlaveDriver I2CSlaveDriver
)

// SetI2CDriver is called by target-specific code to register its driver.
func SetI2CDriver(d I2CDriver) {
	i2cDriver = d
}

// MustI2C returns the configured driver or panics if missing.
func MustI2C() I2CDriver {
	if i2cDriver == nil {
		panic("I2C driver not configured")
	}
	return i2cDriver
}

// SetI2CSlaveDriver registers the slave-mode driver.
func SetI2CSlaveDriver(d I2CSlaveDriver) {
	i2cSlaveDriver = d
}

// MustI2CSlave returns the slave-mode driver or panics if missing.
func MustI2CSlave() I2CSlaveDriver {
	if i2cSlaveDriver == nil {
		panic("I2C slave driver not configured")
	}
	return i2cSlaveDriver
}
