package core

import (
	"time"

	"periph.io/x/conn/v3/physic"

	"gohal/periman"
)

// RMTDirection selects transmit or receive
type RMTDirection uint8

const (
	RMTTx RMTDirection = iota
	RMTRx
)

// RMTSymbol is one pulse pair: Level0 for Duration0 ticks, then Level1 for
// Duration1 ticks. A zero duration ends a transmission.
type RMTSymbol struct {
	Duration0 uint16
	Level0    bool
	Duration1 uint16
	Level1    bool
}

// RMTHandle identifies a low-level channel
type RMTHandle uint8

// RMTDriver is the abstract remote-control peripheral interface.
// On RP2040 it is backed by PIO state machines.
type RMTDriver interface {
	// NewChannel allocates a channel on pin ticking at resolution
	NewChannel(pin periman.Pin, dir RMTDirection, resolution physic.Frequency) (RMTHandle, error)

	// Write transmits symbols and waits until they are queued
	Write(h RMTHandle, symbols []RMTSymbol) error

	// Read receives symbols, waiting at most timeout
	Read(h RMTHandle, symbols []RMTSymbol, timeout time.Duration) (int, error)

	// DeleteChannel frees a channel
	DeleteChannel(h RMTHandle) error
}

// Global singleton used by core code.
var rmtDriver RMTDriver

// SetRMTDriver is called by target-specific code to register its driver.
func SetRMTDriver(d RMTDriver) {
	rmtDriver = d
}

// MustRMT returns the configured driver or panics if missing.
func MustRMT() RMTDriver {
	if rmtDriver == nil {
		panic("RMT driver not configured")
	}
	return rmtDriver
}
