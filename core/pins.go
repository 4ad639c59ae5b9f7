package core

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"gohal/periman"
)

// Global pin ownership registry used by every driver.
var pinRegistry *periman.Registry

// SetPinRegistry is called once at boot by target code.
func SetPinRegistry(r *periman.Registry) {
	pinRegistry = r
}

// MustPins returns the configured registry or panics if missing.
func MustPins() *periman.Registry {
	if pinRegistry == nil {
		panic("pin registry not configured")
	}
	return pinRegistry
}

// ownedPin is one line of a multi-pin peripheral
type ownedPin struct {
	pin periman.Pin
	typ periman.BusType
}

// releaseOwned clears every pin that bus still owns. Pins taken over by
// someone else are left alone.
func releaseOwned(bus periman.Bus, pins ...ownedPin) error {
	reg := MustPins()
	var err error
	for _, p := range pins {
		if p.pin == periman.NoPin {
			continue
		}
		if reg.GetPinBus(p.pin, p.typ) != bus {
			continue
		}
		err = multierr.Append(err, reg.ClearPinBus(p.pin))
	}
	return err
}

// ownsAll reports whether bus owns every listed pin
func ownsAll(bus periman.Bus, pins ...ownedPin) bool {
	reg := MustPins()
	for _, p := range pins {
		if p.pin == periman.NoPin {
			continue
		}
		if reg.GetPinBus(p.pin, p.typ) != bus {
			return false
		}
	}
	return true
}

// instance is a driver object used directly as a bus handle
type instance interface {
	deinit() error
}

// instanceDeinit is registered for every bus type whose handle is a driver
// instance. One Deiniter serves all instances of a type, so teardown goes
// through the evicted handle.
var instanceDeinit = periman.DeinitFunc(func(bus periman.Bus) error {
	in, ok := bus.(instance)
	if !ok {
		return errors.Errorf("unexpected bus handle %T", bus)
	}
	return in.deinit()
})
