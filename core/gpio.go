// GPIO support
// A pin used as plain GPIO is owned by the GPIO bus type with a per-pin handle.
package core

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"

	"gohal/debug"
	"gohal/periman"
)

// PinMode selects how PinMode configures a pin
type PinMode uint8

const (
	Input PinMode = iota
	Output
	InputPullUp
	InputPullDown
	OutputOpenDrain
)

func (m PinMode) String() string {
	switch m {
	case Input:
		return "INPUT"
	case Output:
		return "OUTPUT"
	case InputPullUp:
		return "INPUT_PULLUP"
	case InputPullDown:
		return "INPUT_PULLDOWN"
	case OutputOpenDrain:
		return "OUTPUT_OPEN_DRAIN"
	}
	return "UNKNOWN"
}

// gpioBus is the owner handle of a GPIO pin
type gpioBus struct {
	pin periman.Pin
}

// A GPIO pin holds no shared hardware, so eviction has nothing to undo.
var gpioDeinit = periman.DeinitFunc(func(periman.Bus) error { return nil })

// SetPinMode takes pin for GPIO use, evicting its previous owner, and
// configures it. Calling it again on a GPIO pin only reconfigures.
func SetPinMode(pin periman.Pin, mode PinMode) error {
	reg := MustPins()
	if !reg.PinIsValid(pin) {
		debug.Errorf("Invalid IO %d selected", pin)
		return errors.Wrapf(periman.ErrInvalidPin, "gpio %d", pin)
	}
	configure := func() error {
		d := MustGPIO()
		switch mode {
		case Input:
			return d.ConfigureInput(pin, gpio.Float)
		case InputPullUp:
			return d.ConfigureInput(pin, gpio.PullUp)
		case InputPullDown:
			return d.ConfigureInput(pin, gpio.PullDown)
		case Output:
			return d.ConfigureOutput(pin, false)
		case OutputOpenDrain:
			return d.ConfigureOutput(pin, true)
		}
		return errors.Wrapf(ErrInvalidArg, "mode %d", mode)
	}
	a := reg.NewAttachment(gpioBus{pin}, gpioDeinit).Pin(pin, periman.BusTypeGPIO, -1, -1)
	if err := a.Run(configure); err != nil {
		debug.Errorf("IO %d pin mode %s failed: %v", pin, mode, err)
		return errors.Wrapf(err, "gpio %d: pin mode %s", pin, mode)
	}
	return nil
}

// DigitalWrite drives a pin previously set up with SetPinMode
func DigitalWrite(pin periman.Pin, level gpio.Level) error {
	if MustPins().GetPinBus(pin, periman.BusTypeGPIO) == nil {
		debug.Errorf("IO %d is not set as GPIO", pin)
		return errors.Wrapf(ErrNotGPIO, "gpio %d", pin)
	}
	return MustGPIO().Set(pin, level)
}

// DigitalRead reads a pin previously set up with SetPinMode
func DigitalRead(pin periman.Pin) (gpio.Level, error) {
	if MustPins().GetPinBus(pin, periman.BusTypeGPIO) == nil {
		debug.Errorf("IO %d is not set as GPIO", pin)
		return gpio.Low, errors.Wrapf(ErrNotGPIO, "gpio %d", pin)
	}
	return MustGPIO().Get(pin)
}

// PinReset evicts any owner of pin and returns it to its power-on state
func PinReset(pin periman.Pin) error {
	if err := MustPins().ClearPinBus(pin); err != nil {
		return errors.Wrapf(err, "gpio %d: reset", pin)
	}
	return MustGPIO().Reset(pin)
}
