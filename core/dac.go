package core

import (
	"github.com/pkg/errors"

	"gohal/debug"
	"gohal/periman"
)

// dacBus is the owner handle of a DAC pin
type dacBus struct {
	pin periman.Pin
	ch  DACChannel
}

var dacDeinit = periman.DeinitFunc(func(bus periman.Bus) error {
	b, ok := bus.(dacBus)
	if !ok {
		return errors.Errorf("dac: unexpected bus %T", bus)
	}
	return errors.Wrapf(MustDAC().Disable(b.ch), "dac channel %d: disable", b.ch)
})

// DACWrite outputs value on pin, attaching the DAC channel on first use.
func DACWrite(pin periman.Pin, value uint8) error {
	d := MustDAC()
	ch, ok := d.PinToChannel(pin)
	if !ok {
		debug.Errorf("Pin %d is not DAC pin!", pin)
		return errors.Wrapf(ErrNotCapable, "dac: pin %d", pin)
	}
	bus := dacBus{pin, ch}
	reg := MustPins()
	if reg.GetPinBus(pin, periman.BusTypeDACOneshot) == nil {
		a := reg.NewAttachment(bus, dacDeinit).Pin(pin, periman.BusTypeDACOneshot, -1, int8(ch))
		if err := a.Run(func() error { return d.Enable(ch) }); err != nil {
			debug.Errorf("DAC attach failed for pin %d: %v", pin, err)
			return errors.Wrapf(err, "dac: attach pin %d", pin)
		}
	}
	return errors.Wrapf(d.Write(ch, value), "dac: write pin %d", pin)
}

// DACDisable releases a DAC pin
func DACDisable(pin periman.Pin) error {
	reg := MustPins()
	if reg.GetPinBus(pin, periman.BusTypeDACOneshot) == nil {
		debug.Errorf("Pin %d is not attached to DAC", pin)
		return errors.Wrapf(ErrNotOwned, "dac: pin %d", pin)
	}
	return reg.ClearPinBus(pin)
}
