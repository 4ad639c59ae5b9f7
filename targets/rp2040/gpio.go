//go:build rp2040

package main

import (
	"machine"
	"sync"

	"periph.io/x/conn/v3/gpio"

	"gohal/periman"
)

// GPIODriver implements core.GPIODriver on machine.Pin.
// RP2040 pads have no open-drain mode, so open-drain outputs are emulated by
// driving low and floating high.
type GPIODriver struct {
	mu        sync.Mutex
	openDrain map[periman.Pin]bool
}

func NewGPIODriver() *GPIODriver {
	return &GPIODriver{openDrain: make(map[periman.Pin]bool)}
}

func (d *GPIODriver) ConfigureInput(pin periman.Pin, pull gpio.Pull) error {
	mode := machine.PinInput
	switch pull {
	case gpio.PullUp:
		mode = machine.PinInputPullup
	case gpio.PullDown:
		mode = machine.PinInputPulldown
	}
	d.mu.Lock()
	delete(d.openDrain, pin)
	d.mu.Unlock()
	machine.Pin(pin).Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (d *GPIODriver) ConfigureOutput(pin periman.Pin, openDrain bool) error {
	d.mu.Lock()
	if openDrain {
		d.openDrain[pin] = true
	} else {
		delete(d.openDrain, pin)
	}
	d.mu.Unlock()
	if openDrain {
		// released until the first low write
		machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinInputPullup})
		return nil
	}
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinOutput})
	return nil
}

func (d *GPIODriver) Reset(pin periman.Pin) error {
	d.mu.Lock()
	delete(d.openDrain, pin)
	d.mu.Unlock()
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinInput})
	return nil
}

func (d *GPIODriver) Set(pin periman.Pin, level gpio.Level) error {
	d.mu.Lock()
	od := d.openDrain[pin]
	d.mu.Unlock()
	p := machine.Pin(pin)
	if !od {
		p.Set(bool(level))
		return nil
	}
	if level == gpio.High {
		p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
		return nil
	}
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.Low()
	return nil
}

func (d *GPIODriver) Get(pin periman.Pin) (gpio.Level, error) {
	return gpio.Level(machine.Pin(pin).Get()), nil
}
