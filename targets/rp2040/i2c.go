//go:build rp2040

package main

import (
	"machine"
	"sync"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"

	"gohal/core"
	"gohal/periman"
)

// I2CDriver implements core.I2CDriver on machine.I2C0 and I2C1.
// machine validates the pin pair against the controller's pin functions.
type I2CDriver struct {
	mu   sync.Mutex
	pins [2][2]periman.Pin // sda, scl of a running controller
	on   [2]bool
}

func NewI2CDriver() *I2CDriver {
	return &I2CDriver{}
}

func (d *I2CDriver) BusCount() int { return 2 }

func controller(bus core.I2CBusID) (*machine.I2C, error) {
	switch bus {
	case 0:
		return machine.I2C0, nil
	case 1:
		return machine.I2C1, nil
	}
	return nil, errors.Errorf("i2c%d does not exist", bus)
}

func hz(f physic.Frequency) uint32 {
	return uint32(f / physic.Hertz)
}

func (d *I2CDriver) Init(bus core.I2CBusID, sda, scl periman.Pin, freq physic.Frequency) error {
	i2c, err := controller(bus)
	if err != nil {
		return err
	}
	err = i2c.Configure(machine.I2CConfig{
		Frequency: hz(freq),
		SDA:       machine.Pin(sda),
		SCL:       machine.Pin(scl),
	})
	if err != nil {
		return errors.Wrapf(err, "i2c%d: sda=%d scl=%d", bus, sda, scl)
	}
	d.mu.Lock()
	d.pins[bus] = [2]periman.Pin{sda, scl}
	d.on[bus] = true
	d.mu.Unlock()
	return nil
}

// Deinit floats the pins. machine.I2C cannot be disabled, but without pins
// routed the controller has no effect.
func (d *I2CDriver) Deinit(bus core.I2CBusID) error {
	if _, err := controller(bus); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.on[bus] {
		return nil
	}
	for _, p := range d.pins[bus] {
		machine.Pin(p).Configure(machine.PinConfig{Mode: machine.PinInput})
	}
	d.on[bus] = false
	return nil
}

func (d *I2CDriver) SetClock(bus core.I2CBusID, freq physic.Frequency) error {
	i2c, err := controller(bus)
	if err != nil {
		return err
	}
	return errors.Wrapf(i2c.SetBaudRate(hz(freq)), "i2c%d: set clock", bus)
}

// Tx ignores timeout; machine.I2C applies its own.
func (d *I2CDriver) Tx(bus core.I2CBusID, addr uint16, w, r []byte, _ time.Duration) error {
	i2c, err := controller(bus)
	if err != nil {
		return err
	}
	return i2c.Tx(addr, w, r)
}
