package core

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"

	"gohal/debug"
	"gohal/periman"
)

// RMTChannel is an attached RMT transmitter or receiver
type RMTChannel struct {
	Pin        periman.Pin
	Direction  RMTDirection
	Resolution physic.Frequency

	mu     sync.Mutex
	handle RMTHandle
	active bool
}

func (c *RMTChannel) busType() periman.BusType {
	if c.Direction == RMTRx {
		return periman.BusTypeRMTRx
	}
	return periman.BusTypeRMTTx
}

// deinit deletes the low-level channel. Safe to call more than once.
func (c *RMTChannel) deinit() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = false
	h := c.handle
	c.mu.Unlock()
	return errors.Wrapf(MustRMT().DeleteChannel(h), "rmt pin %d: delete", c.Pin)
}

// RMTInit claims pin for RMT in the given direction.
func RMTInit(pin periman.Pin, dir RMTDirection, resolution physic.Frequency) (*RMTChannel, error) {
	if resolution <= 0 {
		return nil, errors.Wrapf(ErrInvalidArg, "rmt: resolution %s", resolution)
	}
	if dir != RMTTx && dir != RMTRx {
		return nil, errors.Wrapf(ErrInvalidArg, "rmt: direction %d", dir)
	}
	reg := MustPins()
	if !reg.PinIsValid(pin) {
		return nil, errors.Wrapf(periman.ErrInvalidPin, "rmt: pin %d", pin)
	}
	c := &RMTChannel{Pin: pin, Direction: dir, Resolution: resolution}

	bringUp := func() error {
		h, err := MustRMT().NewChannel(pin, dir, resolution)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.handle = h
		c.active = true
		c.mu.Unlock()
		return nil
	}
	a := reg.NewAttachment(c, instanceDeinit).Pin(pin, c.busType(), -1, -1)
	if err := a.Run(bringUp); err != nil {
		debug.Errorf("RMT init failed for pin %d: %v", pin, err)
		return nil, errors.Wrapf(err, "rmt: init pin %d", pin)
	}
	return c, nil
}

func (c *RMTChannel) activeHandle() (RMTHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return 0, errors.Wrapf(ErrBusInactive, "rmt pin %d", c.Pin)
	}
	return c.handle, nil
}

// Write transmits symbols on a TX channel
func (c *RMTChannel) Write(symbols []RMTSymbol) error {
	if c.Direction != RMTTx {
		return errors.Wrapf(ErrInvalidArg, "rmt pin %d: write on RX channel", c.Pin)
	}
	h, err := c.activeHandle()
	if err != nil {
		return err
	}
	return errors.Wrapf(MustRMT().Write(h, symbols), "rmt pin %d: write", c.Pin)
}

// Read receives symbols on an RX channel
func (c *RMTChannel) Read(symbols []RMTSymbol, timeout time.Duration) (int, error) {
	if c.Direction != RMTRx {
		return 0, errors.Wrapf(ErrInvalidArg, "rmt pin %d: read on TX channel", c.Pin)
	}
	h, err := c.activeHandle()
	if err != nil {
		return 0, err
	}
	n, err := MustRMT().Read(h, symbols, timeout)
	return n, errors.Wrapf(err, "rmt pin %d: read", c.Pin)
}

// Close releases the channel's pin, deleting the channel
func (c *RMTChannel) Close() error {
	return releaseOwned(c, ownedPin{c.Pin, c.busType()})
}

// RMTDeinit releases pin from whichever RMT direction owns it
func RMTDeinit(pin periman.Pin) error {
	reg := MustPins()
	switch reg.GetPinBusType(pin) {
	case periman.BusTypeRMTTx, periman.BusTypeRMTRx:
		return reg.ClearPinBus(pin)
	}
	debug.Errorf("Pin %d is not attached to RMT", pin)
	return errors.Wrapf(ErrNotOwned, "rmt: pin %d", pin)
}
