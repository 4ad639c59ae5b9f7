// I2C master support
// A controller owns its SDA and SCL pins as one unit: losing either pin to
// another peripheral stops the controller and releases the other.
package core

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"

	"gohal/debug"
	"gohal/periman"
)

const (
	I2CDefaultFrequency = 100 * physic.KiloHertz
	I2CMaxFrequency     = 1 * physic.MegaHertz
	I2CDefaultTimeout   = 50 * time.Millisecond

	maxI2CBuses = 4
)

// I2CBus is one I2C master controller.
// It implements tinygo.org/x/drivers.I2C.
type I2CBus struct {
	ID I2CBusID

	// opMu serializes Begin/End; deinit never takes it.
	opMu sync.Mutex

	mu          sync.Mutex
	initialized bool
	sda, scl    periman.Pin
	freq        physic.Frequency
	timeout     time.Duration
}

var i2cBuses struct {
	mu    sync.Mutex
	buses [maxI2CBuses]*I2CBus
}

// I2CMaster returns controller n
func I2CMaster(n I2CBusID) (*I2CBus, error) {
	if int(n) >= MustI2C().BusCount() || n >= maxI2CBuses {
		return nil, errors.Wrapf(ErrInvalidBusNum, "i2c%d", n)
	}
	i2cBuses.mu.Lock()
	defer i2cBuses.mu.Unlock()
	if i2cBuses.buses[n] == nil {
		i2cBuses.buses[n] = &I2CBus{ID: n, sda: periman.NoPin, scl: periman.NoPin, timeout: I2CDefaultTimeout}
	}
	return i2cBuses.buses[n], nil
}

// normalizeI2CFrequency maps 0 to the default and clamps to the maximum
func normalizeI2CFrequency(freq physic.Frequency) physic.Frequency {
	if freq <= 0 {
		return I2CDefaultFrequency
	}
	if freq > I2CMaxFrequency {
		debug.Warnf("I2C frequency %s clamped to %s", freq, I2CMaxFrequency)
		return I2CMaxFrequency
	}
	return freq
}

func (b *I2CBus) lines() []ownedPin {
	b.mu.Lock()
	defer b.mu.Unlock()
	return []ownedPin{{b.sda, periman.BusTypeI2CMasterSDA}, {b.scl, periman.BusTypeI2CMasterSCL}}
}

// deinit stops the controller and releases both lines. It is registered for
// both line types, so it runs when either line is evicted, and is a no-op
// once the controller is stopped.
func (b *I2CBus) deinit() error {
	b.mu.Lock()
	if !b.initialized {
		b.mu.Unlock()
		return nil
	}
	b.initialized = false
	b.mu.Unlock()

	if err := MustI2C().Deinit(b.ID); err != nil {
		b.mu.Lock()
		b.initialized = true
		b.mu.Unlock()
		debug.Errorf("i2c%d deinit failed: %v", b.ID, err)
		return errors.Wrapf(err, "i2c%d: deinit", b.ID)
	}
	return releaseOwned(b, b.lines()...)
}

// Begin starts the controller on sda and scl. A zero frequency selects
// 100 kHz; anything above 1 MHz is clamped. Beginning a running bus with the
// same pins is a no-op.
func (b *I2CBus) Begin(sda, scl periman.Pin, freq physic.Frequency) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	if b.initialized {
		same := b.sda == sda && b.scl == scl
		b.mu.Unlock()
		if same {
			return nil
		}
		debug.Errorf("i2c%d is already initialized", b.ID)
		return errors.Wrapf(ErrBusActive, "i2c%d", b.ID)
	}
	b.mu.Unlock()

	if sda == periman.NoPin || scl == periman.NoPin {
		return errors.Wrapf(ErrInvalidArg, "i2c%d: sda=%d scl=%d", b.ID, sda, scl)
	}
	freq = normalizeI2CFrequency(freq)

	bringUp := func() error {
		if err := MustI2C().Init(b.ID, sda, scl, freq); err != nil {
			return err
		}
		b.mu.Lock()
		b.initialized = true
		b.sda, b.scl, b.freq = sda, scl, freq
		b.mu.Unlock()
		return nil
	}
	a := MustPins().NewAttachment(b, instanceDeinit).
		Pin(sda, periman.BusTypeI2CMasterSDA, int8(b.ID), -1).
		Pin(scl, periman.BusTypeI2CMasterSCL, int8(b.ID), -1)
	if err := a.Run(bringUp); err != nil {
		debug.Errorf("i2c%d init failed: %v", b.ID, err)
		return errors.Wrapf(err, "i2c%d: begin", b.ID)
	}
	debug.Infof("i2c%d started: sda=%d scl=%d freq=%s", b.ID, sda, scl, freq)
	return nil
}

// End stops the controller and releases its pins
func (b *I2CBus) End() error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	err := releaseOwned(b, b.lines()...)
	if b.Initialized() {
		err = multierr.Append(err, b.deinit())
	}
	return err
}

// Initialized reports whether the controller is running
func (b *I2CBus) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// Pins returns the SDA and SCL pins, NoPin when stopped
func (b *I2CBus) Pins() (sda, scl periman.Pin) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return periman.NoPin, periman.NoPin
	}
	return b.sda, b.scl
}

// Frequency returns the configured bus frequency
func (b *I2CBus) Frequency() physic.Frequency {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.freq
}

// SetClock changes the frequency of a running bus
func (b *I2CBus) SetClock(freq physic.Frequency) error {
	freq = normalizeI2CFrequency(freq)
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return errors.Wrapf(ErrBusInactive, "i2c%d", b.ID)
	}
	if freq == b.freq {
		return nil
	}
	if err := MustI2C().SetClock(b.ID, freq); err != nil {
		return errors.Wrapf(err, "i2c%d: set clock", b.ID)
	}
	b.freq = freq
	return nil
}

// SetTimeout sets the per-transaction timeout
func (b *I2CBus) SetTimeout(d time.Duration) {
	b.mu.Lock()
	b.timeout = d
	b.mu.Unlock()
}

// Tx writes w and reads r from the device at addr.
func (b *I2CBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	up, timeout := b.initialized, b.timeout
	b.mu.Unlock()
	if !up {
		return errors.Wrapf(ErrBusInactive, "i2c%d", b.ID)
	}
	return errors.Wrapf(MustI2C().Tx(b.ID, addr, w, r, timeout), "i2c%d: addr 0x%02x", b.ID, addr)
}

// ReadRegister reads len(buf) bytes starting at register r
func (b *I2CBus) ReadRegister(addr uint8, r uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{r}, buf)
}

// WriteRegister writes buf starting at register r
func (b *I2CBus) WriteRegister(addr uint8, r uint8, buf []byte) error {
	w := make([]byte, 0, len(buf)+1)
	w = append(w, r)
	w = append(w, buf...)
	return b.Tx(uint16(addr), w, nil)
}
