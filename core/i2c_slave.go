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

// I2CSlave is an I2C controller running in slave mode
type I2CSlave struct {
	ID I2CBusID

	opMu sync.Mutex

	mu       sync.Mutex
	running  bool
	sda, scl periman.Pin
	addr     uint16
	timeout  time.Duration
}

var i2cSlaves struct {
	mu     sync.Mutex
	slaves [maxI2CBuses]*I2CSlave
}

// I2CSlaveBus returns controller n in slave mode
func I2CSlaveBus(n I2CBusID) (*I2CSlave, error) {
	if n >= maxI2CBuses {
		return nil, errors.Wrapf(ErrInvalidBusNum, "i2c slave %d", n)
	}
	i2cSlaves.mu.Lock()
	defer i2cSlaves.mu.Unlock()
	if i2cSlaves.slaves[n] == nil {
		i2cSlaves.slaves[n] = &I2CSlave{ID: n, sda: periman.NoPin, scl: periman.NoPin, timeout: I2CDefaultTimeout}
	}
	return i2cSlaves.slaves[n], nil
}

func (s *I2CSlave) lines() []ownedPin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []ownedPin{{s.sda, periman.BusTypeI2CSlaveSDA}, {s.scl, periman.BusTypeI2CSlaveSCL}}
}

// deinit stops slave mode and releases both lines. It does nothing when
// the controller was never started.
func (s *I2CSlave) deinit() error {
	s.mu.Lock()
	if !s.running || s.sda == periman.NoPin || s.scl == periman.NoPin {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if err := MustI2CSlave().Deinit(s.ID); err != nil {
		s.mu.Lock()
		s.running = true
		s.mu.Unlock()
		return errors.Wrapf(err, "i2c slave %d: deinit", s.ID)
	}
	err := releaseOwned(s, s.lines()...)
	s.mu.Lock()
	s.sda, s.scl = periman.NoPin, periman.NoPin
	s.mu.Unlock()
	return err
}

// Begin starts slave mode answering at addr
func (s *I2CSlave) Begin(sda, scl periman.Pin, addr uint16, freq physic.Frequency) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.Running() {
		debug.Errorf("i2c slave %d is already running", s.ID)
		return errors.Wrapf(ErrBusActive, "i2c slave %d", s.ID)
	}
	if addr > 0x3ff {
		return errors.Wrapf(ErrInvalidArg, "i2c slave %d: address 0x%x", s.ID, addr)
	}
	freq = normalizeI2CFrequency(freq)

	s.mu.Lock()
	s.sda, s.scl, s.addr = sda, scl, addr
	s.mu.Unlock()

	bringUp := func() error {
		if err := MustI2CSlave().Init(s.ID, sda, scl, addr, freq); err != nil {
			return err
		}
		s.mu.Lock()
		s.running = true
		s.mu.Unlock()
		return nil
	}
	a := MustPins().NewAttachment(s, instanceDeinit).
		Pin(sda, periman.BusTypeI2CSlaveSDA, int8(s.ID), -1).
		Pin(scl, periman.BusTypeI2CSlaveSCL, int8(s.ID), -1)
	if err := a.Run(bringUp); err != nil {
		s.mu.Lock()
		if !s.running {
			s.sda, s.scl = periman.NoPin, periman.NoPin
		}
		s.mu.Unlock()
		return errors.Wrapf(err, "i2c slave %d: begin", s.ID)
	}
	return nil
}

// End stops slave mode
func (s *I2CSlave) End() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	err := releaseOwned(s, s.lines()...)
	if s.Running() {
		err = multierr.Append(err, s.deinit())
	}
	return err
}

// Running reports whether slave mode is active
func (s *I2CSlave) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Write queues data for the master
func (s *I2CSlave) Write(data []byte) (int, error) {
	s.mu.Lock()
	up, timeout := s.running, s.timeout
	s.mu.Unlock()
	if !up {
		return 0, errors.Wrapf(ErrBusInactive, "i2c slave %d", s.ID)
	}
	n, err := MustI2CSlave().Write(s.ID, data, timeout)
	return n, errors.Wrapf(err, "i2c slave %d: write", s.ID)
}

// Read returns bytes written by the master
func (s *I2CSlave) Read(buf []byte) (int, error) {
	s.mu.Lock()
	up, timeout := s.running, s.timeout
	s.mu.Unlock()
	if !up {
		return 0, errors.Wrapf(ErrBusInactive, "i2c slave %d", s.ID)
	}
	n, err := MustI2CSlave().Read(s.ID, buf, timeout)
	return n, errors.Wrapf(err, "i2c slave %d: read", s.ID)
}
