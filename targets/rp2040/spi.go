//go:build rp2040

package main

import (
	"machine"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/spi"

	"gohal/core"
	"gohal/periman"
)

// spiState tracks one controller. machine.SPI is configured with all its
// pins at once, so every line change configures it again.
type spiState struct {
	running bool
	cfg     core.SPIConfig
	pins    [4]periman.Pin
}

// SPIDriver implements core.SPIDriver on machine.SPI0 and SPI1.
// Chip select is a plain GPIO driven low for the length of each transfer.
type SPIDriver struct {
	mu    sync.Mutex
	buses [2]spiState
}

func NewSPIDriver() *SPIDriver {
	d := &SPIDriver{}
	for i := range d.buses {
		d.buses[i].pins = [4]periman.Pin{periman.NoPin, periman.NoPin, periman.NoPin, periman.NoPin}
	}
	return d
}

func (d *SPIDriver) BusCount() int { return 2 }

func spiController(bus core.SPIBusID) (*machine.SPI, error) {
	switch bus {
	case 0:
		return machine.SPI0, nil
	case 1:
		return machine.SPI1, nil
	}
	return nil, errors.Errorf("spi%d does not exist", bus)
}

func machinePin(p periman.Pin) machine.Pin {
	if p == periman.NoPin {
		return machine.NoPin
	}
	return machine.Pin(p)
}

// apply configures the controller once a clock pin is known
func (d *SPIDriver) apply(bus core.SPIBusID, s *spiState) error {
	if s.pins[core.SPILineSCK] == periman.NoPin {
		return nil
	}
	ctrl, err := spiController(bus)
	if err != nil {
		return err
	}
	err = ctrl.Configure(machine.SPIConfig{
		Frequency: hz(s.cfg.Frequency),
		SCK:       machinePin(s.pins[core.SPILineSCK]),
		SDI:       machinePin(s.pins[core.SPILineMISO]),
		SDO:       machinePin(s.pins[core.SPILineMOSI]),
		Mode:      uint8(s.cfg.Mode & 3),
		LSBFirst:  s.cfg.Mode&spi.LSBFirst != 0,
	})
	return errors.Wrapf(err, "spi%d: configure", bus)
}

func (d *SPIDriver) Start(bus core.SPIBusID, cfg core.SPIConfig) error {
	if _, err := spiController(bus); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.buses[bus]
	s.running = true
	s.cfg = cfg
	return nil
}

func (d *SPIDriver) Stop(bus core.SPIBusID) error {
	if _, err := spiController(bus); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.buses[bus]
	for l, p := range s.pins {
		if p != periman.NoPin {
			machine.Pin(p).Configure(machine.PinConfig{Mode: machine.PinInput})
			s.pins[l] = periman.NoPin
		}
	}
	s.running = false
	return nil
}

func (d *SPIDriver) Configure(bus core.SPIBusID, cfg core.SPIConfig) error {
	if _, err := spiController(bus); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.buses[bus]
	s.cfg = cfg
	return d.apply(bus, s)
}

func (d *SPIDriver) AttachLine(bus core.SPIBusID, line core.SPILine, pin periman.Pin) error {
	if _, err := spiController(bus); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.buses[bus]
	if !s.running {
		return errors.Errorf("spi%d is not started", bus)
	}
	s.pins[line] = pin
	if line == core.SPILineSS {
		ss := machine.Pin(pin)
		ss.Configure(machine.PinConfig{Mode: machine.PinOutput})
		ss.High()
		return nil
	}
	return d.apply(bus, s)
}

func (d *SPIDriver) DetachLine(bus core.SPIBusID, line core.SPILine, pin periman.Pin) error {
	if _, err := spiController(bus); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.buses[bus]
	if s.pins[line] != pin {
		return nil
	}
	s.pins[line] = periman.NoPin
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinInput})
	if line == core.SPILineSS {
		return nil
	}
	return d.apply(bus, s)
}

func (d *SPIDriver) Transfer(bus core.SPIBusID, w, r []byte) error {
	ctrl, err := spiController(bus)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.buses[bus]
	if !s.running || s.pins[core.SPILineSCK] == periman.NoPin {
		return errors.Errorf("spi%d has no clock line", bus)
	}
	if ss := s.pins[core.SPILineSS]; ss != periman.NoPin {
		machine.Pin(ss).Low()
		defer machine.Pin(ss).High()
	}
	return ctrl.Tx(w, r)
}
