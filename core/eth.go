// Ethernet support
// An interface owns all of its pins as a unit, like I2C: losing any one stops
// the MAC and PHY and releases the rest.
package core

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"gohal/debug"
	"gohal/periman"
)

// Ethernet is a started network interface
type Ethernet struct {
	PHY EthernetPHY

	opMu sync.Mutex

	mu      sync.Mutex
	running bool
	handle  EthernetHandle
	pins    []ownedPin
	spi     *SPIBus
}

// deinit stops the interface and releases every pin.
func (e *Ethernet) deinit() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	h, pins := e.handle, e.pins
	e.mu.Unlock()

	if err := MustEthernet().Stop(h); err != nil {
		e.mu.Lock()
		e.running = true
		e.mu.Unlock()
		debug.Errorf("Ethernet stop failed: %v", err)
		return errors.Wrap(err, "eth: stop")
	}
	return releaseOwned(e, pins...)
}

func (e *Ethernet) start(pins []ownedPin, start func() (EthernetHandle, error)) error {
	bringUp := func() error {
		h, err := start()
		if err != nil {
			return err
		}
		e.mu.Lock()
		e.running = true
		e.handle = h
		e.pins = pins
		e.mu.Unlock()
		return nil
	}
	a := MustPins().NewAttachment(e, instanceDeinit)
	for _, p := range pins {
		a.Pin(p.pin, p.typ, -1, -1)
	}
	return a.Run(bringUp)
}

// EthernetRMII starts the internal MAC with an RMII PHY
func EthernetRMII(cfg EthernetRMIIConfig) (*Ethernet, error) {
	if cfg.PHY.SPI() {
		return nil, errors.Wrapf(ErrInvalidArg, "eth: PHY %d is an SPI chip", cfg.PHY)
	}
	if cfg.MDC == periman.NoPin || cfg.MDIO == periman.NoPin {
		return nil, errors.Wrap(ErrInvalidArg, "eth: MDC and MDIO are required")
	}
	d := MustEthernet()
	data := d.RMIIDataPins()
	if len(data) == 0 {
		return nil, errors.Wrap(ErrNotCapable, "eth: no internal MAC")
	}

	pins := make([]ownedPin, 0, len(data)+4)
	for _, p := range data {
		pins = append(pins, ownedPin{p, periman.BusTypeEthernetRMII})
	}
	pins = append(pins,
		ownedPin{cfg.CLK, periman.BusTypeEthernetCLK},
		ownedPin{cfg.MDC, periman.BusTypeEthernetMCD},
		ownedPin{cfg.MDIO, periman.BusTypeEthernetMDIO},
		ownedPin{cfg.Power, periman.BusTypeEthernetPWR},
	)

	e := &Ethernet{PHY: cfg.PHY}
	if err := e.start(pins, func() (EthernetHandle, error) { return d.StartRMII(cfg) }); err != nil {
		debug.Errorf("Ethernet RMII start failed: %v", err)
		return nil, errors.Wrap(err, "eth: start rmii")
	}
	debug.Infof("Ethernet started on RMII, PHY %d", cfg.PHY)
	return e, nil
}

// EthernetSPI starts an SPI MAC+PHY chip on a running SPI bus
func EthernetSPI(bus *SPIBus, cfg EthernetSPIConfig) (*Ethernet, error) {
	if !cfg.PHY.SPI() {
		return nil, errors.Wrapf(ErrInvalidArg, "eth: PHY %d is not an SPI chip", cfg.PHY)
	}
	if bus == nil || !bus.Running() {
		return nil, errors.Wrap(ErrBusInactive, "eth: spi bus")
	}
	if cfg.CS == periman.NoPin {
		return nil, errors.Wrap(ErrInvalidArg, "eth: CS is required")
	}
	pins := []ownedPin{
		{cfg.CS, periman.BusTypeEthernetSPI},
		{cfg.IRQ, periman.BusTypeEthernetSPI},
		{cfg.Reset, periman.BusTypeEthernetSPI},
	}

	e := &Ethernet{PHY: cfg.PHY, spi: bus}
	d := MustEthernet()
	if err := e.start(pins, func() (EthernetHandle, error) { return d.StartSPI(bus.ID, cfg) }); err != nil {
		debug.Errorf("Ethernet SPI start failed: %v", err)
		return nil, errors.Wrap(err, "eth: start spi")
	}
	debug.Infof("Ethernet started on spi%d, PHY %d", bus.ID, cfg.PHY)
	return e, nil
}

// End stops the interface and releases its pins
func (e *Ethernet) End() error {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	e.mu.Lock()
	pins := e.pins
	e.mu.Unlock()
	err := releaseOwned(e, pins...)
	if e.Running() {
		err = multierr.Append(err, e.deinit())
	}
	return err
}

// Running reports whether the interface is started
func (e *Ethernet) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// HardwareAddr returns the interface's MAC address
func (e *Ethernet) HardwareAddr() (net.HardwareAddr, error) {
	e.mu.Lock()
	up, h := e.running, e.handle
	e.mu.Unlock()
	if !up {
		return nil, errors.Wrap(ErrBusInactive, "eth")
	}
	mac, err := MustEthernet().HardwareAddr(h)
	return mac, errors.Wrap(err, "eth: mac")
}

// LinkUp reports whether the PHY has link
func (e *Ethernet) LinkUp() bool {
	e.mu.Lock()
	up, h := e.running, e.handle
	e.mu.Unlock()
	return up && MustEthernet().LinkUp(h)
}

// SPIBus returns the bus an SPI chip is on, nil for RMII
func (e *Ethernet) SPIBus() *SPIBus {
	return e.spi
}
