package linux

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"gohal/core"
	"gohal/periman"
)

// SPIOpener opens a spidev port through a registry
type SPIOpener func(name string) (spi.PortCloser, error)

type spiPort struct {
	port spi.PortCloser
	conn spi.Conn
	cfg  core.SPIConfig
}

// SPIDriver implements core.SPIDriver on spidev ports. Bus n is
// /dev/spidevn.0; its chip select is driven by the kernel.
type SPIDriver struct {
	// Open defaults to spireg.Open
	Open SPIOpener

	routes map[core.SPIBusID][4]periman.Pin
	mu     sync.Mutex
	ports  map[core.SPIBusID]*spiPort
}

func NewSPIDriver(routes map[core.SPIBusID][4]periman.Pin) *SPIDriver {
	return &SPIDriver{Open: spireg.Open, routes: routes, ports: make(map[core.SPIBusID]*spiPort)}
}

func (d *SPIDriver) BusCount() int { return 2 }

func spiName(bus core.SPIBusID) string {
	return "/dev/spidev" + strconv.Itoa(int(bus)) + ".0"
}

// connect opens the port and sets its clock. A periph port connects once,
// so a new configuration reopens it.
func (d *SPIDriver) connect(bus core.SPIBusID, cfg core.SPIConfig) (*spiPort, error) {
	port, err := d.Open(spiName(bus))
	if err != nil {
		return nil, errors.Wrapf(err, "spi%d: open", bus)
	}
	conn, err := port.Connect(cfg.Frequency, cfg.Mode, 8)
	if err != nil {
		port.Close()
		return nil, errors.Wrapf(err, "spi%d: connect", bus)
	}
	return &spiPort{port: port, conn: conn, cfg: cfg}, nil
}

func (d *SPIDriver) Start(bus core.SPIBusID, cfg core.SPIConfig) error {
	if int(bus) >= d.BusCount() {
		return errors.Errorf("spi%d does not exist", bus)
	}
	p, err := d.connect(bus, cfg)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.ports[bus] = p
	d.mu.Unlock()
	return nil
}

func (d *SPIDriver) Stop(bus core.SPIBusID) error {
	d.mu.Lock()
	p, ok := d.ports[bus]
	delete(d.ports, bus)
	d.mu.Unlock()
	if !ok {
		return nil
	}
	return errors.Wrapf(p.port.Close(), "spi%d: close", bus)
}

func (d *SPIDriver) Configure(bus core.SPIBusID, cfg core.SPIConfig) error {
	if err := d.Stop(bus); err != nil {
		return err
	}
	return d.Start(bus, cfg)
}

func (d *SPIDriver) AttachLine(bus core.SPIBusID, line core.SPILine, pin periman.Pin) error {
	d.mu.Lock()
	_, ok := d.ports[bus]
	d.mu.Unlock()
	if !ok {
		return errors.Errorf("spi%d is not started", bus)
	}
	if r, ok := d.routes[bus]; ok {
		return checkRoute("spi"+strconv.Itoa(int(bus))+" "+line.String(), r[line], pin)
	}
	return nil
}

// DetachLine has nothing to unroute
func (d *SPIDriver) DetachLine(core.SPIBusID, core.SPILine, periman.Pin) error {
	return nil
}

func (d *SPIDriver) Transfer(bus core.SPIBusID, w, r []byte) error {
	d.mu.Lock()
	p, ok := d.ports[bus]
	d.mu.Unlock()
	if !ok {
		return errors.Errorf("spi%d is not started", bus)
	}
	return p.conn.Tx(w, r)
}
