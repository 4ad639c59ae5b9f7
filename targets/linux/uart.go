package linux

import (
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"

	"gohal/core"
	"gohal/periman"
)

// pollInterval bounds one blocking read so Read can honour its timeout
const pollInterval = 10 * time.Millisecond

// SerialOpener opens a tty
type SerialOpener func(c *serial.Config) (io.ReadWriteCloser, error)

func openPort(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.OpenPort(c)
}

// UARTDriver implements core.UARTDriver on tty devices with tarm/serial
type UARTDriver struct {
	// Open defaults to serial.OpenPort
	Open SerialOpener

	devices map[core.UARTPortID]string
	routes  map[core.UARTPortID][4]periman.Pin

	mu    sync.Mutex
	ports map[core.UARTPortID]io.ReadWriteCloser
}

func NewUARTDriver(devices map[core.UARTPortID]string, routes map[core.UARTPortID][4]periman.Pin) *UARTDriver {
	return &UARTDriver{
		Open:    openPort,
		devices: devices,
		routes:  routes,
		ports:   make(map[core.UARTPortID]io.ReadWriteCloser),
	}
}

func (d *UARTDriver) PortCount() int { return len(d.devices) }

func serialConfig(name string, cfg core.UARTConfig) *serial.Config {
	c := &serial.Config{
		Name:        name,
		Baud:        int(cfg.Baud),
		ReadTimeout: pollInterval,
		Size:        cfg.DataBits,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}
	switch cfg.Parity {
	case core.UARTParityEven:
		c.Parity = serial.ParityEven
	case core.UARTParityOdd:
		c.Parity = serial.ParityOdd
	}
	if cfg.StopBits == 2 {
		c.StopBits = serial.Stop2
	}
	return c
}

func (d *UARTDriver) Install(port core.UARTPortID, cfg core.UARTConfig) error {
	name, ok := d.devices[port]
	if !ok {
		return errors.Errorf("uart%d has no device", port)
	}
	p, err := d.Open(serialConfig(name, cfg))
	if err != nil {
		return errors.Wrapf(err, "uart%d: open %s", port, name)
	}
	d.mu.Lock()
	d.ports[port] = p
	d.mu.Unlock()
	return nil
}

func (d *UARTDriver) Uninstall(port core.UARTPortID) error {
	d.mu.Lock()
	p, ok := d.ports[port]
	delete(d.ports, port)
	d.mu.Unlock()
	if !ok {
		return nil
	}
	return errors.Wrapf(p.Close(), "uart%d: close", port)
}

// Configure reopens the tty with the new frame format
func (d *UARTDriver) Configure(port core.UARTPortID, cfg core.UARTConfig) error {
	if err := d.Uninstall(port); err != nil {
		return err
	}
	return d.Install(port, cfg)
}

func (d *UARTDriver) RouteLine(port core.UARTPortID, line core.UARTLine, pin periman.Pin) error {
	if r, ok := d.routes[port]; ok {
		return checkRoute("uart"+strconv.Itoa(int(port))+" "+line.String(), r[line], pin)
	}
	return nil
}

func (d *UARTDriver) UnrouteLine(core.UARTPortID, core.UARTLine, periman.Pin) error {
	return nil
}

func (d *UARTDriver) port(id core.UARTPortID) (io.ReadWriteCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.ports[id]
	if !ok {
		return nil, errors.Errorf("uart%d is not installed", id)
	}
	return p, nil
}

func (d *UARTDriver) Write(id core.UARTPortID, b []byte) (int, error) {
	p, err := d.port(id)
	if err != nil {
		return 0, err
	}
	return p.Write(b)
}

func (d *UARTDriver) Read(id core.UARTPortID, b []byte, timeout time.Duration) (int, error) {
	p, err := d.port(id)
	if err != nil {
		return 0, err
	}
	deadline := time.Now().Add(timeout)
	for {
		n, err := p.Read(b)
		if n > 0 || (err != nil && err != io.EOF) {
			return n, err
		}
		if !time.Now().Before(deadline) {
			return 0, nil
		}
	}
}
