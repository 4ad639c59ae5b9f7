package linux

import (
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"

	"gohal/core"
	"gohal/periman"
)

// I2COpener opens /dev/i2c-n through a registry
type I2COpener func(name string) (i2c.BusCloser, error)

// I2CDriver implements core.I2CDriver on periph I2C buses
type I2CDriver struct {
	// Open defaults to i2creg.Open
	Open I2COpener

	routes map[core.I2CBusID][2]periman.Pin
	mu     sync.Mutex
	buses  map[core.I2CBusID]i2c.BusCloser
}

func NewI2CDriver(routes map[core.I2CBusID][2]periman.Pin) *I2CDriver {
	return &I2CDriver{Open: i2creg.Open, routes: routes, buses: make(map[core.I2CBusID]i2c.BusCloser)}
}

// BusCount covers /dev/i2c-0 through i2c-7; buses the kernel has not
// created fail in Init.
func (d *I2CDriver) BusCount() int { return 8 }

func (d *I2CDriver) Init(bus core.I2CBusID, sda, scl periman.Pin, freq physic.Frequency) error {
	if r, ok := d.routes[bus]; ok {
		if err := checkRoute("i2c"+strconv.Itoa(int(bus))+" SDA", r[0], sda); err != nil {
			return err
		}
		if err := checkRoute("i2c"+strconv.Itoa(int(bus))+" SCL", r[1], scl); err != nil {
			return err
		}
	}
	b, err := d.Open(strconv.Itoa(int(bus)))
	if err != nil {
		return errors.Wrapf(err, "i2c%d: open", bus)
	}
	// not every adapter can change speed; the kernel's rate stands then
	_ = b.SetSpeed(freq)
	d.mu.Lock()
	d.buses[bus] = b
	d.mu.Unlock()
	return nil
}

func (d *I2CDriver) bus(id core.I2CBusID) (i2c.BusCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buses[id]
	if !ok {
		return nil, errors.Errorf("i2c%d is not open", id)
	}
	return b, nil
}

func (d *I2CDriver) Deinit(id core.I2CBusID) error {
	d.mu.Lock()
	b, ok := d.buses[id]
	delete(d.buses, id)
	d.mu.Unlock()
	if !ok {
		return nil
	}
	return errors.Wrapf(b.Close(), "i2c%d: close", id)
}

func (d *I2CDriver) SetClock(id core.I2CBusID, freq physic.Frequency) error {
	b, err := d.bus(id)
	if err != nil {
		return err
	}
	return errors.Wrapf(b.SetSpeed(freq), "i2c%d: set speed", id)
}

// Tx leaves timeouts to the kernel adapter
func (d *I2CDriver) Tx(id core.I2CBusID, addr uint16, w, r []byte, _ time.Duration) error {
	b, err := d.bus(id)
	if err != nil {
		return err
	}
	return b.Tx(addr, w, r)
}
