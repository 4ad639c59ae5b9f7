package linux

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"

	"gohal/periman"
)

// GPIODriver implements core.GPIODriver on periph pins. Open-drain outputs
// are emulated: low drives the pin, high releases it with a pull-up.
type GPIODriver struct {
	lookup PinLookup

	mu        sync.Mutex
	pins      map[periman.Pin]gpio.PinIO
	openDrain map[periman.Pin]bool
}

func NewGPIODriver(lookup PinLookup) *GPIODriver {
	return &GPIODriver{
		lookup:    lookup,
		pins:      make(map[periman.Pin]gpio.PinIO),
		openDrain: make(map[periman.Pin]bool),
	}
}

// resolve looks a pin up once and caches it
func (d *GPIODriver) resolve(pin periman.Pin) (gpio.PinIO, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pins[pin]; ok {
		return p, nil
	}
	p := d.lookup(pin)
	if p == nil {
		return nil, errors.Errorf("GPIO%d not found", pin)
	}
	d.pins[pin] = p
	return p, nil
}

func (d *GPIODriver) setOpenDrain(pin periman.Pin, on bool) {
	d.mu.Lock()
	if on {
		d.openDrain[pin] = true
	} else {
		delete(d.openDrain, pin)
	}
	d.mu.Unlock()
}

func (d *GPIODriver) ConfigureInput(pin periman.Pin, pull gpio.Pull) error {
	p, err := d.resolve(pin)
	if err != nil {
		return err
	}
	d.setOpenDrain(pin, false)
	return errors.Wrapf(p.In(pull, gpio.NoEdge), "GPIO%d: input", pin)
}

func (d *GPIODriver) ConfigureOutput(pin periman.Pin, openDrain bool) error {
	p, err := d.resolve(pin)
	if err != nil {
		return err
	}
	d.setOpenDrain(pin, openDrain)
	if openDrain {
		return errors.Wrapf(p.In(gpio.PullUp, gpio.NoEdge), "GPIO%d: open drain", pin)
	}
	return errors.Wrapf(p.Out(gpio.Low), "GPIO%d: output", pin)
}

func (d *GPIODriver) Reset(pin periman.Pin) error {
	p, err := d.resolve(pin)
	if err != nil {
		return err
	}
	d.setOpenDrain(pin, false)
	return errors.Wrapf(p.In(gpio.Float, gpio.NoEdge), "GPIO%d: reset", pin)
}

func (d *GPIODriver) Set(pin periman.Pin, level gpio.Level) error {
	p, err := d.resolve(pin)
	if err != nil {
		return err
	}
	d.mu.Lock()
	od := d.openDrain[pin]
	d.mu.Unlock()
	if od && level == gpio.High {
		return p.In(gpio.PullUp, gpio.NoEdge)
	}
	return p.Out(level)
}

func (d *GPIODriver) Get(pin periman.Pin) (gpio.Level, error) {
	p, err := d.resolve(pin)
	if err != nil {
		return gpio.Low, err
	}
	return p.Read(), nil
}
