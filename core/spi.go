// SPI master support
// Each line is owned separately. Losing SCK, or both data lines, stops the
// controller and releases what is left; losing SS only unroutes it.
package core

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"gohal/debug"
	"gohal/periman"
)

const (
	SPIDefaultFrequency = 1 * physic.MegaHertz

	maxSPIBuses = 4
)

// SPIBus is one SPI master controller.
// It implements tinygo.org/x/drivers.SPI.
type SPIBus struct {
	ID SPIBusID

	opMu sync.Mutex

	mu      sync.Mutex
	running bool
	pins    [spiLineCount]periman.Pin
	cfg     SPIConfig
}

var spiBuses struct {
	mu    sync.Mutex
	buses [maxSPIBuses]*SPIBus
}

// SPIMaster returns controller n
func SPIMaster(n SPIBusID) (*SPIBus, error) {
	if int(n) >= MustSPI().BusCount() || n >= maxSPIBuses {
		return nil, errors.Wrapf(ErrInvalidBusNum, "spi%d", n)
	}
	spiBuses.mu.Lock()
	defer spiBuses.mu.Unlock()
	if spiBuses.buses[n] == nil {
		b := &SPIBus{ID: n}
		for i := range b.pins {
			b.pins[i] = periman.NoPin
		}
		spiBuses.buses[n] = b
	}
	return spiBuses.buses[n], nil
}

func spiLineDeinit(line SPILine) periman.Deiniter {
	return periman.DeinitFunc(func(bus periman.Bus) error {
		b, ok := bus.(*SPIBus)
		if !ok {
			return errors.Errorf("spi %s: unexpected bus handle %T", line, bus)
		}
		return b.detachLine(line)
	})
}

var spiLineDeinits = [spiLineCount]periman.Deiniter{
	spiLineDeinit(SPILineSCK),
	spiLineDeinit(SPILineMISO),
	spiLineDeinit(SPILineMOSI),
	spiLineDeinit(SPILineSS),
}

func (b *SPIBus) lines() []ownedPin {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ownedPin, 0, spiLineCount)
	for l, p := range b.pins {
		out = append(out, ownedPin{p, SPILine(l).busType()})
	}
	return out
}

// detachLine unroutes one line. When the bus can no longer clock data it is
// stopped and the remaining lines are released.
func (b *SPIBus) detachLine(line SPILine) error {
	b.mu.Lock()
	pin := b.pins[line]
	if pin == periman.NoPin {
		b.mu.Unlock()
		return nil
	}
	b.pins[line] = periman.NoPin
	stop := b.running && line != SPILineSS &&
		(b.pins[SPILineSCK] == periman.NoPin ||
			(b.pins[SPILineMISO] == periman.NoPin && b.pins[SPILineMOSI] == periman.NoPin))
	var rest []ownedPin
	if stop {
		b.running = false
		for l, p := range b.pins {
			if p != periman.NoPin {
				rest = append(rest, ownedPin{p, SPILine(l).busType()})
				b.pins[l] = periman.NoPin
			}
		}
	}
	b.mu.Unlock()

	d := MustSPI()
	err := errors.Wrapf(d.DetachLine(b.ID, line, pin), "spi%d: detach %s", b.ID, line)
	if !stop {
		return err
	}
	debug.Debugf("Stopping spi%d", b.ID)
	for _, r := range rest {
		l := SPILine(r.typ - periman.BusTypeSPIMasterSCK)
		err = multierr.Append(err, errors.Wrapf(d.DetachLine(b.ID, l, r.pin), "spi%d: detach %s", b.ID, l))
	}
	err = multierr.Append(err, errors.Wrapf(d.Stop(b.ID), "spi%d: stop", b.ID))
	return multierr.Append(err, releaseOwned(b, rest...))
}

// deinit stops the controller and releases every line. Rollback uses it.
func (b *SPIBus) deinit() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	var routed []ownedPin
	for l, p := range b.pins {
		if p != periman.NoPin {
			routed = append(routed, ownedPin{p, SPILine(l).busType()})
			b.pins[l] = periman.NoPin
		}
	}
	b.mu.Unlock()

	d := MustSPI()
	var err error
	for _, r := range routed {
		l := SPILine(r.typ - periman.BusTypeSPIMasterSCK)
		err = multierr.Append(err, d.DetachLine(b.ID, l, r.pin))
	}
	err = multierr.Append(err, d.Stop(b.ID))
	err = multierr.Append(err, releaseOwned(b, routed...))
	return errors.Wrapf(err, "spi%d: deinit", b.ID)
}

// Begin starts the controller. sck is required along with at least one of
// miso and mosi; ss may be NoPin. A zero frequency selects 1 MHz.
func (b *SPIBus) Begin(sck, miso, mosi, ss periman.Pin, cfg SPIConfig) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	want := [spiLineCount]periman.Pin{sck, miso, mosi, ss}
	b.mu.Lock()
	if b.running {
		same := b.pins == want
		b.mu.Unlock()
		if same {
			return nil
		}
		debug.Errorf("spi%d is already running", b.ID)
		return errors.Wrapf(ErrBusActive, "spi%d", b.ID)
	}
	b.mu.Unlock()

	if sck == periman.NoPin || (miso == periman.NoPin && mosi == periman.NoPin) {
		return errors.Wrapf(ErrInvalidArg, "spi%d: sck=%d miso=%d mosi=%d", b.ID, sck, miso, mosi)
	}
	if cfg.Frequency <= 0 {
		cfg.Frequency = SPIDefaultFrequency
	}

	bringUp := func() error {
		d := MustSPI()
		if err := d.Start(b.ID, cfg); err != nil {
			return err
		}
		b.mu.Lock()
		b.running = true
		b.cfg = cfg
		b.mu.Unlock()
		for l, p := range want {
			if p == periman.NoPin {
				continue
			}
			if err := d.AttachLine(b.ID, SPILine(l), p); err != nil {
				return multierr.Append(err, b.deinit())
			}
			b.mu.Lock()
			b.pins[l] = p
			b.mu.Unlock()
		}
		return nil
	}
	a := MustPins().NewAttachment(b, instanceDeinit)
	for l, p := range want {
		a.PinWith(p, SPILine(l).busType(), int8(b.ID), -1, spiLineDeinits[l])
	}
	if err := a.Run(bringUp); err != nil {
		debug.Errorf("spi%d init failed: %v", b.ID, err)
		return errors.Wrapf(err, "spi%d: begin", b.ID)
	}
	debug.Infof("spi%d started: sck=%d miso=%d mosi=%d ss=%d", b.ID, sck, miso, mosi, ss)
	return nil
}

// End stops the controller and releases its lines
func (b *SPIBus) End() error {
	b.opMu.Lock()
	defer b.opMu.Unlock()
	err := releaseOwned(b, b.lines()...)
	if b.Running() {
		err = multierr.Append(err, b.deinit())
	}
	return err
}

// AttachSS routes a chip-select line on a running bus, replacing any previous
// one. A non-empty label is recorded as the pin's extra type; failing to
// record it does not fail the attach.
func (b *SPIBus) AttachSS(ss periman.Pin, label string) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if !b.Running() {
		return errors.Wrapf(ErrBusInactive, "spi%d", b.ID)
	}
	b.mu.Lock()
	old := b.pins[SPILineSS]
	b.mu.Unlock()
	if old == ss {
		return nil
	}
	if err := releaseOwned(b, ownedPin{old, periman.BusTypeSPIMasterSS}); err != nil {
		return err
	}

	reg := MustPins()
	a := reg.NewAttachment(b, spiLineDeinits[SPILineSS]).Pin(ss, periman.BusTypeSPIMasterSS, int8(b.ID), -1)
	err := a.Run(func() error {
		if err := MustSPI().AttachLine(b.ID, SPILineSS, ss); err != nil {
			return err
		}
		b.mu.Lock()
		b.pins[SPILineSS] = ss
		b.mu.Unlock()
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "spi%d: attach SS %d", b.ID, ss)
	}
	labelPin(ss, label)
	return nil
}

// labelPin records a diagnostic label on a pin just claimed. The label is
// only for reports, so a failure is logged and the claim stands.
func labelPin(pin periman.Pin, label string) {
	if label == "" {
		return
	}
	if err := MustPins().SetPinBusExtraType(pin, label); err != nil {
		debug.Warnf("Pin %d: label %q not recorded: %v", pin, label, err)
	}
}

// DetachSS unroutes the chip-select line, leaving the bus running
func (b *SPIBus) DetachSS() error {
	b.opMu.Lock()
	defer b.opMu.Unlock()
	b.mu.Lock()
	ss := b.pins[SPILineSS]
	b.mu.Unlock()
	return releaseOwned(b, ownedPin{ss, periman.BusTypeSPIMasterSS})
}

// Running reports whether the controller is started
func (b *SPIBus) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Pin returns the pin routed to line, NoPin if none
func (b *SPIBus) Pin(line SPILine) periman.Pin {
	b.mu.Lock()
	defer b.mu.Unlock()
	if line >= spiLineCount {
		return periman.NoPin
	}
	return b.pins[line]
}

// Config returns the current clock settings
func (b *SPIBus) Config() SPIConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// SetFrequency changes the clock of a running bus
func (b *SPIBus) SetFrequency(freq physic.Frequency) error {
	return b.reconfigure(func(c *SPIConfig) { c.Frequency = freq })
}

// SetMode changes clock polarity, phase and bit order
func (b *SPIBus) SetMode(mode spi.Mode) error {
	return b.reconfigure(func(c *SPIConfig) { c.Mode = mode })
}

func (b *SPIBus) reconfigure(edit func(*SPIConfig)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return errors.Wrapf(ErrBusInactive, "spi%d", b.ID)
	}
	cfg := b.cfg
	edit(&cfg)
	if cfg.Frequency <= 0 {
		return errors.Wrapf(ErrInvalidArg, "spi%d: frequency %s", b.ID, cfg.Frequency)
	}
	if cfg == b.cfg {
		return nil
	}
	if err := MustSPI().Configure(b.ID, cfg); err != nil {
		return errors.Wrapf(err, "spi%d: configure", b.ID)
	}
	b.cfg = cfg
	return nil
}

// Tx clocks out w while reading into r
func (b *SPIBus) Tx(w, r []byte) error {
	if !b.Running() {
		return errors.Wrapf(ErrBusInactive, "spi%d", b.ID)
	}
	return errors.Wrapf(MustSPI().Transfer(b.ID, w, r), "spi%d: transfer", b.ID)
}

// Transfer exchanges a single byte
func (b *SPIBus) Transfer(w byte) (byte, error) {
	r := []byte{0}
	if err := b.Tx([]byte{w}, r); err != nil {
		return 0, err
	}
	return r[0], nil
}
