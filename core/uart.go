// UART support
// Each line is owned separately and can be moved with SetPins. Losing a line
// to another peripheral unroutes just that line; the port is uninstalled
// once no line is left.
package core

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"gohal/debug"
	"gohal/periman"
)

const (
	UARTDefaultBaud    = 115200
	UARTDefaultTimeout = 100 * time.Millisecond

	maxUARTPorts = 4
)

// UARTPort is one hardware UART. It implements io.ReadWriter.
type UARTPort struct {
	ID UARTPortID

	opMu sync.Mutex

	mu      sync.Mutex
	running bool
	pins    [uartLineCount]periman.Pin
	cfg     UARTConfig
	timeout time.Duration
}

var uartPorts struct {
	mu    sync.Mutex
	ports [maxUARTPorts]*UARTPort
}

// UART returns port n
func UART(n UARTPortID) (*UARTPort, error) {
	if int(n) >= MustUART().PortCount() || n >= maxUARTPorts {
		return nil, errors.Wrapf(ErrInvalidBusNum, "uart%d", n)
	}
	uartPorts.mu.Lock()
	defer uartPorts.mu.Unlock()
	if uartPorts.ports[n] == nil {
		u := &UARTPort{ID: n, timeout: UARTDefaultTimeout}
		for i := range u.pins {
			u.pins[i] = periman.NoPin
		}
		uartPorts.ports[n] = u
	}
	return uartPorts.ports[n], nil
}

func normalizeUARTConfig(cfg UARTConfig) (UARTConfig, error) {
	if cfg.Baud == 0 {
		cfg.Baud = UARTDefaultBaud
	}
	if cfg.DataBits == 0 {
		cfg.DataBits = 8
	}
	if cfg.StopBits == 0 {
		cfg.StopBits = 1
	}
	if cfg.DataBits < 5 || cfg.DataBits > 8 || cfg.StopBits > 2 || cfg.Parity > UARTParityOdd {
		return cfg, errors.Wrapf(ErrInvalidArg, "uart: %d data bits, %d stop bits, parity %d", cfg.DataBits, cfg.StopBits, cfg.Parity)
	}
	return cfg, nil
}

func uartLineDeinit(line UARTLine) periman.Deiniter {
	return periman.DeinitFunc(func(bus periman.Bus) error {
		u, ok := bus.(*UARTPort)
		if !ok {
			return errors.Errorf("uart %s: unexpected bus handle %T", line, bus)
		}
		return u.detachLine(line)
	})
}

var uartLineDeinits = [uartLineCount]periman.Deiniter{
	uartLineDeinit(UARTLineRX),
	uartLineDeinit(UARTLineTX),
	uartLineDeinit(UARTLineCTS),
	uartLineDeinit(UARTLineRTS),
}

func (u *UARTPort) lines() []ownedPin {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]ownedPin, 0, uartLineCount)
	for l, p := range u.pins {
		out = append(out, ownedPin{p, UARTLine(l).busType()})
	}
	return out
}

func (u *UARTPort) routedLocked() bool {
	for _, p := range u.pins {
		if p != periman.NoPin {
			return true
		}
	}
	return false
}

// detachLine unroutes one line and uninstalls the port if it was the last.
func (u *UARTPort) detachLine(line UARTLine) error {
	u.mu.Lock()
	pin := u.pins[line]
	if pin == periman.NoPin {
		u.mu.Unlock()
		return nil
	}
	u.pins[line] = periman.NoPin
	last := u.running && !u.routedLocked()
	if last {
		u.running = false
	}
	u.mu.Unlock()

	d := MustUART()
	err := errors.Wrapf(d.UnrouteLine(u.ID, line, pin), "uart%d: unroute %s", u.ID, line)
	if last {
		debug.Debugf("uart%d has no lines left, uninstalling", u.ID)
		err = multierr.Append(err, errors.Wrapf(d.Uninstall(u.ID), "uart%d: uninstall", u.ID))
	}
	return err
}

// deinit uninstalls the port and releases every line. Rollback uses it.
func (u *UARTPort) deinit() error {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return nil
	}
	u.running = false
	var routed []ownedPin
	for l, p := range u.pins {
		if p != periman.NoPin {
			routed = append(routed, ownedPin{p, UARTLine(l).busType()})
			u.pins[l] = periman.NoPin
		}
	}
	u.mu.Unlock()

	d := MustUART()
	var err error
	for _, r := range routed {
		err = multierr.Append(err, d.UnrouteLine(u.ID, UARTLine(r.typ-periman.BusTypeUARTRx), r.pin))
	}
	err = multierr.Append(err, d.Uninstall(u.ID))
	err = multierr.Append(err, releaseOwned(u, routed...))
	return errors.Wrapf(err, "uart%d: deinit", u.ID)
}

// Begin installs the port and routes its lines. Any line may be NoPin but
// at least one of rx and tx is required. Beginning a running port with the
// same pins applies cfg.
func (u *UARTPort) Begin(cfg UARTConfig, rx, tx, cts, rts periman.Pin) error {
	u.opMu.Lock()
	defer u.opMu.Unlock()

	cfg, err := normalizeUARTConfig(cfg)
	if err != nil {
		return errors.Wrapf(err, "uart%d", u.ID)
	}
	want := [uartLineCount]periman.Pin{rx, tx, cts, rts}

	u.mu.Lock()
	if u.running {
		same := u.pins == want
		u.mu.Unlock()
		if !same {
			debug.Errorf("uart%d is already running", u.ID)
			return errors.Wrapf(ErrBusActive, "uart%d", u.ID)
		}
		return u.configure(cfg)
	}
	u.mu.Unlock()

	if rx == periman.NoPin && tx == periman.NoPin {
		return errors.Wrapf(ErrInvalidArg, "uart%d: no rx or tx pin", u.ID)
	}

	bringUp := func() error {
		d := MustUART()
		if err := d.Install(u.ID, cfg); err != nil {
			return err
		}
		u.mu.Lock()
		u.running = true
		u.cfg = cfg
		u.mu.Unlock()
		for l, p := range want {
			if p == periman.NoPin {
				continue
			}
			if err := d.RouteLine(u.ID, UARTLine(l), p); err != nil {
				return multierr.Append(err, u.deinit())
			}
			u.mu.Lock()
			u.pins[l] = p
			u.mu.Unlock()
		}
		return nil
	}
	a := MustPins().NewAttachment(u, instanceDeinit)
	for l, p := range want {
		a.PinWith(p, UARTLine(l).busType(), int8(u.ID), -1, uartLineDeinits[l])
	}
	if err := a.Run(bringUp); err != nil {
		debug.Errorf("uart%d init failed: %v", u.ID, err)
		return errors.Wrapf(err, "uart%d: begin", u.ID)
	}
	debug.Infof("uart%d started: rx=%d tx=%d baud=%d", u.ID, rx, tx, cfg.Baud)
	return nil
}

func (u *UARTPort) configure(cfg UARTConfig) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if cfg == u.cfg {
		return nil
	}
	if err := MustUART().Configure(u.ID, cfg); err != nil {
		return errors.Wrapf(err, "uart%d: configure", u.ID)
	}
	u.cfg = cfg
	return nil
}

// SetPins moves lines of a running port. NoPin leaves a line unchanged.
func (u *UARTPort) SetPins(rx, tx, cts, rts periman.Pin) error {
	u.opMu.Lock()
	defer u.opMu.Unlock()

	if !u.Running() {
		return errors.Wrapf(ErrBusInactive, "uart%d", u.ID)
	}
	reg := MustPins()
	d := MustUART()
	var err error
	for l, p := range [uartLineCount]periman.Pin{rx, tx, cts, rts} {
		line := UARTLine(l)
		if p == periman.NoPin {
			continue
		}
		u.mu.Lock()
		old := u.pins[line]
		if old == p {
			u.mu.Unlock()
			continue
		}
		// unrouted before release so the line deinit does not see it
		u.pins[line] = periman.NoPin
		u.mu.Unlock()

		if old != periman.NoPin {
			err = multierr.Append(err, d.UnrouteLine(u.ID, line, old))
			err = multierr.Append(err, releaseOwned(u, ownedPin{old, line.busType()}))
		}
		a := reg.NewAttachment(u, uartLineDeinits[line]).Pin(p, line.busType(), int8(u.ID), -1)
		e := a.Run(func() error {
			if err := d.RouteLine(u.ID, line, p); err != nil {
				return err
			}
			u.mu.Lock()
			u.pins[line] = p
			u.mu.Unlock()
			return nil
		})
		if e != nil {
			debug.Errorf("uart%d: moving %s to pin %d failed: %v", u.ID, line, p, e)
			err = multierr.Append(err, errors.Wrapf(e, "uart%d: set %s pin %d", u.ID, line, p))
		}
	}

	u.mu.Lock()
	empty := u.running && !u.routedLocked()
	u.mu.Unlock()
	if empty {
		err = multierr.Append(err, u.deinit())
	}
	return err
}

// End uninstalls the port and releases its lines
func (u *UARTPort) End() error {
	u.opMu.Lock()
	defer u.opMu.Unlock()
	err := releaseOwned(u, u.lines()...)
	if u.Running() {
		err = multierr.Append(err, u.deinit())
	}
	return err
}

// Running reports whether the port is installed
func (u *UARTPort) Running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running
}

// Pin returns the pin routed to line, NoPin if none
func (u *UARTPort) Pin(line UARTLine) periman.Pin {
	u.mu.Lock()
	defer u.mu.Unlock()
	if line >= uartLineCount {
		return periman.NoPin
	}
	return u.pins[line]
}

// Config returns the current frame format
func (u *UARTPort) Config() UARTConfig {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cfg
}

// SetBaud changes the baud rate of a running port
func (u *UARTPort) SetBaud(baud uint32) error {
	if !u.Running() {
		return errors.Wrapf(ErrBusInactive, "uart%d", u.ID)
	}
	cfg := u.Config()
	cfg.Baud = baud
	cfg, err := normalizeUARTConfig(cfg)
	if err != nil {
		return err
	}
	return u.configure(cfg)
}

// SetTimeout sets how long Read waits for data
func (u *UARTPort) SetTimeout(d time.Duration) {
	u.mu.Lock()
	u.timeout = d
	u.mu.Unlock()
}

func (u *UARTPort) Write(p []byte) (int, error) {
	u.mu.Lock()
	up, tx := u.running, u.pins[UARTLineTX]
	u.mu.Unlock()
	if !up || tx == periman.NoPin {
		return 0, errors.Wrapf(ErrBusInactive, "uart%d: tx", u.ID)
	}
	n, err := MustUART().Write(u.ID, p)
	return n, errors.Wrapf(err, "uart%d: write", u.ID)
}

func (u *UARTPort) Read(p []byte) (int, error) {
	u.mu.Lock()
	up, rx, timeout := u.running, u.pins[UARTLineRX], u.timeout
	u.mu.Unlock()
	if !up || rx == periman.NoPin {
		return 0, errors.Wrapf(ErrBusInactive, "uart%d: rx", u.ID)
	}
	n, err := MustUART().Read(u.ID, p, timeout)
	return n, errors.Wrapf(err, "uart%d: read", u.ID)
}
