// USB device PHY support
package core

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"gohal/debug"
	"gohal/periman"
)

// USB is the on-chip USB device PHY
type USB struct {
	opMu sync.Mutex

	mu      sync.Mutex
	enabled bool
	dm, dp  periman.Pin
}

var usbDevice = &USB{dm: periman.NoPin, dp: periman.NoPin}

// USBDevice returns the USB device PHY
func USBDevice() *USB {
	return usbDevice
}

func (u *USB) lines() []ownedPin {
	u.mu.Lock()
	defer u.mu.Unlock()
	return []ownedPin{{u.dm, periman.BusTypeUSBDM}, {u.dp, periman.BusTypeUSBDP}}
}

// deinit disables the PHY and releases both data lines.
func (u *USB) deinit() error {
	u.mu.Lock()
	if !u.enabled {
		u.mu.Unlock()
		return nil
	}
	u.enabled = false
	u.mu.Unlock()

	if err := MustUSB().Disable(); err != nil {
		u.mu.Lock()
		u.enabled = true
		u.mu.Unlock()
		return errors.Wrap(err, "usb: disable")
	}
	return releaseOwned(u, u.lines()...)
}

// Begin enables the PHY on dm and dp, which must be the chip's USB pins
func (u *USB) Begin(dm, dp periman.Pin) error {
	u.opMu.Lock()
	defer u.opMu.Unlock()

	d := MustUSB()
	wantDM, wantDP, ok := d.Pins()
	if !ok {
		return errors.Wrap(ErrNotCapable, "usb")
	}
	if dm != wantDM || dp != wantDP {
		return errors.Wrapf(ErrInvalidArg, "usb: D-/D+ must be %d/%d, got %d/%d", wantDM, wantDP, dm, dp)
	}
	if u.Enabled() {
		return nil
	}

	bringUp := func() error {
		if err := d.Enable(); err != nil {
			return err
		}
		u.mu.Lock()
		u.enabled = true
		u.dm, u.dp = dm, dp
		u.mu.Unlock()
		return nil
	}
	a := MustPins().NewAttachment(u, instanceDeinit).
		Pin(dm, periman.BusTypeUSBDM, -1, -1).
		Pin(dp, periman.BusTypeUSBDP, -1, -1)
	if err := a.Run(bringUp); err != nil {
		debug.Errorf("USB enable failed: %v", err)
		return errors.Wrap(err, "usb: begin")
	}
	return nil
}

// End disables the PHY and releases its pins
func (u *USB) End() error {
	u.opMu.Lock()
	defer u.opMu.Unlock()
	err := releaseOwned(u, u.lines()...)
	if u.Enabled() {
		err = multierr.Append(err, u.deinit())
	}
	return err
}

// Enabled reports whether the PHY is on
func (u *USB) Enabled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.enabled
}

// Connected reports whether a host is attached
func (u *USB) Connected() bool {
	return u.Enabled() && MustUSB().Connected()
}
