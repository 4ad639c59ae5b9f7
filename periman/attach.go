package periman

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"gohal/debug"
)

type claim struct {
	pin     Pin
	typ     BusType
	busNum  int8
	channel int8
	deinit  Deiniter
	claimed bool
}

// Attachment claims a set of pins for one bus handle as a unit.
//
// Run registers the deinit for every queued type, evicts the current owners,
// brings the hardware up, then claims the pins in queue order. If a claim
// fails, the hardware is torn down through the attachment's Deiniter and
// every pin it already claimed is cleared, so the instance is left with no
// pins and no hardware state.
//
// An Attachment is not safe for concurrent use; drivers guard it with their
// instance lock.
type Attachment struct {
	reg    *Registry
	bus    Bus
	deinit Deiniter
	claims []claim
	hwUp   bool
}

// NewAttachment starts an attach sequence for bus. deinit is the instance's
// own teardown: it is registered for every pin queued with Pin, and it is
// what rollback calls on the handle.
func (r *Registry) NewAttachment(bus Bus, deinit Deiniter) *Attachment {
	return &Attachment{reg: r, bus: bus, deinit: deinit}
}

// Pin queues pin to be claimed as t. NoPin is skipped.
func (a *Attachment) Pin(pin Pin, t BusType, busNum, channel int8) *Attachment {
	return a.PinWith(pin, t, busNum, channel, nil)
}

// PinWith queues pin with a type-specific Deiniter. A nil d falls back to
// the attachment's Deiniter.
func (a *Attachment) PinWith(pin Pin, t BusType, busNum, channel int8, d Deiniter) *Attachment {
	if pin == NoPin {
		return a
	}
	a.claims = append(a.claims, claim{pin: pin, typ: t, busNum: busNum, channel: channel, deinit: d})
	return a
}

// queued reports whether pin appears in the first n claims
func (a *Attachment) queued(pin Pin, n int) bool {
	for i := 0; i < n; i++ {
		if a.claims[i].pin == pin {
			return true
		}
	}
	return false
}

func (a *Attachment) deinitFor(c *claim) Deiniter {
	if c.deinit != nil {
		return c.deinit
	}
	return a.deinit
}

// Run executes the attach sequence for every queued pin. bringUp may be
// nil. If bringUp fails nothing is claimed and its error is returned as is;
// bringUp is responsible for undoing its own partial work. A pin queued
// twice fails with ErrPinRepeated before anything is touched.
func (a *Attachment) Run(bringUp func() error) error {
	if a.bus == nil {
		return ErrNilBus
	}
	if a.deinit == nil {
		return ErrNilDeinit
	}
	for i := range a.claims {
		if a.queued(a.claims[i].pin, i) {
			debug.Errorf("Pin %d requested twice for %v", a.claims[i].pin, a.bus)
			return errors.Wrapf(ErrPinRepeated, "pin %d", a.claims[i].pin)
		}
	}
	for i := range a.claims {
		c := &a.claims[i]
		if err := a.reg.SetBusDeinit(c.typ, a.deinitFor(c)); err != nil {
			return errors.Wrapf(err, "pin %d", c.pin)
		}
	}
	for i := range a.claims {
		c := &a.claims[i]
		if a.reg.GetPinBus(c.pin, c.typ) == a.bus {
			continue
		}
		if err := a.reg.ClearPinBus(c.pin); err != nil {
			return errors.Wrapf(err, "evict pin %d", c.pin)
		}
	}
	if bringUp != nil {
		if err := bringUp(); err != nil {
			return err
		}
	}
	a.hwUp = true
	for i := range a.claims {
		c := &a.claims[i]
		if err := a.reg.SetPinBus(c.pin, c.typ, a.bus, c.busNum, c.channel); err != nil {
			err = errors.Wrapf(err, "claim pin %d as %s", c.pin, c.typ)
			return multierr.Append(err, a.Rollback())
		}
		c.claimed = true
	}
	return nil
}

// Extend claims one more pin for an attachment whose hardware is already
// up, running its own bring-up step (for example routing one signal).
// On any failure the whole instance is rolled back, including pins claimed
// by earlier calls. NoPin is a no-op, as is a pin the handle already owns
// as t. A pin the attachment holds as another type fails with
// ErrPinRepeated and leaves the instance untouched.
func (a *Attachment) Extend(pin Pin, t BusType, busNum, channel int8, d Deiniter, bringUp func() error) error {
	if pin == NoPin {
		return nil
	}
	if a.bus == nil {
		return ErrNilBus
	}
	if a.deinit == nil {
		return ErrNilDeinit
	}
	for i := range a.claims {
		c := &a.claims[i]
		if c.pin != pin {
			continue
		}
		if c.typ == t && c.claimed && a.reg.GetPinBus(pin, t) == a.bus {
			return nil
		}
		return errors.Wrapf(ErrPinRepeated, "pin %d", pin)
	}
	a.claims = append(a.claims, claim{pin: pin, typ: t, busNum: busNum, channel: channel, deinit: d})
	c := &a.claims[len(a.claims)-1]

	fail := func(err error) error {
		return multierr.Append(err, a.Rollback())
	}
	if err := a.reg.SetBusDeinit(t, a.deinitFor(c)); err != nil {
		return fail(errors.Wrapf(err, "pin %d", pin))
	}
	if a.reg.GetPinBus(pin, t) != a.bus {
		if err := a.reg.ClearPinBus(pin); err != nil {
			return fail(errors.Wrapf(err, "evict pin %d", pin))
		}
	}
	if bringUp != nil {
		if err := bringUp(); err != nil {
			return fail(err)
		}
	}
	a.hwUp = true
	if err := a.reg.SetPinBus(pin, t, a.bus, busNum, channel); err != nil {
		return fail(errors.Wrapf(err, "claim pin %d as %s", pin, t))
	}
	c.claimed = true
	return nil
}

// Rollback tears the instance down: the attachment's Deiniter runs on the
// handle if hardware was brought up, then every pin still owned by the
// handle is cleared. Errors from both steps are combined.
func (a *Attachment) Rollback() error {
	var err error
	if a.hwUp {
		debug.Debugf("Rolling back attach of %v", a.bus)
		err = multierr.Append(err, a.deinit.Deinit(a.bus))
		a.hwUp = false
	}
	err = multierr.Append(err, a.clearOwned())
	a.claims = a.claims[:0]
	return err
}

// Detach clears every pin the attachment claimed, newest first. Clearing a
// pin runs the registered deinit for its type on the handle. If no pin is
// still owned but the hardware was brought up, the attachment's Deiniter is
// called directly.
func (a *Attachment) Detach() error {
	owned := a.Owned()
	err := a.clearOwned()
	if len(owned) == 0 && a.hwUp {
		err = multierr.Append(err, a.deinit.Deinit(a.bus))
	}
	a.hwUp = false
	a.claims = a.claims[:0]
	return err
}

// Release clears one claimed pin and forgets it. The pin's deinit runs if
// the handle still owns it.
func (a *Attachment) Release(pin Pin) error {
	for i := range a.claims {
		c := a.claims[i]
		if c.pin != pin {
			continue
		}
		a.claims = append(a.claims[:i], a.claims[i+1:]...)
		if c.claimed && a.reg.GetPinBus(c.pin, c.typ) == a.bus {
			return a.reg.ClearPinBus(c.pin)
		}
		return nil
	}
	return nil
}

func (a *Attachment) clearOwned() error {
	var err error
	for i := len(a.claims) - 1; i >= 0; i-- {
		c := &a.claims[i]
		if !c.claimed {
			continue
		}
		c.claimed = false
		if a.reg.GetPinBus(c.pin, c.typ) != a.bus {
			continue
		}
		if e := a.reg.ClearPinBus(c.pin); e != nil {
			err = multierr.Append(err, errors.Wrapf(e, "release pin %d", c.pin))
		}
	}
	return err
}

// Pins lists the queued or claimed pins in order
func (a *Attachment) Pins() []Pin {
	pins := make([]Pin, 0, len(a.claims))
	for _, c := range a.claims {
		pins = append(pins, c.pin)
	}
	return pins
}

// Owned lists the claimed pins that the handle still owns
func (a *Attachment) Owned() []Pin {
	var pins []Pin
	for _, c := range a.claims {
		if c.claimed && a.reg.GetPinBus(c.pin, c.typ) == a.bus {
			pins = append(pins, c.pin)
		}
	}
	return pins
}

// Active reports whether hardware is up for the attachment
func (a *Attachment) Active() bool {
	return a.hwUp
}
