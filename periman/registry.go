// Package periman tracks which peripheral owns each GPIO pin.
//
// A pin is owned by at most one (BusType, Bus) pair. Claiming a pin that
// belongs to somebody else first runs the old owner's registered Deiniter,
// and the claim only happens if that succeeds. Drivers use Attachment to
// claim several pins as one unit.
package periman

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"gohal/debug"
)

// Pin is a GPIO number
type Pin int

// NoPin marks an optional pin that is not used
const NoPin Pin = -1

// Bus is an opaque, driver-owned handle stored as a pin's owner.
// It must be comparable; drivers normally use a pointer to their instance.
type Bus interface{}

// Deiniter releases the hardware behind a bus handle when one of its pins
// is taken away. Implementations must be idempotent and may call back into
// the Registry for any pin, including the one being evicted.
type Deiniter interface {
	Deinit(bus Bus) error
}

// DeinitFunc adapts a function to the Deiniter interface
type DeinitFunc func(bus Bus) error

// Deinit calls f(bus)
func (f DeinitFunc) Deinit(bus Bus) error { return f(bus) }

// record is an immutable snapshot of one pin's owner
type record struct {
	typ        BusType
	bus        Bus
	busNum     int8
	busChannel int8
	extraType  string
}

var unowned = &record{typ: BusTypeInit, busNum: -1, busChannel: -1}

// Registry is the pin ownership table for one chip.
//
// Each pin slot is swapped atomically so readers never observe a torn
// record. The registry does not serialize two claimants of the same pin;
// drivers hold their own instance lock across an attach.
type Registry struct {
	chip  Chip
	slots []atomic.Pointer[record]

	mu      sync.RWMutex
	deinits [BusTypeMax]Deiniter
}

// New creates a registry with every pin of chip unowned
func New(chip Chip) *Registry {
	r := &Registry{
		chip:  chip,
		slots: make([]atomic.Pointer[record], chip.PinCount),
	}
	for i := range r.slots {
		r.slots[i].Store(unowned)
	}
	return r
}

// Chip returns the chip description the registry was built for
func (r *Registry) Chip() Chip {
	return r.chip
}

// PinIsValid reports whether pin exists on the chip. It does not look at
// ownership.
func (r *Registry) PinIsValid(pin Pin) bool {
	return r.chip.PinIsValid(pin)
}

// TypeName returns the name of t, or "UNKNOWN" when t is out of range or
// not available on this chip.
func (r *Registry) TypeName(t BusType) string {
	if !r.chip.Supports(t) {
		return "UNKNOWN"
	}
	return t.String()
}

func (r *Registry) load(pin Pin) *record {
	return r.slots[pin].Load()
}

// SetPinBus makes (t, bus) the owner of pin.
//
// If the pin already has a different owner, that owner's Deiniter runs
// first and the pin only changes hands if it returns nil. On any error the
// pin's record is left as it was. Setting the pair that already owns the
// pin succeeds without changes; busNum and busChannel are not compared.
func (r *Registry) SetPinBus(pin Pin, t BusType, bus Bus, busNum, busChannel int8) error {
	if !r.PinIsValid(pin) {
		debug.Errorf("Invalid pin: %d", pin)
		return errors.Wrapf(ErrInvalidPin, "pin %d", pin)
	}
	if t >= BusTypeMax || !r.chip.Supports(t) {
		debug.Errorf("Invalid type: %s (%d) when setting pin %d", r.TypeName(t), t, pin)
		return errors.Wrapf(ErrInvalidType, "pin %d: type %d", pin, t)
	}
	if t != BusTypeInit && bus == nil {
		debug.Errorf("Bus is nil for pin %d with type %s", pin, t)
		return errors.Wrapf(ErrNilBus, "pin %d: %s", pin, t)
	}
	if t == BusTypeInit && bus != nil {
		debug.Errorf("Bus is not nil for pin %d with type INIT", pin)
		return errors.Wrapf(ErrBusOnInit, "pin %d", pin)
	}
	if bus != nil && !reflect.TypeOf(bus).Comparable() {
		return errors.Wrapf(ErrInvalidBus, "pin %d: %T", pin, bus)
	}

	old := r.load(pin)
	if old.typ == t && old.bus == bus {
		if t != BusTypeInit {
			if old.busNum != busNum || old.busChannel != busChannel {
				debug.Verbosef("Pin %d already has %s; keeping bus %d channel %d", pin, t, old.busNum, old.busChannel)
			} else {
				debug.Infof("Bus already set for pin %d", pin)
			}
		}
		return nil
	}

	if old.bus != nil {
		d := r.deinitFor(old.typ)
		if d == nil {
			debug.Errorf("Can't deinit pin %d: no deinit for %s", pin, r.TypeName(old.typ))
			return errors.Wrapf(ErrNoDeinit, "pin %d: evict %s", pin, r.TypeName(old.typ))
		}
		// No lock is held here, so d may re-enter the registry.
		if err := d.Deinit(old.bus); err != nil {
			debug.Errorf("Deinit of %s failed for pin %d: %v", r.TypeName(old.typ), pin, err)
			return errors.Wrapf(multierr.Combine(ErrDeinitFailed, err), "pin %d: evict %s", pin, r.TypeName(old.typ))
		}
	}

	next := unowned
	if t != BusTypeInit {
		next = &record{typ: t, bus: bus, busNum: busNum, busChannel: busChannel}
	}
	r.slots[pin].Store(next)
	debug.Verbosef("Pin %d successfully set to type %s with bus %v", pin, t, bus)
	return nil
}

// ClearPinBus evicts the owner of pin, running its Deiniter.
// Clearing an unowned pin succeeds and runs nothing.
func (r *Registry) ClearPinBus(pin Pin) error {
	return r.SetPinBus(pin, BusTypeInit, nil, -1, -1)
}

// GetPinBus returns the owner handle of pin if it is owned by type t,
// and nil otherwise.
func (r *Registry) GetPinBus(pin Pin, t BusType) Bus {
	if !r.PinIsValid(pin) || t == BusTypeInit || t >= BusTypeMax {
		return nil
	}
	rec := r.load(pin)
	if rec.typ != t {
		return nil
	}
	return rec.bus
}

// GetPinBusType returns the owning type of pin, or BusTypeMax for an
// invalid pin.
func (r *Registry) GetPinBusType(pin Pin) BusType {
	if !r.PinIsValid(pin) {
		return BusTypeMax
	}
	return r.load(pin).typ
}

// GetPinBusNum returns the bus number stored with the owner, or -1
func (r *Registry) GetPinBusNum(pin Pin) int8 {
	if !r.PinIsValid(pin) {
		return -1
	}
	return r.load(pin).busNum
}

// GetPinBusChannel returns the channel stored with the owner, or -1
func (r *Registry) GetPinBusChannel(pin Pin) int8 {
	if !r.PinIsValid(pin) {
		return -1
	}
	return r.load(pin).busChannel
}

// SetPinBusExtraType attaches a diagnostic label to an owned pin. The label
// is dropped on the next ownership change.
func (r *Registry) SetPinBusExtraType(pin Pin, label string) error {
	if !r.PinIsValid(pin) {
		return errors.Wrapf(ErrInvalidPin, "pin %d", pin)
	}
	for {
		old := r.load(pin)
		if old.typ == BusTypeInit {
			debug.Errorf("Can't set extra type for pin %d: not owned", pin)
			return errors.Wrapf(ErrPinUnowned, "pin %d", pin)
		}
		next := *old
		next.extraType = label
		if r.slots[pin].CompareAndSwap(old, &next) {
			return nil
		}
	}
}

// GetPinBusExtraType returns the diagnostic label of pin, or ""
func (r *Registry) GetPinBusExtraType(pin Pin) string {
	if !r.PinIsValid(pin) {
		return ""
	}
	return r.load(pin).extraType
}

// SetBusDeinit registers the Deiniter for t. A later call for the same
// type replaces it.
func (r *Registry) SetBusDeinit(t BusType, d Deiniter) error {
	if t == BusTypeInit || t >= BusTypeMax {
		debug.Errorf("Invalid type: %s (%d)", t, t)
		return errors.Wrapf(ErrInvalidType, "set deinit for %s", t)
	}
	if d == nil {
		debug.Errorf("Deinit function is nil for type %s", t)
		return errors.Wrapf(ErrNilDeinit, "set deinit for %s", t)
	}
	r.mu.Lock()
	r.deinits[t] = d
	r.mu.Unlock()
	return nil
}

func (r *Registry) deinitFor(t BusType) Deiniter {
	if t >= BusTypeMax {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deinits[t]
}

// PinInfo is a read-only view of one pin's owner
type PinInfo struct {
	Pin        Pin
	Type       BusType
	Bus        Bus
	BusNum     int8
	BusChannel int8
	ExtraType  string
}

// Info returns the current owner of pin
func (r *Registry) Info(pin Pin) (PinInfo, error) {
	if !r.PinIsValid(pin) {
		return PinInfo{}, errors.Wrapf(ErrInvalidPin, "pin %d", pin)
	}
	rec := r.load(pin)
	return PinInfo{
		Pin:        pin,
		Type:       rec.typ,
		Bus:        rec.bus,
		BusNum:     rec.busNum,
		BusChannel: rec.busChannel,
		ExtraType:  rec.extraType,
	}, nil
}

// Snapshot lists every owned valid pin in ascending order. Each entry is
// read atomically; the list as a whole is not a consistent cut.
func (r *Registry) Snapshot() []PinInfo {
	var out []PinInfo
	for i := range r.slots {
		pin := Pin(i)
		if !r.PinIsValid(pin) {
			continue
		}
		info, _ := r.Info(pin)
		if info.Type == BusTypeInit {
			continue
		}
		out = append(out, info)
	}
	return out
}
