// Capacitive touch support
// Pads are attached lazily by TouchRead. The sensor controller is created
// with the first pad and deleted with the last.
package core

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"gohal/debug"
	"gohal/periman"
)

type touchBus struct {
	pin periman.Pin
	pad TouchPad
}

// touch.pads holds the pads with a live channel; the controller runs while
// it is not empty.
var touch struct {
	mu   sync.Mutex
	pads map[TouchPad]bool
}

func resetTouch() {
	touch.mu.Lock()
	touch.pads = make(map[TouchPad]bool)
	touch.mu.Unlock()
}

var touchDeinit = periman.DeinitFunc(func(bus periman.Bus) error {
	b, ok := bus.(touchBus)
	if !ok {
		return errors.Errorf("touch: unexpected bus handle %T", bus)
	}
	touch.mu.Lock()
	defer touch.mu.Unlock()
	if !touch.pads[b.pad] {
		return nil
	}
	d := MustTouch()
	if err := d.DeleteChannel(b.pad); err != nil {
		return errors.Wrapf(err, "touch pad %d: delete", b.pad)
	}
	delete(touch.pads, b.pad)
	if len(touch.pads) > 0 {
		return nil
	}
	debug.Debugf("Last touch pad detached, deleting controller")
	return errors.Wrap(d.DeleteController(), "touch: delete controller")
})

func touchAttach(pin periman.Pin) (touchBus, error) {
	reg := MustPins()
	if b, ok := reg.GetPinBus(pin, periman.BusTypeTouch).(touchBus); ok {
		return b, nil
	}
	d := MustTouch()
	pad, ok := d.PinToPad(pin)
	if !ok {
		debug.Errorf("Pin %d is not a touch pin", pin)
		return touchBus{}, errors.Wrapf(ErrNotCapable, "touch: pin %d", pin)
	}
	bus := touchBus{pin, pad}

	bringUp := func() error {
		touch.mu.Lock()
		defer touch.mu.Unlock()
		if touch.pads == nil {
			touch.pads = make(map[TouchPad]bool)
		}
		first := len(touch.pads) == 0
		if first {
			if err := d.NewController(); err != nil {
				return err
			}
		}
		if err := d.NewChannel(pad); err != nil {
			if first {
				err = multierr.Append(err, errors.Wrap(d.DeleteController(), "touch: delete controller"))
			}
			return err
		}
		touch.pads[pad] = true
		return nil
	}
	a := reg.NewAttachment(bus, touchDeinit).Pin(pin, periman.BusTypeTouch, -1, int8(pad))
	if err := a.Run(bringUp); err != nil {
		return touchBus{}, errors.Wrapf(err, "touch: attach pin %d", pin)
	}
	return bus, nil
}

// TouchRead returns the raw measurement of pin, attaching it first if needed
func TouchRead(pin periman.Pin) (TouchValue, error) {
	b, err := touchAttach(pin)
	if err != nil {
		return 0, err
	}
	v, err := MustTouch().Read(b.pad)
	return v, errors.Wrapf(err, "touch pad %d: read", b.pad)
}

// TouchSetThreshold sets the detection threshold of pin
func TouchSetThreshold(pin periman.Pin, threshold TouchValue) error {
	b, err := touchAttach(pin)
	if err != nil {
		return err
	}
	return errors.Wrapf(MustTouch().SetThreshold(b.pad, threshold), "touch pad %d: threshold", b.pad)
}

// TouchDetach releases pin from touch sensing
func TouchDetach(pin periman.Pin) error {
	reg := MustPins()
	if _, ok := reg.GetPinBus(pin, periman.BusTypeTouch).(touchBus); !ok {
		return errors.Wrapf(ErrNotOwned, "touch: pin %d", pin)
	}
	return reg.ClearPinBus(pin)
}

// TouchControllerActive reports whether the sensor controller is running
func TouchControllerActive() bool {
	touch.mu.Lock()
	defer touch.mu.Unlock()
	return len(touch.pads) > 0
}
