// ADC one-shot support
// Pins are attached lazily on first read; a unit is powered down when the
// last of its channels is detached.
package core

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"gohal/debug"
	"gohal/periman"
)

// adcBus is the owner handle of a one-shot ADC pin
type adcBus struct {
	pin periman.Pin
}

// adcState holds the shared one-shot configuration.
type adcState struct {
	mu            sync.Mutex
	units         map[ADCUnit]bool
	width         uint8
	atten         ADCAttenuation
	returnedWidth uint8
}

const (
	adcDefaultWidth = 12
	adcMaxWidth     = 16
)

var adc = newADCState()

func newADCState() *adcState {
	return &adcState{
		units:         make(map[ADCUnit]bool),
		width:         adcDefaultWidth,
		atten:         ADCAtten11dB,
		returnedWidth: adcDefaultWidth,
	}
}

// resetADC clears the one-shot state. Used by target init and tests.
func resetADC() {
	adc = newADCState()
}

var adcDeinit = periman.DeinitFunc(func(bus periman.Bus) error {
	b, ok := bus.(adcBus)
	if !ok {
		return errors.Errorf("adc: unexpected bus %T", bus)
	}
	return adc.detach(b.pin)
})

// detach powers the pin's unit down if no other channel of it is in use.
func (s *adcState) detach(pin periman.Pin) error {
	d := MustADC()
	reg := MustPins()
	unit, _, ok := d.PinToChannel(pin)
	if !ok {
		return nil
	}
	others := 0
	for ch := 0; ch < d.ChannelCount(unit); ch++ {
		p, ok := d.ChannelToPin(unit, ADCChannel(ch))
		if !ok || p == pin {
			continue
		}
		if reg.GetPinBusType(p) == periman.BusTypeADCOneshot {
			others++
		}
	}
	if others > 0 {
		return nil
	}

	s.mu.Lock()
	up := s.units[unit]
	delete(s.units, unit)
	s.mu.Unlock()
	if !up {
		return nil
	}
	debug.Debugf("Deleting ADC unit %d", unit)
	if err := d.DeleteUnit(unit); err != nil {
		s.mu.Lock()
		s.units[unit] = true
		s.mu.Unlock()
		return errors.Wrapf(err, "adc unit %d: delete", unit)
	}
	return nil
}

// attach claims pin for one-shot reads, powering its unit up if needed
func (s *adcState) attach(pin periman.Pin) (ADCUnit, ADCChannel, error) {
	d := MustADC()
	unit, ch, ok := d.PinToChannel(pin)
	if !ok {
		debug.Errorf("Pin %d is not ADC pin!", pin)
		return 0, 0, errors.Wrapf(ErrNotCapable, "adc: pin %d", pin)
	}
	if MustPins().GetPinBus(pin, periman.BusTypeADCOneshot) != nil {
		return unit, ch, nil
	}

	bringUp := func() error {
		s.mu.Lock()
		up := s.units[unit]
		width, atten := s.width, s.atten
		s.mu.Unlock()
		if !up {
			if err := d.NewUnit(unit); err != nil {
				return errors.Wrapf(err, "adc unit %d: new", unit)
			}
			s.mu.Lock()
			s.units[unit] = true
			s.mu.Unlock()
		}
		err := d.ConfigChannel(unit, ch, width, atten)
		if err == nil || up {
			return err
		}
		// the unit was created for this pin alone
		s.mu.Lock()
		delete(s.units, unit)
		s.mu.Unlock()
		return multierr.Append(err, errors.Wrapf(d.DeleteUnit(unit), "adc unit %d: delete", unit))
	}
	a := MustPins().NewAttachment(adcBus{pin}, adcDeinit).
		Pin(pin, periman.BusTypeADCOneshot, int8(unit), int8(ch))
	if err := a.Run(bringUp); err != nil {
		debug.Errorf("Analog initialization failed for pin %d: %v", pin, err)
		return 0, 0, errors.Wrapf(err, "adc: attach pin %d", pin)
	}
	return unit, ch, nil
}

// mapResolution scales a raw reading to the width requested with
// AnalogReadResolution.
func (s *adcState) mapResolution(v ADCValue) ADCValue {
	s.mu.Lock()
	from, to := s.width, s.returnedWidth
	s.mu.Unlock()
	if from == to {
		return v
	}
	if from > to {
		return v >> (from - to)
	}
	return v << (to - from)
}

// AnalogRead attaches pin to the ADC if needed and returns one conversion
// scaled to the read resolution.
func AnalogRead(pin periman.Pin) (ADCValue, error) {
	unit, ch, err := adc.attach(pin)
	if err != nil {
		return 0, err
	}
	v, err := MustADC().ReadRaw(unit, ch)
	if err != nil {
		return 0, errors.Wrapf(err, "adc: read pin %d", pin)
	}
	return adc.mapResolution(v), nil
}

// AnalogReadMilliVolts attaches pin if needed and returns a calibrated
// reading.
func AnalogReadMilliVolts(pin periman.Pin) (uint32, error) {
	unit, ch, err := adc.attach(pin)
	if err != nil {
		return 0, err
	}
	mv, err := MustADC().ReadMilliVolts(unit, ch)
	return mv, errors.Wrapf(err, "adc: read mV pin %d", pin)
}

// AnalogReadResolution sets the width of values returned by AnalogRead.
// Zero and widths above 16 bits are ignored.
func AnalogReadResolution(bits uint8) {
	if bits == 0 || bits > adcMaxWidth {
		return
	}
	adc.mu.Lock()
	adc.returnedWidth = bits
	adc.mu.Unlock()
}

// AnalogSetAttenuation changes the attenuation of every attached channel
// and of channels attached later.
func AnalogSetAttenuation(atten ADCAttenuation) error {
	adc.mu.Lock()
	adc.atten = atten
	width := adc.width
	adc.mu.Unlock()
	return reconfigureADC(periman.NoPin, width, atten)
}

// AnalogSetPinAttenuation changes the attenuation of one attached pin.
func AnalogSetPinAttenuation(pin periman.Pin, atten ADCAttenuation) error {
	adc.mu.Lock()
	width := adc.width
	adc.mu.Unlock()
	return reconfigureADC(pin, width, atten)
}

// AnalogSetWidth sets the hardware conversion width
func AnalogSetWidth(bits uint8) error {
	if bits == 0 || bits > adcMaxWidth {
		return errors.Wrapf(ErrInvalidArg, "adc: width %d", bits)
	}
	adc.mu.Lock()
	adc.width = bits
	atten := adc.atten
	adc.mu.Unlock()
	return reconfigureADC(periman.NoPin, bits, atten)
}

func reconfigureADC(pin periman.Pin, width uint8, atten ADCAttenuation) error {
	d := MustADC()
	reg := MustPins()
	if pin != periman.NoPin {
		if reg.GetPinBusType(pin) != periman.BusTypeADCOneshot {
			debug.Errorf("Pin %d is not configured as analog channel", pin)
			return errors.Wrapf(ErrNotOwned, "adc: pin %d", pin)
		}
		unit, ch, _ := d.PinToChannel(pin)
		return d.ConfigChannel(unit, ch, width, atten)
	}
	adc.mu.Lock()
	units := make([]ADCUnit, 0, len(adc.units))
	for u := range adc.units {
		units = append(units, u)
	}
	adc.mu.Unlock()
	for _, unit := range units {
		for ch := 0; ch < d.ChannelCount(unit); ch++ {
			p, ok := d.ChannelToPin(unit, ADCChannel(ch))
			if !ok || reg.GetPinBusType(p) != periman.BusTypeADCOneshot {
				continue
			}
			if err := d.ConfigChannel(unit, ADCChannel(ch), width, atten); err != nil {
				return errors.Wrapf(err, "adc unit %d channel %d", unit, ch)
			}
		}
	}
	return nil
}

// AnalogDetach releases a one-shot pin
func AnalogDetach(pin periman.Pin) error {
	reg := MustPins()
	if reg.GetPinBus(pin, periman.BusTypeADCOneshot) == nil {
		return nil
	}
	return reg.ClearPinBus(pin)
}

// ADCUnitActive reports whether a unit is powered for one-shot reads
func ADCUnitActive(unit ADCUnit) bool {
	adc.mu.Lock()
	defer adc.mu.Unlock()
	return adc.units[unit]
}
