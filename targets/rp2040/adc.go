//go:build rp2040

package main

import (
	"machine"
	"sync"

	"github.com/pkg/errors"

	"gohal/core"
	"gohal/periman"
)

// The single converter has four external inputs on GPIO26..29. Channel 4 is
// the temperature sensor and has no pin.
const (
	adcFirstPin   = 26
	adcPinCount   = 4
	adcNativeBits = 12
	adcRefMV      = 3300
)

// ADCDriver implements core.ADCDriver on machine.ADC.
// The RP2040 input range is fixed, so attenuation is accepted and ignored.
type ADCDriver struct {
	mu     sync.Mutex
	on     bool
	width  [adcPinCount]uint8
	inputs [adcPinCount]*machine.ADC
}

func NewADCDriver() *ADCDriver {
	return &ADCDriver{}
}

func (d *ADCDriver) PinToChannel(pin periman.Pin) (core.ADCUnit, core.ADCChannel, bool) {
	if pin < adcFirstPin || pin >= adcFirstPin+adcPinCount {
		return 0, 0, false
	}
	return 0, core.ADCChannel(pin - adcFirstPin), true
}

func (d *ADCDriver) ChannelToPin(unit core.ADCUnit, ch core.ADCChannel) (periman.Pin, bool) {
	if unit != 0 || ch >= adcPinCount {
		return periman.NoPin, false
	}
	return periman.Pin(adcFirstPin + int(ch)), true
}

func (d *ADCDriver) ChannelCount(unit core.ADCUnit) int {
	if unit != 0 {
		return 0
	}
	return adcPinCount
}

func (d *ADCDriver) NewUnit(unit core.ADCUnit) error {
	if unit != 0 {
		return errors.Errorf("adc unit %d does not exist", unit)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.on {
		machine.InitADC()
		d.on = true
	}
	return nil
}

func (d *ADCDriver) DeleteUnit(unit core.ADCUnit) error {
	if unit != 0 {
		return errors.Errorf("adc unit %d does not exist", unit)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	// machine has no ADC power-down; forget the inputs so the next
	// NewUnit configures them again
	d.inputs = [adcPinCount]*machine.ADC{}
	d.on = false
	return nil
}

func (d *ADCDriver) ConfigChannel(unit core.ADCUnit, ch core.ADCChannel, width uint8, _ core.ADCAttenuation) error {
	pin, ok := d.ChannelToPin(unit, ch)
	if !ok {
		return errors.Errorf("adc%d channel %d has no input", unit, ch)
	}
	if width == 0 || width > adcNativeBits {
		width = adcNativeBits
	}
	in := &machine.ADC{Pin: machine.Pin(pin)}
	if err := in.Configure(machine.ADCConfig{Resolution: uint32(width)}); err != nil {
		return errors.Wrapf(err, "adc%d channel %d", unit, ch)
	}
	d.mu.Lock()
	d.inputs[ch] = in
	d.width[ch] = width
	d.mu.Unlock()
	return nil
}

func (d *ADCDriver) input(unit core.ADCUnit, ch core.ADCChannel) (*machine.ADC, uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if unit != 0 || ch >= adcPinCount || d.inputs[ch] == nil {
		return nil, 0, errors.Errorf("adc%d channel %d is not configured", unit, ch)
	}
	return d.inputs[ch], d.width[ch], nil
}

// ReadRaw scales machine's left-aligned 16-bit result down to the
// configured width
func (d *ADCDriver) ReadRaw(unit core.ADCUnit, ch core.ADCChannel) (core.ADCValue, error) {
	in, width, err := d.input(unit, ch)
	if err != nil {
		return 0, err
	}
	return core.ADCValue(in.Get() >> (16 - width)), nil
}

func (d *ADCDriver) ReadMilliVolts(unit core.ADCUnit, ch core.ADCChannel) (uint32, error) {
	in, _, err := d.input(unit, ch)
	if err != nil {
		return 0, err
	}
	raw := uint32(in.Get() >> (16 - adcNativeBits))
	return raw * adcRefMV / (1<<adcNativeBits - 1), nil
}
