package linux

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"gohal/core"
	"gohal/periman"
)

type pwmOutput struct {
	pin        gpio.PinIO
	freq       physic.Frequency
	resolution uint8
}

// LEDCDriver implements core.LEDCDriver with periph's PWM. Channel n is
// GPIO n; whether the pin can actually do PWM is up to the host driver.
type LEDCDriver struct {
	lookup PinLookup
	count  int

	mu      sync.Mutex
	outputs map[core.LEDCChannelID]*pwmOutput
}

func NewLEDCDriver(lookup PinLookup, count int) *LEDCDriver {
	return &LEDCDriver{lookup: lookup, count: count, outputs: make(map[core.LEDCChannelID]*pwmOutput)}
}

func (d *LEDCDriver) ChannelCount() int { return d.count }

func (d *LEDCDriver) ChannelFor(pin periman.Pin) []core.LEDCChannelID {
	if int(pin) >= d.count {
		return []core.LEDCChannelID{}
	}
	return []core.LEDCChannelID{core.LEDCChannelID(pin)}
}

func (d *LEDCDriver) Configure(ch core.LEDCChannelID, pin periman.Pin, freq physic.Frequency, resolution uint8) (physic.Frequency, error) {
	if core.LEDCChannelID(pin) != ch {
		return 0, errors.Errorf("pwm channel %d cannot drive GPIO%d", ch, pin)
	}
	p := d.lookup(pin)
	if p == nil {
		return 0, errors.Errorf("GPIO%d not found", pin)
	}
	if err := p.PWM(0, freq); err != nil {
		return 0, errors.Wrapf(err, "GPIO%d: pwm", pin)
	}
	d.mu.Lock()
	d.outputs[ch] = &pwmOutput{pin: p, freq: freq, resolution: resolution}
	d.mu.Unlock()
	return freq, nil
}

func (d *LEDCDriver) output(ch core.LEDCChannelID) (*pwmOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.outputs[ch]
	if !ok {
		return nil, errors.Errorf("pwm channel %d is not configured", ch)
	}
	return o, nil
}

// duty scales 0 .. 1<<resolution onto periph's 0 .. gpio.DutyMax
func duty(v uint32, resolution uint8) gpio.Duty {
	full := uint64(1) << resolution
	if uint64(v) >= full {
		return gpio.DutyMax
	}
	return gpio.Duty(uint64(v) * uint64(gpio.DutyMax) / full)
}

func (d *LEDCDriver) SetDuty(ch core.LEDCChannelID, v uint32) error {
	o, err := d.output(ch)
	if err != nil {
		return err
	}
	return o.pin.PWM(duty(v, o.resolution), o.freq)
}

// SetFrequency restarts the output at freq with zero duty
func (d *LEDCDriver) SetFrequency(ch core.LEDCChannelID, freq physic.Frequency) (physic.Frequency, error) {
	o, err := d.output(ch)
	if err != nil {
		return 0, err
	}
	if err := o.pin.PWM(0, freq); err != nil {
		return 0, err
	}
	d.mu.Lock()
	o.freq = freq
	d.mu.Unlock()
	return freq, nil
}

func (d *LEDCDriver) Stop(ch core.LEDCChannelID) error {
	o, err := d.output(ch)
	if err != nil {
		return err
	}
	d.mu.Lock()
	delete(d.outputs, ch)
	d.mu.Unlock()
	return o.pin.Halt()
}
