//go:build rp2040

package main

import (
	"machine"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"

	"gohal/core"
	"gohal/periman"
)

// Each of the eight PWM slices has outputs A and B. GPIO n is wired to
// slice (n>>1)&7, output n&1, so every pin has exactly one channel:
// channel = slice*2 + output.
const (
	pwmSlices   = 8
	pwmChannels = pwmSlices * 2
)

// pwmGroup abstracts over machine's unexported slice type
type pwmGroup interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	SetPeriod(period uint64) error
	Top() uint32
	Set(channel uint8, value uint32)
}

var pwmGroups = [pwmSlices]pwmGroup{
	machine.PWM0, machine.PWM1, machine.PWM2, machine.PWM3,
	machine.PWM4, machine.PWM5, machine.PWM6, machine.PWM7,
}

type pwmChannel struct {
	pin        periman.Pin
	output     uint8
	resolution uint8
}

// LEDCDriver implements core.LEDCDriver on the PWM slices. The two
// channels of a slice share its frequency; a change through one moves both.
type LEDCDriver struct {
	mu       sync.Mutex
	channels [pwmChannels]*pwmChannel
}

func NewLEDCDriver() *LEDCDriver {
	return &LEDCDriver{}
}

func (d *LEDCDriver) ChannelCount() int { return pwmChannels }

func (d *LEDCDriver) ChannelFor(pin periman.Pin) []core.LEDCChannelID {
	slice := (uint8(pin) >> 1) & 7
	return []core.LEDCChannelID{core.LEDCChannelID(slice*2 + uint8(pin)&1)}
}

// nanoseconds of one cycle
func periodNS(freq physic.Frequency) (uint64, error) {
	if freq <= 0 {
		return 0, errors.Errorf("pwm frequency %s out of range", freq)
	}
	return uint64(freq.Period().Nanoseconds()), nil
}

func achieved(period uint64) physic.Frequency {
	return physic.Frequency(uint64(physic.Hertz) * 1000000000 / period)
}

func (d *LEDCDriver) Configure(ch core.LEDCChannelID, pin periman.Pin, freq physic.Frequency, resolution uint8) (physic.Frequency, error) {
	if want := d.ChannelFor(pin)[0]; want != ch {
		return 0, errors.Errorf("pwm channel %d cannot drive pin %d", ch, pin)
	}
	period, err := periodNS(freq)
	if err != nil {
		return 0, err
	}
	g := pwmGroups[ch/2]
	if err := g.Configure(machine.PWMConfig{Period: period}); err != nil {
		return 0, errors.Wrapf(err, "pwm slice %d", ch/2)
	}
	out, err := g.Channel(machine.Pin(pin))
	if err != nil {
		return 0, errors.Wrapf(err, "pwm pin %d", pin)
	}
	g.Set(out, 0)
	d.mu.Lock()
	d.channels[ch] = &pwmChannel{pin: pin, output: out, resolution: resolution}
	d.mu.Unlock()
	return achieved(period), nil
}

func (d *LEDCDriver) channel(ch core.LEDCChannelID) (*pwmChannel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(ch) >= pwmChannels || d.channels[ch] == nil {
		return nil, errors.Errorf("pwm channel %d is not configured", ch)
	}
	return d.channels[ch], nil
}

// SetDuty maps duty (0 .. 1<<resolution) onto the slice's counter top
func (d *LEDCDriver) SetDuty(ch core.LEDCChannelID, duty uint32) error {
	c, err := d.channel(ch)
	if err != nil {
		return err
	}
	g := pwmGroups[ch/2]
	full := uint64(1) << c.resolution
	if uint64(duty) > full {
		duty = uint32(full)
	}
	g.Set(c.output, uint32(uint64(duty)*uint64(g.Top())/full))
	return nil
}

func (d *LEDCDriver) SetFrequency(ch core.LEDCChannelID, freq physic.Frequency) (physic.Frequency, error) {
	if _, err := d.channel(ch); err != nil {
		return 0, err
	}
	period, err := periodNS(freq)
	if err != nil {
		return 0, err
	}
	if err := pwmGroups[ch/2].SetPeriod(period); err != nil {
		return 0, errors.Wrapf(err, "pwm slice %d", ch/2)
	}
	return achieved(period), nil
}

// Stop holds the output low and returns the pin to input
func (d *LEDCDriver) Stop(ch core.LEDCChannelID) error {
	c, err := d.channel(ch)
	if err != nil {
		return err
	}
	pwmGroups[ch/2].Set(c.output, 0)
	machine.Pin(c.pin).Configure(machine.PinConfig{Mode: machine.PinInput})
	d.mu.Lock()
	d.channels[ch] = nil
	d.mu.Unlock()
	return nil
}
