// LEDC (PWM) support
// Each attached pin gets its own channel; the channel object is the pin's
// owner handle.
package core

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"

	"gohal/debug"
	"gohal/periman"
)

const ledcMaxResolution = 20

// LEDCChannel is an attached PWM output
type LEDCChannel struct {
	Pin        periman.Pin
	Channel    LEDCChannelID
	Resolution uint8

	mu     sync.Mutex
	freq   physic.Frequency
	duty   uint32
	active bool
}

// ledcChannels tracks which channels are in use
var ledcChannels struct {
	mu   sync.Mutex
	used uint64
}

func allocLEDCChannel(pin periman.Pin) (LEDCChannelID, bool) {
	d := MustLEDC()
	candidates := d.ChannelFor(pin)
	if candidates == nil {
		for i := 0; i < d.ChannelCount() && i < 64; i++ {
			candidates = append(candidates, LEDCChannelID(i))
		}
	}
	ledcChannels.mu.Lock()
	defer ledcChannels.mu.Unlock()
	for _, ch := range candidates {
		if ledcChannels.used&(1<<ch) == 0 {
			ledcChannels.used |= 1 << ch
			return ch, true
		}
	}
	return 0, false
}

func freeLEDCChannel(ch LEDCChannelID) {
	ledcChannels.mu.Lock()
	ledcChannels.used &^= 1 << ch
	ledcChannels.mu.Unlock()
}

// deinit stops the channel and returns it to the pool. Safe to call more
// than once.
func (c *LEDCChannel) deinit() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = false
	c.mu.Unlock()

	err := MustLEDC().Stop(c.Channel)
	freeLEDCChannel(c.Channel)
	return errors.Wrapf(err, "ledc channel %d: stop", c.Channel)
}

// LEDCAttach claims pin for PWM output on the first free channel.
func LEDCAttach(pin periman.Pin, freq physic.Frequency, resolution uint8) (*LEDCChannel, error) {
	if resolution == 0 || resolution > ledcMaxResolution {
		return nil, errors.Wrapf(ErrInvalidArg, "ledc: resolution %d", resolution)
	}
	if freq <= 0 {
		return nil, errors.Wrapf(ErrInvalidArg, "ledc: frequency %s", freq)
	}
	reg := MustPins()
	if !reg.PinIsValid(pin) {
		return nil, errors.Wrapf(periman.ErrInvalidPin, "ledc: pin %d", pin)
	}

	ch, ok := allocLEDCChannel(pin)
	if !ok {
		debug.Errorf("No free LEDC channel for pin %d", pin)
		return nil, errors.Wrapf(ErrNoChannel, "ledc: pin %d", pin)
	}
	c := &LEDCChannel{Pin: pin, Channel: ch, Resolution: resolution}

	configured := false
	bringUp := func() error {
		got, err := MustLEDC().Configure(ch, pin, freq, resolution)
		if err != nil {
			return err
		}
		configured = true
		c.mu.Lock()
		c.freq = got
		c.active = true
		c.mu.Unlock()
		return nil
	}
	a := reg.NewAttachment(c, instanceDeinit).Pin(pin, periman.BusTypeLEDC, -1, int8(ch))
	if err := a.Run(bringUp); err != nil {
		// once configured, rollback has already returned the channel
		if !configured {
			freeLEDCChannel(ch)
		}
		debug.Errorf("LEDC attach failed for pin %d: %v", pin, err)
		return nil, errors.Wrapf(err, "ledc: attach pin %d", pin)
	}
	debug.Verbosef("LEDC pin %d on channel %d at %s", pin, ch, c.Frequency())
	return c, nil
}

// Write sets the duty cycle
func (c *LEDCChannel) Write(duty uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return errors.Wrapf(ErrBusInactive, "ledc channel %d", c.Channel)
	}
	max := uint32(1) << c.Resolution
	if duty > max {
		duty = max
	}
	if err := MustLEDC().SetDuty(c.Channel, duty); err != nil {
		return errors.Wrapf(err, "ledc channel %d: duty", c.Channel)
	}
	c.duty = duty
	return nil
}

// WriteTone plays a 50% square wave at freq; zero silences the output.
func (c *LEDCChannel) WriteTone(freq physic.Frequency) (physic.Frequency, error) {
	if freq == 0 {
		return 0, c.Write(0)
	}
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return 0, errors.Wrapf(ErrBusInactive, "ledc channel %d", c.Channel)
	}
	c.mu.Unlock()

	got, err := MustLEDC().SetFrequency(c.Channel, freq)
	if err != nil {
		return 0, errors.Wrapf(err, "ledc channel %d: tone", c.Channel)
	}
	c.mu.Lock()
	c.freq = got
	c.mu.Unlock()
	return got, c.Write(1 << (c.Resolution - 1))
}

// Frequency returns the achieved output frequency
func (c *LEDCChannel) Frequency() physic.Frequency {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freq
}

// Duty returns the last duty written
func (c *LEDCChannel) Duty() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duty
}

// Detach releases the channel's pin
func (c *LEDCChannel) Detach() error {
	return releaseOwned(c, ownedPin{c.Pin, periman.BusTypeLEDC})
}

// LEDCChannelForPin returns the channel attached to pin, if any
func LEDCChannelForPin(pin periman.Pin) (*LEDCChannel, bool) {
	c, ok := MustPins().GetPinBus(pin, periman.BusTypeLEDC).(*LEDCChannel)
	return c, ok
}

// LEDCWrite sets the duty of the channel attached to pin
func LEDCWrite(pin periman.Pin, duty uint32) error {
	c, ok := LEDCChannelForPin(pin)
	if !ok {
		debug.Errorf("Pin %d is not attached to LEDC", pin)
		return errors.Wrapf(ErrNotOwned, "ledc: pin %d", pin)
	}
	return c.Write(duty)
}

// LEDCDetach releases pin from LEDC
func LEDCDetach(pin periman.Pin) error {
	c, ok := LEDCChannelForPin(pin)
	if !ok {
		return errors.Wrapf(ErrNotOwned, "ledc: pin %d", pin)
	}
	return c.Detach()
}
