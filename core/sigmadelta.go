// Sigma-delta modulated output
package core

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"

	"gohal/debug"
	"gohal/periman"
)

// SigmaDeltaChannel is an attached modulator output
type SigmaDeltaChannel struct {
	Pin     periman.Pin
	Channel SigmaDeltaChannelID

	mu     sync.Mutex
	freq   physic.Frequency
	duty   uint8
	active bool
}

var sigmaDeltaChannels struct {
	mu   sync.Mutex
	used uint64
}

func allocSigmaDeltaChannel() (SigmaDeltaChannelID, bool) {
	n := MustSigmaDelta().ChannelCount()
	sigmaDeltaChannels.mu.Lock()
	defer sigmaDeltaChannels.mu.Unlock()
	for i := 0; i < n && i < 64; i++ {
		if sigmaDeltaChannels.used&(1<<uint(i)) == 0 {
			sigmaDeltaChannels.used |= 1 << uint(i)
			return SigmaDeltaChannelID(i), true
		}
	}
	return 0, false
}

func freeSigmaDeltaChannel(ch SigmaDeltaChannelID) {
	sigmaDeltaChannels.mu.Lock()
	sigmaDeltaChannels.used &^= 1 << ch
	sigmaDeltaChannels.mu.Unlock()
}

func (c *SigmaDeltaChannel) deinit() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = false
	c.mu.Unlock()

	err := MustSigmaDelta().Stop(c.Channel)
	freeSigmaDeltaChannel(c.Channel)
	return errors.Wrapf(err, "sigma-delta channel %d: stop", c.Channel)
}

// SigmaDeltaAttach claims pin for modulated output on the first free channel.
func SigmaDeltaAttach(pin periman.Pin, freq physic.Frequency) (*SigmaDeltaChannel, error) {
	if freq <= 0 {
		return nil, errors.Wrapf(ErrInvalidArg, "sigma-delta: frequency %s", freq)
	}
	reg := MustPins()
	if !reg.PinIsValid(pin) {
		return nil, errors.Wrapf(periman.ErrInvalidPin, "sigma-delta: pin %d", pin)
	}
	ch, ok := allocSigmaDeltaChannel()
	if !ok {
		debug.Errorf("No free sigma-delta channel for pin %d", pin)
		return nil, errors.Wrapf(ErrNoChannel, "sigma-delta: pin %d", pin)
	}
	c := &SigmaDeltaChannel{Pin: pin, Channel: ch}

	configured := false
	bringUp := func() error {
		got, err := MustSigmaDelta().Configure(ch, pin, freq)
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
	a := reg.NewAttachment(c, instanceDeinit).Pin(pin, periman.BusTypeSigmaDelta, -1, int8(ch))
	if err := a.Run(bringUp); err != nil {
		if !configured {
			freeSigmaDeltaChannel(ch)
		}
		debug.Errorf("Sigma-delta attach failed for pin %d: %v", pin, err)
		return nil, errors.Wrapf(err, "sigma-delta: attach pin %d", pin)
	}
	return c, nil
}

// Write sets the pulse density
func (c *SigmaDeltaChannel) Write(duty uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return errors.Wrapf(ErrBusInactive, "sigma-delta channel %d", c.Channel)
	}
	if err := MustSigmaDelta().SetDuty(c.Channel, duty); err != nil {
		return errors.Wrapf(err, "sigma-delta channel %d: duty", c.Channel)
	}
	c.duty = duty
	return nil
}

// Duty returns the last density written
func (c *SigmaDeltaChannel) Duty() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duty
}

// Frequency returns the achieved modulator clock
func (c *SigmaDeltaChannel) Frequency() physic.Frequency {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freq
}

// Detach releases the channel's pin
func (c *SigmaDeltaChannel) Detach() error {
	return releaseOwned(c, ownedPin{c.Pin, periman.BusTypeSigmaDelta})
}
