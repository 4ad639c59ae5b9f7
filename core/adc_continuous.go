package core

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"gohal/debug"
	"gohal/periman"
)

// ADCResult is the averaged reading of one pin
type ADCResult struct {
	Pin     periman.Pin
	Channel ADCChannel
	Raw     ADCValue
}

// ADCContinuous samples several pins through the DMA engine.
// Only one instance can run at a time.
type ADCContinuous struct {
	opMu sync.Mutex

	mu      sync.Mutex
	running bool
	pins    []periman.Pin
	chans   []ADCSample
	cfg     ADCContinuousConfig
	att     *periman.Attachment
}

var adcCont = &ADCContinuous{}

// ADCContinuousInstance returns the continuous sampler
func ADCContinuousInstance() *ADCContinuous {
	return adcCont
}

// deinit stops sampling. Clearing any one of the pins runs it; it then
// releases the rest.
func (c *ADCContinuous) deinit() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	pins := c.pins
	c.mu.Unlock()

	err := MustADCContinuous().Stop()
	owned := make([]ownedPin, len(pins))
	for i, p := range pins {
		owned[i] = ownedPin{p, periman.BusTypeADCCont}
	}
	if e := releaseOwned(c, owned...); e != nil && err == nil {
		err = e
	}
	return errors.Wrap(err, "adc continuous: stop")
}

// Start claims pins and begins sampling them.
func (c *ADCContinuous) Start(pins []periman.Pin, cfg ADCContinuousConfig) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if len(pins) == 0 {
		return errors.Wrap(ErrInvalidArg, "adc continuous: no pins")
	}
	if cfg.ConversionsPerPin <= 0 {
		cfg.ConversionsPerPin = 1
	}
	if cfg.Width == 0 {
		cfg.Width = adcDefaultWidth
	}

	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running {
		return errors.Wrap(ErrBusActive, "adc continuous")
	}

	d := MustADC()
	chans := make([]ADCSample, 0, len(pins))
	a := MustPins().NewAttachment(c, instanceDeinit)
	for _, p := range pins {
		unit, ch, ok := d.PinToChannel(p)
		if !ok {
			return errors.Wrapf(ErrNotCapable, "adc continuous: pin %d", p)
		}
		chans = append(chans, ADCSample{Unit: unit, Channel: ch})
		a.Pin(p, periman.BusTypeADCCont, int8(unit), int8(ch))
	}

	c.mu.Lock()
	c.pins = append([]periman.Pin(nil), pins...)
	c.chans = chans
	c.cfg = cfg
	c.mu.Unlock()

	err := a.Run(func() error {
		if err := MustADCContinuous().Start(chans, cfg); err != nil {
			return err
		}
		c.mu.Lock()
		c.running = true
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		debug.Errorf("ADC continuous start failed: %v", err)
		return errors.Wrap(err, "adc continuous: start")
	}
	c.att = a
	return nil
}

// Read waits for one batch of conversions and returns the per-pin averages
func (c *ADCContinuous) Read(timeout time.Duration) ([]ADCResult, error) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil, errors.Wrap(ErrBusInactive, "adc continuous")
	}
	pins := c.pins
	chans := c.chans
	per := c.cfg.ConversionsPerPin
	c.mu.Unlock()

	buf := make([]ADCSample, len(chans)*per)
	n, err := MustADCContinuous().Read(buf, timeout)
	if err != nil {
		return nil, errors.Wrap(err, "adc continuous: read")
	}

	sums := make([]uint32, len(chans))
	counts := make([]uint32, len(chans))
	for _, s := range buf[:n] {
		for i, ch := range chans {
			if ch.Unit == s.Unit && ch.Channel == s.Channel {
				sums[i] += uint32(s.Value)
				counts[i]++
				break
			}
		}
	}
	out := make([]ADCResult, len(chans))
	for i := range chans {
		out[i] = ADCResult{Pin: pins[i], Channel: chans[i].Channel}
		if counts[i] > 0 {
			out[i].Raw = ADCValue(sums[i] / counts[i])
		}
	}
	return out, nil
}

// Stop ends sampling and releases every pin
func (c *ADCContinuous) Stop() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.att == nil {
		return nil
	}
	err := c.att.Detach()
	c.att = nil
	return err
}

// Running reports whether sampling is active
func (c *ADCContinuous) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// StartADCContinuous starts the shared sampler on pins
func StartADCContinuous(pins []periman.Pin, cfg ADCContinuousConfig) (*ADCContinuous, error) {
	c := ADCContinuousInstance()
	if err := c.Start(pins, cfg); err != nil {
		return nil, err
	}
	return c, nil
}
