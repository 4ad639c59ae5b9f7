package core

import (
	"time"

	"periph.io/x/conn/v3/physic"

	"gohal/periman"
)

// ADCUnit identifies one ADC converter (ADC1, ADC2, ...).
type ADCUnit uint8

// ADCChannel identifies an input channel within a unit.
type ADCChannel uint8

// ADCValue is a raw conversion result at the configured width.
type ADCValue uint16

// ADCAttenuation selects the input range of a channel
type ADCAttenuation uint8

const (
	ADCAtten0dB ADCAttenuation = iota
	ADCAtten2_5dB
	ADCAtten6dB
	ADCAtten11dB
)

// ADCDriver is the abstract one-shot ADC interface that core code uses.
type ADCDriver interface {
	// PinToChannel maps a GPIO to its ADC unit and channel.
	// ok is false if the pin has no analog function.
	PinToChannel(pin periman.Pin) (unit ADCUnit, ch ADCChannel, ok bool)

	// ChannelToPin is the inverse of PinToChannel
	ChannelToPin(unit ADCUnit, ch ADCChannel) (periman.Pin, bool)

	// ChannelCount returns the number of channels on a unit
	ChannelCount(unit ADCUnit) int

	// NewUnit powers up a converter for one-shot reads.
	NewUnit(unit ADCUnit) error

	// DeleteUnit powers a converter down.
	DeleteUnit(unit ADCUnit) error

	// ConfigChannel sets width (bits) and attenuation of one channel
	ConfigChannel(unit ADCUnit, ch ADCChannel, width uint8, atten ADCAttenuation) error

	// ReadRaw performs a one-shot conversion
	ReadRaw(unit ADCUnit, ch ADCChannel) (ADCValue, error)

	// ReadMilliVolts performs a calibrated conversion
	ReadMilliVolts(unit ADCUnit, ch ADCChannel) (uint32, error)
}

// ADCSample is one continuous-mode conversion
type ADCSample struct {
	Unit    ADCUnit
	Channel ADCChannel
	Value   ADCValue
}

// ADCContinuousConfig configures continuous (DMA) sampling
type ADCContinuousConfig struct {
	// SampleRate is the total conversion rate across all channels
	SampleRate physic.Frequency
	// ConversionsPerPin is averaged into one result per pin
	ConversionsPerPin int
	Width             uint8
	Atten             ADCAttenuation
}

// ADCContinuousDriver is the abstract continuous ADC interface.
type ADCContinuousDriver interface {
	// Start begins sampling the listed channels
	Start(channels []ADCSample, cfg ADCContinuousConfig) error

	// Read fills buf with conversions, waiting at most timeout.
	Read(buf []ADCSample, timeout time.Duration) (int, error)

	// Stop ends sampling and releases the DMA engine
	Stop() error
}

// Global singletons used by core code.
var (
	adcDriver     ADCDriver
	adcContDriver ADCContinuousDriver
)

// SetADCDriver is called by target-specific code to register its driver.
func SetADCDriver(d ADCDriver) {
	adcDriver = d
}

// MustADC returns the configured driver or panics if missing.
func MustADC() ADCDriver {
	if adcDriver == nil {
		panic("ADC driver not configured")
	}
	return adcDriver
}

// SetADCContinuousDriver registers the continuous-mode driver.
func SetADCContinuousDriver(d ADCContinuousDriver) {
	adcContDriver = d
}

// MustADCContinuous returns the continuous driver or panics if missing.
func MustADCContinuous() ADCContinuousDriver {
	if adcContDriver == nil {
		panic("ADC continuous driver not configured")
	}
	return adcContDriver
}
