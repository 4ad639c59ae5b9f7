package core

import (
	"periph.io/x/conn/v3/physic"

	"gohal/periman"
)

// SigmaDeltaChannelID identifies a sigma-delta modulator channel
type SigmaDeltaChannelID uint8

// SigmaDeltaDriver is the abstract sigma-delta modulator interface.
type SigmaDeltaDriver interface {
	ChannelCount() int

	// Configure routes ch to pin with the given modulator clock.
	// Returns the clock actually achieved.
	Configure(ch SigmaDeltaChannelID, pin periman.Pin, freq physic.Frequency) (physic.Frequency, error)

	// SetDuty sets pulse density, 0 to 255
	SetDuty(ch SigmaDeltaChannelID, duty uint8) error

	Stop(ch SigmaDeltaChannelID) error
}

var sigmaDeltaDriver SigmaDeltaDriver

// SetSigmaDeltaDriver is called by target-specific code to register its driver.
func SetSigmaDeltaDriver(d SigmaDeltaDriver) {
	sigmaDeltaDriver = d
}

// MustSigmaDelta returns the configured driver or panics if missing.
func MustSigmaDelta() SigmaDeltaDriver {
	if sigmaDeltaDriver == nil {
		panic("sigma-delta driver not configured")
	}
	return sigmaDeltaDriver
}
