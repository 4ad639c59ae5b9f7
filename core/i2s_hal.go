package core

import (
	"periph.io/x/conn/v3/physic"

	"gohal/periman"
)

// I2SPort identifies an I2S controller
type I2SPort uint8

// I2SMode selects how the controller frames data and which lines it uses
type I2SMode uint8

const (
	I2SModeStd I2SMode = iota
	I2SModeTDM
	I2SModePDMTx
	I2SModePDMRx
)

func (m I2SMode) String() string {
	switch m {
	case I2SModeStd:
		return "STD"
	case I2SModeTDM:
		return "TDM"
	case I2SModePDMTx:
		return "PDM TX"
	case I2SModePDMRx:
		return "PDM RX"
	}
	return "unknown"
}

// I2SSlotMode is the number of audio slots per frame
type I2SSlotMode uint8

const (
	I2SMono I2SSlotMode = iota + 1
	I2SStereo
)

// I2SPins are the lines of an STD or TDM controller. MCLK and one of
// DOut/DIn may be NoPin.
type I2SPins struct {
	MCLK, BCLK, WS periman.Pin
	DOut, DIn      periman.Pin
}

// I2SPDMPins are the lines of a PDM controller. A transmitter uses
// Data[0] and Data[1], a receiver up to all four.
type I2SPDMPins struct {
	CLK  periman.Pin
	Data [4]periman.Pin
}

// I2SConfig is what the target needs to create the controller's channels
type I2SConfig struct {
	Mode       I2SMode
	SampleRate physic.Frequency
	Bits       uint8
	Slot       I2SSlotMode
	TX, RX     bool
	Pins       I2SPins
	PDM        I2SPDMPins
}

// I2SDriver is implemented by target code to drive the I2S controllers.
type I2SDriver interface {
	PortCount() int
	// Init creates and enables the TX and/or RX channels cfg asks for
	Init(port I2SPort, cfg I2SConfig) error
	// Deinit disables and deletes every channel of the port
	Deinit(port I2SPort) error
	Write(port I2SPort, buf []byte) (int, error)
	Read(port I2SPort, buf []byte) (int, error)
}

var i2sDriver I2SDriver

// SetI2SDriver is called by target code to register its I2S driver
func SetI2SDriver(d I2SDriver) {
	i2sDriver = d
}

// MustI2S returns the I2S driver or panics if missing
func MustI2S() I2SDriver {
	if i2sDriver == nil {
		panic("I2S driver not configured")
	}
	return i2sDriver
}
