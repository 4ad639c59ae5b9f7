package core

import (
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"gohal/periman"
)

// SPIBusID identifies a hardware SPI controller
type SPIBusID uint8

// SPILine is one signal of an SPI bus
type SPILine uint8

const (
	SPILineSCK SPILine = iota
	SPILineMISO
	SPILineMOSI
	SPILineSS
	spiLineCount
)

var spiLineNames = [spiLineCount]string{"SCK", "MISO", "MOSI", "SS"}

func (l SPILine) String() string {
	if l < spiLineCount {
		return spiLineNames[l]
	}
	return "UNKNOWN"
}

func (l SPILine) busType() periman.BusType {
	return periman.BusTypeSPIMasterSCK + periman.BusType(l)
}

// SPIConfig holds the clock settings of a bus. Mode uses periph's encoding,
// so spi.LSBFirst may be or'ed in.
type SPIConfig struct {
	Frequency physic.Frequency
	Mode      spi.Mode
}

// SPIDriver is implemented by target code to control SPI controllers.
type SPIDriver interface {
	BusCount() int

	// Start powers the controller up without routing any pin
	Start(bus SPIBusID, cfg SPIConfig) error
	Stop(bus SPIBusID) error
	Configure(bus SPIBusID, cfg SPIConfig) error

	// AttachLine routes one signal to pin; DetachLine unroutes it
	AttachLine(bus SPIBusID, line SPILine, pin periman.Pin) error
	DetachLine(bus SPIBusID, line SPILine, pin periman.Pin) error

	// Transfer clocks out w while reading into r. Either may be nil.
	Transfer(bus SPIBusID, w, r []byte) error
}

var spiDriver SPIDriver

// SetSPIDriver is called by target code to register its SPI driver
func SetSPIDriver(d SPIDriver) {
	spiDriver = d
}

// MustSPI returns the SPI driver or panics if missing
func MustSPI() SPIDriver {
	if spiDriver == nil {
		panic("SPI driver not configured")
	}
	return spiDriver
}
