// Package linux drives the pin ownership core from a Linux single-board
// computer through periph.io. Controllers are routed by the device tree, so
// the drivers only check that a request names the pins a controller is
// wired to.
package linux

import (
	"strconv"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"gohal/core"
	"gohal/periman"
)

// PinLookup resolves a header pin number to a periph pin
type PinLookup func(periman.Pin) gpio.PinIO

// ByNumber finds pins in periph's registry by their GPIO number
func ByNumber(pin periman.Pin) gpio.PinIO {
	return gpioreg.ByName(strconv.Itoa(int(pin)))
}

// Raspberry Pi routing of the controllers exposed by the default overlays
var (
	PiI2CPins = map[core.I2CBusID][2]periman.Pin{
		0: {0, 1},
		1: {2, 3},
	}
	PiSPIPins = map[core.SPIBusID][4]periman.Pin{
		0: {11, 9, 10, 8},
		1: {21, 19, 20, 18},
	}
	PiUARTPins = map[core.UARTPortID][4]periman.Pin{
		0: {15, 14, 16, 17},
	}
	PiUARTDevices = map[core.UARTPortID]string{
		0: "/dev/serial0",
	}
)

// checkRoute fails when pin is not where the controller's line is wired.
// A controller without a routing entry accepts any pin.
func checkRoute(what string, want, pin periman.Pin) error {
	if want == periman.NoPin || pin == periman.NoPin || want == pin {
		return nil
	}
	return errors.Errorf("%s is wired to GPIO%d, not GPIO%d", what, want, pin)
}

// Init loads periph's host drivers and installs the Linux drivers into core
func Init() error {
	if _, err := host.Init(); err != nil {
		return errors.Wrap(err, "periph host init")
	}
	core.SetGPIODriver(NewGPIODriver(ByNumber))
	core.SetLEDCDriver(NewLEDCDriver(ByNumber, periman.BCM2835.PinCount))
	core.SetI2CDriver(NewI2CDriver(PiI2CPins))
	core.SetSPIDriver(NewSPIDriver(PiSPIPins))
	core.SetUARTDriver(NewUARTDriver(PiUARTDevices, PiUARTPins))
	return nil
}
