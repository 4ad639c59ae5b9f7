package core

import "gohal/periman"

// USBDriver is implemented by target code for the on-chip USB PHY.
type USBDriver interface {
	// Pins returns the fixed D- and D+ pins, ok false without a USB PHY
	Pins() (dm, dp periman.Pin, ok bool)
	Enable() error
	Disable() error
	Connected() bool
}

var usbDriver USBDriver

// SetUSBDriver is called by target code to register its USB driver
func SetUSBDriver(d USBDriver) {
	usbDriver = d
}

// MustUSB returns the USB driver or panics if missing
func MustUSB() USBDriver {
	if usbDriver == nil {
		panic("USB driver not configured")
	}
	return usbDriver
}
