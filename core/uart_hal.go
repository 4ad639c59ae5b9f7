package core

import (
	"time"

	"gohal/periman"
)

// UARTPortID identifies a hardware UART
type UARTPortID uint8

// UARTLine is one signal of a UART
type UARTLine uint8

const (
	UARTLineRX UARTLine = iota
	UARTLineTX
	UARTLineCTS
	UARTLineRTS
	uartLineCount
)

var uartLineNames = [uartLineCount]string{"RX", "TX", "CTS", "RTS"}

func (l UARTLine) String() string {
	if l < uartLineCount {
		return uartLineNames[l]
	}
	return "UNKNOWN"
}

func (l UARTLine) busType() periman.BusType {
	return periman.BusTypeUARTRx + periman.BusType(l)
}

// UARTParity selects the parity bit
type UARTParity uint8

const (
	UARTParityNone UARTParity = iota
	UARTParityEven
	UARTParityOdd
)

// UARTConfig is the frame format of a port
type UARTConfig struct {
	Baud     uint32
	DataBits uint8 // 5-8, zero means 8
	Parity   UARTParity
	StopBits uint8 // 1 or 2, zero means 1
	// RxBufferSize is the driver's receive buffer in bytes, zero for the
	// driver default
	RxBufferSize int
}

// UARTDriver is implemented by target code to control UART ports.
type UARTDriver interface {
	PortCount() int

	// Install sets up the port without routing any pin
	Install(port UARTPortID, cfg UARTConfig) error
	Uninstall(port UARTPortID) error
	Configure(port UARTPortID, cfg UARTConfig) error

	RouteLine(port UARTPortID, line UARTLine, pin periman.Pin) error
	UnrouteLine(port UARTPortID, line UARTLine, pin periman.Pin) error

	Write(port UARTPortID, p []byte) (int, error)
	// Read returns what arrived within timeout, possibly nothing
	Read(port UARTPortID, p []byte, timeout time.Duration) (int, error)
}

var uartDriver UARTDriver

// SetUARTDriver is called by target code to register its UART driver
func SetUARTDriver(d UARTDriver) {
	uartDriver = d
}

// MustUART returns the UART driver or panics if missing
func MustUART() UARTDriver {
	if uartDriver == nil {
		panic("UART driver not configured")
	}
	return uartDriver
}
