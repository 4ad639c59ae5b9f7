package serial

import (
	"io"
	"time"
)

// Port is a serial link to the board. The host tool only needs a stream;
// tests substitute a net.Pipe.
type Port interface {
	io.ReadWriteCloser

	// Flush discards buffered input and output
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	// Baud rate. USB CDC consoles ignore it.
	Baud int

	// Read timeout (0 = blocking)
	ReadTimeout time.Duration
}

// DefaultBaud matches the firmware's console UART
const DefaultBaud = 115200

// DefaultConfig returns the configuration for a board console on device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100 * time.Millisecond,
	}
}
