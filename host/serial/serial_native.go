package serial

import (
	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// NativePort is a tty opened through tarm/serial
type NativePort struct {
	port   *serial.Port
	device string
}

// Open opens a native serial port
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, errors.New("serial: nil config")
	}
	if cfg.Baud <= 0 {
		return nil, errors.Errorf("serial: invalid baud rate %d", cfg.Baud)
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "serial: open %s", cfg.Device)
	}
	return &NativePort{port: port, device: cfg.Device}, nil
}

func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *NativePort) Write(b []byte) (int, error) {
	n, err := p.port.Write(b)
	return n, errors.Wrapf(err, "serial: write %s", p.device)
}

// Close closes the serial port
func (p *NativePort) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Flush discards data the driver has buffered but not transmitted or read
func (p *NativePort) Flush() error {
	return errors.Wrapf(p.port.Flush(), "serial: flush %s", p.device)
}
