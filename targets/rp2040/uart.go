//go:build rp2040

package main

import (
	"machine"
	"sync"
	"time"

	"github.com/pkg/errors"

	"gohal/core"
	"gohal/periman"
)

type uartState struct {
	installed bool
	cfg       core.UARTConfig
	pins      [4]periman.Pin
}

// UARTDriver implements core.UARTDriver on machine.UART0 and UART1.
// Received bytes land in machine's ring buffer, so RxBufferSize is ignored.
type UARTDriver struct {
	mu    sync.Mutex
	ports [2]uartState
}

func NewUARTDriver() *UARTDriver {
	d := &UARTDriver{}
	for i := range d.ports {
		d.ports[i].pins = [4]periman.Pin{periman.NoPin, periman.NoPin, periman.NoPin, periman.NoPin}
	}
	return d
}

func (d *UARTDriver) PortCount() int { return 2 }

func uartController(port core.UARTPortID) (*machine.UART, error) {
	switch port {
	case 0:
		return machine.UART0, nil
	case 1:
		return machine.UART1, nil
	}
	return nil, errors.Errorf("uart%d does not exist", port)
}

func parity(p core.UARTParity) machine.UARTParity {
	switch p {
	case core.UARTParityEven:
		return machine.ParityEven
	case core.UARTParityOdd:
		return machine.ParityOdd
	}
	return machine.ParityNone
}

// apply configures the port with every routed line
func (d *UARTDriver) apply(port core.UARTPortID, s *uartState) error {
	u, err := uartController(port)
	if err != nil {
		return err
	}
	err = u.Configure(machine.UARTConfig{
		BaudRate: s.cfg.Baud,
		RX:       machinePin(s.pins[core.UARTLineRX]),
		TX:       machinePin(s.pins[core.UARTLineTX]),
		CTS:      machinePin(s.pins[core.UARTLineCTS]),
		RTS:      machinePin(s.pins[core.UARTLineRTS]),
	})
	if err != nil {
		return errors.Wrapf(err, "uart%d: configure", port)
	}
	dataBits, stopBits := s.cfg.DataBits, s.cfg.StopBits
	if dataBits == 0 {
		dataBits = 8
	}
	if stopBits == 0 {
		stopBits = 1
	}
	return errors.Wrapf(u.SetFormat(dataBits, stopBits, parity(s.cfg.Parity)), "uart%d: format", port)
}

func (d *UARTDriver) Install(port core.UARTPortID, cfg core.UARTConfig) error {
	if _, err := uartController(port); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.ports[port]
	s.installed = true
	s.cfg = cfg
	return nil
}

func (d *UARTDriver) Uninstall(port core.UARTPortID) error {
	if _, err := uartController(port); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.ports[port]
	for l, p := range s.pins {
		if p != periman.NoPin {
			machine.Pin(p).Configure(machine.PinConfig{Mode: machine.PinInput})
			s.pins[l] = periman.NoPin
		}
	}
	s.installed = false
	return nil
}

func (d *UARTDriver) Configure(port core.UARTPortID, cfg core.UARTConfig) error {
	if _, err := uartController(port); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.ports[port]
	s.cfg = cfg
	return d.apply(port, s)
}

func (d *UARTDriver) RouteLine(port core.UARTPortID, line core.UARTLine, pin periman.Pin) error {
	if _, err := uartController(port); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.ports[port]
	if !s.installed {
		return errors.Errorf("uart%d is not installed", port)
	}
	s.pins[line] = pin
	return d.apply(port, s)
}

func (d *UARTDriver) UnrouteLine(port core.UARTPortID, line core.UARTLine, pin periman.Pin) error {
	if _, err := uartController(port); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.ports[port]
	if s.pins[line] != pin {
		return nil
	}
	s.pins[line] = periman.NoPin
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinInput})
	return d.apply(port, s)
}

func (d *UARTDriver) Write(port core.UARTPortID, p []byte) (int, error) {
	u, err := uartController(port)
	if err != nil {
		return 0, err
	}
	return u.Write(p)
}

// Read polls the ring buffer until something arrives or timeout passes
func (d *UARTDriver) Read(port core.UARTPortID, p []byte, timeout time.Duration) (int, error) {
	u, err := uartController(port)
	if err != nil {
		return 0, err
	}
	deadline := time.Now().Add(timeout)
	for u.Buffered() == 0 {
		if !time.Now().Before(deadline) {
			return 0, nil
		}
		time.Sleep(100 * time.Microsecond)
	}
	return u.Read(p)
}
