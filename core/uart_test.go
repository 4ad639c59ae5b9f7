package core

import (
	"errors"
	"io"
	"testing"

	"gohal/periman"
)

// UARTPort is used as a plain stream by the host link
var _ io.ReadWriter = (*UARTPort)(nil)

func TestUARTBeginEnd(t *testing.T) {
	m := setupTest(t)

	u, err := UART(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Begin(UARTConfig{}, 16, 17, periman.NoPin, periman.NoPin); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	cfg := u.Config()
	if cfg.Baud != UARTDefaultBaud || cfg.DataBits != 8 || cfg.StopBits != 1 {
		t.Errorf("Expected 115200 8N1, got %+v", cfg)
	}
	if ownerType(16) != periman.BusTypeUARTRx || ownerType(17) != periman.BusTypeUARTTx {
		t.Errorf("Unexpected owners %s/%s", ownerType(16), ownerType(17))
	}

	// Same pins with a new config reconfigures in place
	if err := u.Begin(UARTConfig{Baud: 9600}, 16, 17, periman.NoPin, periman.NoPin); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if u.Config().Baud != 9600 || m.count("uart.Install") != 1 {
		t.Errorf("Expected reconfigure without reinstall, baud %d installs %d", u.Config().Baud, m.count("uart.Install"))
	}
	if err := u.Begin(UARTConfig{}, 4, 5, periman.NoPin, periman.NoPin); !errors.Is(err, ErrBusActive) {
		t.Errorf("Expected ErrBusActive, got %v", err)
	}

	if err := u.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if u.Running() {
		t.Error("Port running after End")
	}
	expectQuiescent(t, m)
}

func TestUARTConfigValidation(t *testing.T) {
	setupTest(t)

	u, _ := UART(0)
	tests := []struct {
		name string
		cfg  UARTConfig
	}{
		{"4 data bits", UARTConfig{DataBits: 4}},
		{"9 data bits", UARTConfig{DataBits: 9}},
		{"3 stop bits", UARTConfig{StopBits: 3}},
		{"bad parity", UARTConfig{Parity: 7}},
	}
	for _, tt := range tests {
		if err := u.Begin(tt.cfg, 3, 1, periman.NoPin, periman.NoPin); !errors.Is(err, ErrInvalidArg) {
			t.Errorf("%s: expected ErrInvalidArg, got %v", tt.name, err)
		}
	}
	if err := u.Begin(UARTConfig{}, periman.NoPin, periman.NoPin, 18, 19); !errors.Is(err, ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg without rx and tx, got %v", err)
	}
	if _, err := UART(3); !errors.Is(err, ErrInvalidBusNum) {
		t.Errorf("Expected ErrInvalidBusNum, got %v", err)
	}
}

func TestUARTLosingLastLineUninstalls(t *testing.T) {
	m := setupTest(t)

	u, _ := UART(1)
	if err := u.Begin(UARTConfig{}, 16, 17, periman.NoPin, periman.NoPin); err != nil {
		t.Fatal(err)
	}

	// Losing RX leaves a transmit-only port
	if err := SetPinMode(16, Input); err != nil {
		t.Fatal(err)
	}
	if !u.Running() {
		t.Fatal("Port uninstalled while TX is still routed")
	}
	if _, err := u.Read(make([]byte, 4)); !errors.Is(err, ErrBusInactive) {
		t.Errorf("Expected ErrBusInactive reading without RX, got %v", err)
	}
	if _, err := u.Write([]byte("ok")); err != nil {
		t.Errorf("Write after losing RX: %v", err)
	}

	if err := SetPinMode(17, Input); err != nil {
		t.Fatal(err)
	}
	if u.Running() || m.isUp("uart1") {
		t.Error("Port still installed with no lines")
	}
}

func TestUARTSetPins(t *testing.T) {
	m := setupTest(t)

	u, _ := UART(1)
	if err := u.SetPins(4, 5, periman.NoPin, periman.NoPin); !errors.Is(err, ErrBusInactive) {
		t.Errorf("Expected ErrBusInactive, got %v", err)
	}
	if err := u.Begin(UARTConfig{}, 16, 17, periman.NoPin, periman.NoPin); err != nil {
		t.Fatal(err)
	}

	// Move TX, add RTS, leave RX alone
	if err := u.SetPins(periman.NoPin, 4, periman.NoPin, 18); err != nil {
		t.Fatalf("SetPins: %v", err)
	}
	if u.Pin(UARTLineTX) != 4 || u.Pin(UARTLineRTS) != 18 || u.Pin(UARTLineRX) != 16 {
		t.Errorf("Unexpected pins rx=%d tx=%d rts=%d", u.Pin(UARTLineRX), u.Pin(UARTLineTX), u.Pin(UARTLineRTS))
	}
	if ownerType(17) != periman.BusTypeInit {
		t.Errorf("Old TX still owned by %s", ownerType(17))
	}
	if ownerType(4) != periman.BusTypeUARTTx || ownerType(18) != periman.BusTypeUARTRts {
		t.Errorf("New pins owned by %s/%s", ownerType(4), ownerType(18))
	}
	if !m.isUp("uart1.TX") || !u.Running() {
		t.Error("TX not routed after move")
	}

	// Moving a line onto a pin of another port takes it over
	other, _ := UART(2)
	if err := other.Begin(UARTConfig{}, 25, 26, periman.NoPin, periman.NoPin); err != nil {
		t.Fatal(err)
	}
	if err := u.SetPins(periman.NoPin, 26, periman.NoPin, periman.NoPin); err != nil {
		t.Fatal(err)
	}
	if other.Pin(UARTLineTX) != periman.NoPin {
		t.Errorf("uart2 TX still on %d", other.Pin(UARTLineTX))
	}
	if !other.Running() {
		t.Error("uart2 uninstalled although RX is still routed")
	}

	if err := u.End(); err != nil {
		t.Fatal(err)
	}
	if err := other.End(); err != nil {
		t.Fatal(err)
	}
	expectQuiescent(t, m)
}

func TestUARTReadWrite(t *testing.T) {
	m := setupTest(t)

	u, _ := UART(0)
	if _, err := u.Write([]byte("x")); !errors.Is(err, ErrBusInactive) {
		t.Errorf("Expected ErrBusInactive, got %v", err)
	}
	if err := u.Begin(UARTConfig{}, 3, 1, periman.NoPin, periman.NoPin); err != nil {
		t.Fatal(err)
	}
	if _, err := u.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if string(m.uartOut[0]) != "hello" {
		t.Errorf("Expected hello on the wire, got %q", m.uartOut[0])
	}
	m.uartIn[0] = []byte("world")
	buf := make([]byte, 8)
	n, err := u.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "world" {
		t.Errorf("Expected world, got %q", buf[:n])
	}

	if err := u.SetBaud(921600); err != nil {
		t.Fatal(err)
	}
	if u.Config().Baud != 921600 {
		t.Errorf("Expected 921600, got %d", u.Config().Baud)
	}
}

func TestUARTRouteFailureRollsBack(t *testing.T) {
	m := setupTest(t)
	m.failOn("uart.RouteLine", errors.New("no matrix slot"))

	u, _ := UART(1)
	if err := u.Begin(UARTConfig{}, 16, 17, periman.NoPin, periman.NoPin); err == nil {
		t.Fatal("Expected failure")
	}
	if u.Running() {
		t.Error("Port left installed")
	}
	expectQuiescent(t, m)
}
