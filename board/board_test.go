package board

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"gohal/core"
	"gohal/periman"
)

// fakeHW implements the low-level drivers Apply touches and counts the
// controllers that are up.
type fakeHW struct {
	mu   sync.Mutex
	up   map[string]int
	pins map[periman.Pin]gpio.Level
}

func (f *fakeHW) inc(key string, d int) error {
	f.mu.Lock()
	f.up[key] += d
	f.mu.Unlock()
	return nil
}

func (f *fakeHW) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.up {
		n += v
	}
	return n
}

type fakeGPIO struct{ *fakeHW }

func (f fakeGPIO) ConfigureInput(periman.Pin, gpio.Pull) error { return nil }
func (f fakeGPIO) ConfigureOutput(periman.Pin, bool) error     { return nil }
func (f fakeGPIO) Reset(periman.Pin) error                     { return nil }
func (f fakeGPIO) Get(p periman.Pin) (gpio.Level, error)       { return f.pins[p], nil }
func (f fakeGPIO) Set(p periman.Pin, l gpio.Level) error {
	f.mu.Lock()
	f.pins[p] = l
	f.mu.Unlock()
	return nil
}

type fakeI2C struct{ *fakeHW }

func (f fakeI2C) BusCount() int { return 2 }
func (f fakeI2C) Init(core.I2CBusID, periman.Pin, periman.Pin, physic.Frequency) error {
	return f.inc("i2c", 1)
}
func (f fakeI2C) Deinit(core.I2CBusID) error                    { return f.inc("i2c", -1) }
func (f fakeI2C) SetClock(core.I2CBusID, physic.Frequency) error { return nil }
func (f fakeI2C) Tx(core.I2CBusID, uint16, []byte, []byte, time.Duration) error {
	return nil
}

type fakeSPI struct{ *fakeHW }

func (f fakeSPI) BusCount() int                                { return 2 }
func (f fakeSPI) Start(core.SPIBusID, core.SPIConfig) error     { return f.inc("spi", 1) }
func (f fakeSPI) Stop(core.SPIBusID) error                     { return f.inc("spi", -1) }
func (f fakeSPI) Configure(core.SPIBusID, core.SPIConfig) error { return nil }
func (f fakeSPI) AttachLine(core.SPIBusID, core.SPILine, periman.Pin) error {
	return f.inc("spi.line", 1)
}
func (f fakeSPI) DetachLine(core.SPIBusID, core.SPILine, periman.Pin) error {
	return f.inc("spi.line", -1)
}
func (f fakeSPI) Transfer(core.SPIBusID, []byte, []byte) error { return nil }

type fakeUART struct{ *fakeHW }

func (f fakeUART) PortCount() int                                   { return 3 }
func (f fakeUART) Install(core.UARTPortID, core.UARTConfig) error   { return f.inc("uart", 1) }
func (f fakeUART) Uninstall(core.UARTPortID) error                  { return f.inc("uart", -1) }
func (f fakeUART) Configure(core.UARTPortID, core.UARTConfig) error { return nil }
func (f fakeUART) RouteLine(core.UARTPortID, core.UARTLine, periman.Pin) error {
	return f.inc("uart.line", 1)
}
func (f fakeUART) UnrouteLine(core.UARTPortID, core.UARTLine, periman.Pin) error {
	return f.inc("uart.line", -1)
}
func (f fakeUART) Write(_ core.UARTPortID, p []byte) (int, error) { return len(p), nil }
func (f fakeUART) Read(core.UARTPortID, []byte, time.Duration) (int, error) {
	return 0, nil
}

type fakeLEDC struct{ *fakeHW }

func (f fakeLEDC) ChannelCount() int                            { return 8 }
func (f fakeLEDC) ChannelFor(periman.Pin) []core.LEDCChannelID { return nil }
func (f fakeLEDC) Configure(_ core.LEDCChannelID, _ periman.Pin, freq physic.Frequency, _ uint8) (physic.Frequency, error) {
	return freq, f.inc("ledc", 1)
}
func (f fakeLEDC) SetDuty(core.LEDCChannelID, uint32) error { return nil }
func (f fakeLEDC) SetFrequency(_ core.LEDCChannelID, freq physic.Frequency) (physic.Frequency, error) {
	return freq, nil
}
func (f fakeLEDC) Stop(core.LEDCChannelID) error { return f.inc("ledc", -1) }

func setupBoard(t *testing.T, chip periman.Chip) *fakeHW {
	t.Helper()
	f := &fakeHW{up: make(map[string]int), pins: make(map[periman.Pin]gpio.Level)}
	core.SetPinRegistry(periman.New(chip))
	core.SetGPIODriver(fakeGPIO{f})
	core.SetI2CDriver(fakeI2C{f})
	core.SetSPIDriver(fakeSPI{f})
	core.SetUARTDriver(fakeUART{f})
	core.SetLEDCDriver(fakeLEDC{f})
	return f
}

const esp32Board = `{
	"name": "test-board",
	"chip": "ESP32",
	"log_level": "warn",
	"gpio": [{"pin": 2, "mode": "output", "level": true}, {"pin": 4}],
	"i2c": [{"bus": 0, "sda": 21, "scl": 22, "frequency": "400kHz"}],
	"spi": [{"bus": 1, "sck": 14, "miso": 12, "mosi": 13, "ss": 15, "ss_label": "SD_SS", "frequency": 8000000}],
	"uart": [{"port": 2, "rx": 16, "tx": 17, "parity": "even"}],
	"ledc": [{"pin": 27, "resolution": 10, "duty": 512}]
}`

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig([]byte(esp32Board))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if config.ChipInfo().Name != "esp32" {
		t.Errorf("Expected chip esp32, got %q", config.ChipInfo().Name)
	}
	if config.GPIO[1].Mode != "INPUT" {
		t.Errorf("Expected default mode INPUT, got %q", config.GPIO[1].Mode)
	}
	if f := physic.Frequency(config.I2C[0].Frequency); f != 400*physic.KiloHertz {
		t.Errorf("Expected 400kHz, got %s", f)
	}
	if f := physic.Frequency(config.SPI[0].Frequency); f != 8*physic.MegaHertz {
		t.Errorf("Expected 8MHz from a number, got %s", f)
	}
	if pinOf(config.SPI[0].SS) != 15 || pinOf(config.UART[0].CTS) != periman.NoPin {
		t.Errorf("Unexpected optional pins ss=%d cts=%d", pinOf(config.SPI[0].SS), pinOf(config.UART[0].CTS))
	}
	if config.UART[0].Baud != core.UARTDefaultBaud {
		t.Errorf("Expected default baud, got %d", config.UART[0].Baud)
	}
	if l := config.LEDC[0]; physic.Frequency(l.Frequency) != 5*physic.KiloHertz || l.Resolution != 10 {
		t.Errorf("Unexpected LEDC defaults %+v", l)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"unknown chip", `{"chip": "esp8266"}`},
		{"unknown field", `{"chip": "esp32", "can": []}`},
		{"bad frequency", `{"chip": "esp32", "i2c": [{"sda": 21, "scl": 22, "frequency": "fast"}]}`},
		{"bad log level", `{"chip": "esp32", "log_level": "loud"}`},
		{"not json", `chip: esp32`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig([]byte(tt.json)); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestDefaultConfigPinsAreValid(t *testing.T) {
	for _, chip := range []periman.Chip{periman.ESP32, periman.ESP32S2, periman.ESP32S3, periman.ESP32C3, periman.RP2040, periman.BCM2835} {
		config := DefaultConfig(chip)
		var pins []periman.Pin
		for _, c := range config.I2C {
			pins = append(pins, c.SDA, c.SCL)
		}
		for _, c := range config.SPI {
			pins = append(pins, c.SCK, pinOf(c.MISO), pinOf(c.MOSI), pinOf(c.SS))
		}
		for _, c := range config.UART {
			pins = append(pins, pinOf(c.RX), pinOf(c.TX))
		}
		for _, p := range pins {
			if !chip.PinIsValid(p) {
				t.Errorf("%s: default pin %d is not valid", chip.Name, p)
			}
		}
		if config.USB != nil && !chip.Supports(periman.BusTypeUSBDM) {
			t.Errorf("%s: USB in defaults but not supported", chip.Name)
		}
	}
}

func TestApplyAndClose(t *testing.T) {
	f := setupBoard(t, periman.ESP32)
	config, err := LoadConfig([]byte(esp32Board))
	if err != nil {
		t.Fatal(err)
	}

	b, err := Apply(config)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	reg := core.MustPins()
	want := map[periman.Pin]periman.BusType{
		2:  periman.BusTypeGPIO,
		4:  periman.BusTypeGPIO,
		21: periman.BusTypeI2CMasterSDA,
		22: periman.BusTypeI2CMasterSCL,
		14: periman.BusTypeSPIMasterSCK,
		15: periman.BusTypeSPIMasterSS,
		16: periman.BusTypeUARTRx,
		17: periman.BusTypeUARTTx,
		27: periman.BusTypeLEDC,
	}
	for pin, typ := range want {
		if got := reg.GetPinBusType(pin); got != typ {
			t.Errorf("Pin %d owned by %s, want %s", pin, got, typ)
		}
	}
	if info, _ := reg.Info(15); info.ExtraType != "SD_SS" {
		t.Errorf("Expected SS labelled SD_SS, got %q", info.ExtraType)
	}
	if !f.pins[2] {
		t.Error("Pin 2 not driven high")
	}
	if b.UART[2].Config().Parity != core.UARTParityEven {
		t.Errorf("Expected even parity, got %d", b.UART[2].Config().Parity)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if owned := reg.Snapshot(); len(owned) != 0 {
		t.Errorf("Pins still owned after Close: %v", owned)
	}
	if n := f.live(); n != 0 {
		t.Errorf("Hardware still up after Close: %v", f.up)
	}
}

func TestApplyCollectsErrors(t *testing.T) {
	setupBoard(t, periman.ESP32)
	config := &Config{
		Chip: "esp32",
		GPIO: []GPIOConfig{{Pin: 5, Mode: "OUTPUT"}},
		I2C:  []I2CConfig{{Bus: 0, SDA: 24, SCL: 22}},
		UART: []UARTConfig{{Port: 1, RX: P(9), TX: P(10), Parity: "mark"}},
		SPI:  []SPIConfig{{Bus: 0, SCK: 18, MOSI: P(23), Mode: 5}},
	}
	applyDefaults(config)

	b, err := Apply(config)
	if n := len(multierr.Errors(err)); n != 3 {
		t.Fatalf("Expected 3 errors, got %d: %v", n, err)
	}
	if core.MustPins().GetPinBusType(5) != periman.BusTypeGPIO {
		t.Error("A failing peripheral stopped the rest from starting")
	}
	if len(b.I2C) != 0 || len(b.UART) != 0 || len(b.SPI) != 0 {
		t.Errorf("Failed peripherals recorded: %+v", b)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

// Peripherals start in config order, so a later one takes a shared pin
func TestApplyLaterPeripheralWinsPin(t *testing.T) {
	f := setupBoard(t, periman.ESP32)
	config := &Config{
		Chip: "esp32",
		I2C:  []I2CConfig{{Bus: 0, SDA: 21, SCL: 22}},
		LEDC: []LEDCConfig{{Pin: 22}},
	}
	applyDefaults(config)

	b, err := Apply(config)
	if err != nil {
		t.Fatal(err)
	}
	if b.I2C[0].Initialized() {
		t.Error("I2C still running after LEDC took SCL")
	}
	if core.MustPins().GetPinBusType(21) != periman.BusTypeInit {
		t.Error("SDA still owned after I2C was evicted")
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if n := f.live(); n != 0 {
		t.Errorf("Hardware still up: %v", f.up)
	}
}
