// Package board describes which peripherals a board brings up at boot and
// on which pins, and attaches them through the core drivers.
package board

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"gohal/core"
	"gohal/debug"
	"gohal/periman"
)

// Frequency accepts either a number of hertz or a string such as "400kHz"
type Frequency physic.Frequency

func (f *Frequency) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var hz int64
		if err := json.Unmarshal(b, &hz); err != nil {
			return errors.Errorf("frequency %s: want a number or a string", b)
		}
		*f = Frequency(physic.Frequency(hz) * physic.Hertz)
		return nil
	}
	var v physic.Frequency
	if err := v.Set(s); err != nil {
		return errors.Wrapf(err, "frequency %q", s)
	}
	*f = Frequency(v)
	return nil
}

func (f Frequency) MarshalJSON() ([]byte, error) {
	return json.Marshal(physic.Frequency(f).String())
}

// Pin is an optional pin. Absent or null means not connected.
type Pin = *periman.Pin

// pinOf resolves an optional pin
func pinOf(p Pin) periman.Pin {
	if p == nil {
		return periman.NoPin
	}
	return *p
}

// P returns an optional pin set to n
func P(n int) Pin {
	p := periman.Pin(n)
	return &p
}

// GPIOConfig configures one pin for digital IO
type GPIOConfig struct {
	Pin   periman.Pin `json:"pin"`
	Mode  string      `json:"mode"` // INPUT, OUTPUT, INPUT_PULLUP ...
	Level *bool       `json:"level,omitempty"`
}

// I2CConfig configures an I2C master controller
type I2CConfig struct {
	Bus       core.I2CBusID `json:"bus"`
	SDA       periman.Pin   `json:"sda"`
	SCL       periman.Pin   `json:"scl"`
	Frequency Frequency     `json:"frequency,omitempty"`
}

// SPIConfig configures an SPI master controller
type SPIConfig struct {
	Bus       core.SPIBusID `json:"bus"`
	SCK       periman.Pin   `json:"sck"`
	MISO      Pin           `json:"miso,omitempty"`
	MOSI      Pin           `json:"mosi,omitempty"`
	SS        Pin           `json:"ss,omitempty"`
	SSLabel   string        `json:"ss_label,omitempty"`
	Frequency Frequency     `json:"frequency,omitempty"`
	Mode      int           `json:"mode,omitempty"`
}

// UARTConfig configures a UART port
type UARTConfig struct {
	Port     core.UARTPortID `json:"port"`
	RX       Pin             `json:"rx,omitempty"`
	TX       Pin             `json:"tx,omitempty"`
	CTS      Pin             `json:"cts,omitempty"`
	RTS      Pin             `json:"rts,omitempty"`
	Baud     uint32          `json:"baud,omitempty"`
	DataBits uint8           `json:"data_bits,omitempty"`
	Parity   string          `json:"parity,omitempty"` // none, even, odd
	StopBits uint8           `json:"stop_bits,omitempty"`
}

// LEDCConfig configures a PWM output
type LEDCConfig struct {
	Pin        periman.Pin `json:"pin"`
	Frequency  Frequency   `json:"frequency,omitempty"`
	Resolution uint8       `json:"resolution,omitempty"`
	Duty       uint32      `json:"duty,omitempty"`
}

// SDMMCConfig configures an SD/MMC host slot
type SDMMCConfig struct {
	Slot      core.SDMMCSlot `json:"slot"`
	CLK       periman.Pin    `json:"clk"`
	CMD       periman.Pin    `json:"cmd"`
	D0        periman.Pin    `json:"d0"`
	D1        Pin            `json:"d1,omitempty"`
	D2        Pin            `json:"d2,omitempty"`
	D3        Pin            `json:"d3,omitempty"`
	Frequency Frequency      `json:"frequency,omitempty"`
}

// EthernetConfig configures the Ethernet interface. Mode "rmii" uses the
// internal MAC; "spi" uses a MAC+PHY chip on SPIBus, which must also be
// listed under "spi".
type EthernetConfig struct {
	Mode    string `json:"mode"`
	PHY     string `json:"phy"`
	PHYAddr int8   `json:"phy_addr,omitempty"`

	MDC   Pin `json:"mdc,omitempty"`
	MDIO  Pin `json:"mdio,omitempty"`
	Power Pin `json:"power,omitempty"`
	CLK   Pin `json:"clk,omitempty"`

	SPIBus    core.SPIBusID `json:"spi_bus,omitempty"`
	CS        Pin           `json:"cs,omitempty"`
	IRQ       Pin           `json:"irq,omitempty"`
	Reset     Pin           `json:"reset,omitempty"`
	Frequency Frequency     `json:"frequency,omitempty"`
}

// USBConfig enables the USB PHY
type USBConfig struct {
	DM periman.Pin `json:"dm"`
	DP periman.Pin `json:"dp"`
}

// Config is a board description
type Config struct {
	Name     string          `json:"name,omitempty"`
	Chip     string          `json:"chip"`
	LogLevel string          `json:"log_level,omitempty"`
	GPIO     []GPIOConfig    `json:"gpio,omitempty"`
	I2C      []I2CConfig     `json:"i2c,omitempty"`
	SPI      []SPIConfig     `json:"spi,omitempty"`
	UART     []UARTConfig    `json:"uart,omitempty"`
	LEDC     []LEDCConfig    `json:"ledc,omitempty"`
	SDMMC    []SDMMCConfig   `json:"sdmmc,omitempty"`
	Ethernet *EthernetConfig `json:"ethernet,omitempty"`
	USB      *USBConfig      `json:"usb,omitempty"`
}

// LoadConfig parses a JSON board description and fills in defaults
func LoadConfig(jsonData []byte) (*Config, error) {
	var config Config
	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&config); err != nil {
		return nil, errors.Wrap(err, "board config")
	}
	if _, ok := periman.ChipByName(config.Chip); !ok {
		return nil, errors.Errorf("board config: unknown chip %q", config.Chip)
	}
	if _, ok := debug.ParseLevel(strings.ToLower(config.LogLevel)); config.LogLevel != "" && !ok {
		return nil, errors.Errorf("board config: unknown log level %q", config.LogLevel)
	}
	applyDefaults(&config)
	return &config, nil
}

// applyDefaults fills in missing values the way the drivers would
func applyDefaults(config *Config) {
	if config.LogLevel == "" {
		config.LogLevel = "error"
	}
	for i := range config.GPIO {
		if config.GPIO[i].Mode == "" {
			config.GPIO[i].Mode = core.Input.String()
		}
	}
	for i := range config.I2C {
		if config.I2C[i].Frequency == 0 {
			config.I2C[i].Frequency = Frequency(core.I2CDefaultFrequency)
		}
	}
	for i := range config.SPI {
		if config.SPI[i].Frequency == 0 {
			config.SPI[i].Frequency = Frequency(core.SPIDefaultFrequency)
		}
	}
	for i := range config.UART {
		if config.UART[i].Baud == 0 {
			config.UART[i].Baud = core.UARTDefaultBaud
		}
		if config.UART[i].Parity == "" {
			config.UART[i].Parity = "none"
		}
	}
	for i := range config.LEDC {
		if config.LEDC[i].Frequency == 0 {
			config.LEDC[i].Frequency = Frequency(5 * physic.KiloHertz)
		}
		if config.LEDC[i].Resolution == 0 {
			config.LEDC[i].Resolution = 8
		}
	}
	for i := range config.SDMMC {
		if config.SDMMC[i].Frequency == 0 {
			config.SDMMC[i].Frequency = Frequency(core.SDMMCDefaultFrequency)
		}
	}
	if e := config.Ethernet; e != nil {
		if e.Mode == "" {
			e.Mode = "rmii"
		}
		if e.Mode == "spi" && e.Frequency == 0 {
			e.Frequency = Frequency(20 * physic.MegaHertz)
		}
	}
}

// ChipInfo returns the chip description named by the config
func (c *Config) ChipInfo() periman.Chip {
	chip, _ := periman.ChipByName(c.Chip)
	return chip
}

var pinModes = []core.PinMode{core.Input, core.Output, core.InputPullUp, core.InputPullDown, core.OutputOpenDrain}

func parsePinMode(s string) (core.PinMode, error) {
	for _, m := range pinModes {
		if strings.EqualFold(m.String(), s) {
			return m, nil
		}
	}
	return 0, errors.Errorf("unknown pin mode %q", s)
}

func parseParity(s string) (core.UARTParity, error) {
	switch strings.ToLower(s) {
	case "none", "n":
		return core.UARTParityNone, nil
	case "even", "e":
		return core.UARTParityEven, nil
	case "odd", "o":
		return core.UARTParityOdd, nil
	}
	return 0, errors.Errorf("unknown parity %q", s)
}

var phyNames = map[string]core.EthernetPHY{
	"LAN8720": core.EthernetLAN8720,
	"TLK110":  core.EthernetTLK110,
	"RTL8201": core.EthernetRTL8201,
	"DP83848": core.EthernetDP83848,
	"KSZ8041": core.EthernetKSZ8041,
	"KSZ8081": core.EthernetKSZ8081,
	"W5500":   core.EthernetW5500,
	"DM9051":  core.EthernetDM9051,
	"KSZ8851": core.EthernetKSZ8851,
}

func parsePHY(s string) (core.EthernetPHY, error) {
	if p, ok := phyNames[strings.ToUpper(s)]; ok {
		return p, nil
	}
	return 0, errors.Errorf("unknown PHY %q", s)
}

func spiMode(m int) (spi.Mode, error) {
	if m < 0 || m > 3 {
		return 0, errors.Errorf("SPI mode %d out of range", m)
	}
	return spi.Mode(m), nil
}

// DefaultConfig returns the usual wiring of a development board for chip,
// the pins an Arduino variant file would name SDA, SCL, SCK and so on.
func DefaultConfig(chip periman.Chip) *Config {
	var config Config
	config.Chip = chip.Name
	switch chip.Name {
	case "esp32":
		config.Name = "esp32dev"
		config.I2C = []I2CConfig{{Bus: 0, SDA: 21, SCL: 22}}
		config.SPI = []SPIConfig{{Bus: 0, SCK: 18, MISO: P(19), MOSI: P(23), SS: P(5)}}
		config.UART = []UARTConfig{{Port: 0, RX: P(3), TX: P(1)}}
	case "esp32s2", "esp32s3":
		// D-/D+ are fixed on both
		config.Name = chip.Name + "-devkit"
		config.I2C = []I2CConfig{{Bus: 0, SDA: 8, SCL: 9}}
		config.SPI = []SPIConfig{{Bus: 0, SCK: 12, MISO: P(13), MOSI: P(11), SS: P(10)}}
		config.UART = []UARTConfig{{Port: 0, RX: P(44), TX: P(43)}}
		config.USB = &USBConfig{DM: 19, DP: 20}
	case "esp32c3":
		config.Name = "esp32c3-devkit"
		config.I2C = []I2CConfig{{Bus: 0, SDA: 8, SCL: 9}}
		config.SPI = []SPIConfig{{Bus: 0, SCK: 4, MISO: P(5), MOSI: P(6), SS: P(7)}}
		config.UART = []UARTConfig{{Port: 0, RX: P(20), TX: P(21)}}
	case "rp2040":
		config.Name = "pico"
		config.I2C = []I2CConfig{{Bus: 0, SDA: 4, SCL: 5}}
		config.SPI = []SPIConfig{{Bus: 0, SCK: 18, MISO: P(16), MOSI: P(19), SS: P(17)}}
		config.UART = []UARTConfig{{Port: 0, RX: P(1), TX: P(0)}}
	case "bcm2835":
		// /dev/i2c-1, /dev/spidev0.0 and /dev/serial0
		config.Name = "raspberrypi"
		config.I2C = []I2CConfig{{Bus: 1, SDA: 2, SCL: 3}}
		config.SPI = []SPIConfig{{Bus: 0, SCK: 11, MISO: P(9), MOSI: P(10), SS: P(8)}}
		config.UART = []UARTConfig{{Port: 0, RX: P(15), TX: P(14)}}
	default:
		config.Name = chip.Name
	}
	applyDefaults(&config)
	return &config
}
