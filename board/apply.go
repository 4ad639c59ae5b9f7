package board

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"gohal/core"
	"gohal/debug"
	"gohal/periman"
)

// Board holds the peripherals started by Apply
type Board struct {
	Config   *Config
	I2C      map[core.I2CBusID]*core.I2CBus
	SPI      map[core.SPIBusID]*core.SPIBus
	UART     map[core.UARTPortID]*core.UARTPort
	LEDC     map[periman.Pin]*core.LEDCChannel
	SDMMC    map[core.SDMMCSlot]*core.SDMMC
	Ethernet *core.Ethernet
	USB      *core.USB
}

// Apply brings up every peripheral in config. A peripheral that fails is
// skipped and the rest are still attempted; the returned error combines all
// failures. The Board is valid even when err is not nil.
func Apply(config *Config) (*Board, error) {
	b := &Board{
		Config: config,
		I2C:    make(map[core.I2CBusID]*core.I2CBus),
		SPI:    make(map[core.SPIBusID]*core.SPIBus),
		UART:   make(map[core.UARTPortID]*core.UARTPort),
		LEDC:   make(map[periman.Pin]*core.LEDCChannel),
		SDMMC:  make(map[core.SDMMCSlot]*core.SDMMC),
	}
	if l, ok := debug.ParseLevel(config.LogLevel); ok {
		debug.SetLevel(l)
	}

	var err error
	for _, c := range config.GPIO {
		err = multierr.Append(err, applyGPIO(c))
	}
	for _, c := range config.I2C {
		err = multierr.Append(err, b.applyI2C(c))
	}
	for _, c := range config.SPI {
		err = multierr.Append(err, b.applySPI(c))
	}
	for _, c := range config.UART {
		err = multierr.Append(err, b.applyUART(c))
	}
	for _, c := range config.LEDC {
		err = multierr.Append(err, b.applyLEDC(c))
	}
	for _, c := range config.SDMMC {
		err = multierr.Append(err, b.applySDMMC(c))
	}
	if config.Ethernet != nil {
		err = multierr.Append(err, b.applyEthernet(*config.Ethernet))
	}
	if config.USB != nil {
		err = multierr.Append(err, b.applyUSB(*config.USB))
	}
	if err != nil {
		debug.Errorf("board %s: %d peripherals failed", config.Name, len(multierr.Errors(err)))
	}
	return b, err
}

func applyGPIO(c GPIOConfig) error {
	mode, err := parsePinMode(c.Mode)
	if err != nil {
		return errors.Wrapf(err, "gpio %d", c.Pin)
	}
	if err := core.SetPinMode(c.Pin, mode); err != nil {
		return err
	}
	if c.Level != nil {
		return core.DigitalWrite(c.Pin, gpio.Level(*c.Level))
	}
	return nil
}

func (b *Board) applyI2C(c I2CConfig) error {
	bus, err := core.I2CMaster(c.Bus)
	if err != nil {
		return err
	}
	if err := bus.Begin(c.SDA, c.SCL, physic.Frequency(c.Frequency)); err != nil {
		return err
	}
	b.I2C[c.Bus] = bus
	return nil
}

func (b *Board) applySPI(c SPIConfig) error {
	mode, err := spiMode(c.Mode)
	if err != nil {
		return errors.Wrapf(err, "spi%d", c.Bus)
	}
	bus, err := core.SPIMaster(c.Bus)
	if err != nil {
		return err
	}
	cfg := core.SPIConfig{Frequency: physic.Frequency(c.Frequency), Mode: mode}
	if err := bus.Begin(c.SCK, pinOf(c.MISO), pinOf(c.MOSI), periman.NoPin, cfg); err != nil {
		return err
	}
	b.SPI[c.Bus] = bus
	if ss := pinOf(c.SS); ss != periman.NoPin {
		return bus.AttachSS(ss, c.SSLabel)
	}
	return nil
}

func (b *Board) applyUART(c UARTConfig) error {
	parity, err := parseParity(c.Parity)
	if err != nil {
		return errors.Wrapf(err, "uart%d", c.Port)
	}
	port, err := core.UART(c.Port)
	if err != nil {
		return err
	}
	cfg := core.UARTConfig{Baud: c.Baud, DataBits: c.DataBits, Parity: parity, StopBits: c.StopBits}
	if err := port.Begin(cfg, pinOf(c.RX), pinOf(c.TX), pinOf(c.CTS), pinOf(c.RTS)); err != nil {
		return err
	}
	b.UART[c.Port] = port
	return nil
}

func (b *Board) applyLEDC(c LEDCConfig) error {
	ch, err := core.LEDCAttach(c.Pin, physic.Frequency(c.Frequency), c.Resolution)
	if err != nil {
		return err
	}
	b.LEDC[c.Pin] = ch
	if c.Duty != 0 {
		return ch.Write(c.Duty)
	}
	return nil
}

func (b *Board) applySDMMC(c SDMMCConfig) error {
	host, err := core.SDMMCHost(c.Slot)
	if err != nil {
		return err
	}
	pins := core.SDMMCPins{CLK: c.CLK, CMD: c.CMD, D0: c.D0, D1: pinOf(c.D1), D2: pinOf(c.D2), D3: pinOf(c.D3)}
	if err := host.Begin(pins, physic.Frequency(c.Frequency)); err != nil {
		return err
	}
	b.SDMMC[c.Slot] = host
	return nil
}

func (b *Board) applyEthernet(c EthernetConfig) error {
	phy, err := parsePHY(c.PHY)
	if err != nil {
		return errors.Wrap(err, "ethernet")
	}
	var e *core.Ethernet
	switch c.Mode {
	case "rmii":
		e, err = core.EthernetRMII(core.EthernetRMIIConfig{
			PHY: phy, PHYAddr: c.PHYAddr,
			MDC: pinOf(c.MDC), MDIO: pinOf(c.MDIO), Power: pinOf(c.Power), CLK: pinOf(c.CLK),
		})
	case "spi":
		bus, ok := b.SPI[c.SPIBus]
		if !ok {
			return errors.Errorf("ethernet: spi%d is not configured", c.SPIBus)
		}
		e, err = core.EthernetSPI(bus, core.EthernetSPIConfig{
			PHY: phy, PHYAddr: c.PHYAddr,
			CS: pinOf(c.CS), IRQ: pinOf(c.IRQ), Reset: pinOf(c.Reset),
			Frequency: physic.Frequency(c.Frequency),
		})
	default:
		return errors.Errorf("ethernet: unknown mode %q", c.Mode)
	}
	if err != nil {
		return err
	}
	b.Ethernet = e
	return nil
}

func (b *Board) applyUSB(c USBConfig) error {
	u := core.USBDevice()
	if err := u.Begin(c.DM, c.DP); err != nil {
		return err
	}
	b.USB = u
	return nil
}

// Close stops everything Apply started, dependents first
func (b *Board) Close() error {
	var err error
	if b.USB != nil {
		err = multierr.Append(err, b.USB.End())
	}
	if b.Ethernet != nil {
		err = multierr.Append(err, b.Ethernet.End())
	}
	for _, h := range b.SDMMC {
		err = multierr.Append(err, h.End())
	}
	for _, ch := range b.LEDC {
		err = multierr.Append(err, ch.Detach())
	}
	for _, p := range b.UART {
		err = multierr.Append(err, p.End())
	}
	for _, s := range b.SPI {
		err = multierr.Append(err, s.End())
	}
	for _, i := range b.I2C {
		err = multierr.Append(err, i.End())
	}
	for _, c := range b.Config.GPIO {
		if core.MustPins().GetPinBusType(c.Pin) == periman.BusTypeGPIO {
			err = multierr.Append(err, core.MustPins().ClearPinBus(c.Pin))
		}
	}
	return err
}
