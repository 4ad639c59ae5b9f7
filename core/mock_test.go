package core

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"gohal/periman"
)

// mockHW is a fake target shared by every mock driver. It records calls,
// tracks which low-level resources are up and fails on request.
type mockHW struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	live  map[string]bool

	levels  map[periman.Pin]gpio.Level
	adcRaw  ADCValue
	i2cRegs map[uint16][]byte
	uartOut map[UARTPortID][]byte
	uartIn  map[UARTPortID][]byte
	sectors map[uint64][]byte
	i2sData map[I2SPort][]byte
	samples []ADCSample
	nextRMT RMTHandle
	nextEth EthernetHandle
	linkUp  bool
}

func newMockHW() *mockHW {
	return &mockHW{
		fail:    make(map[string]error),
		live:    make(map[string]bool),
		levels:  make(map[periman.Pin]gpio.Level),
		adcRaw:  0x800,
		i2cRegs: make(map[uint16][]byte),
		uartOut: make(map[UARTPortID][]byte),
		uartIn:  make(map[UARTPortID][]byte),
		sectors: make(map[uint64][]byte),
		i2sData: make(map[I2SPort][]byte),
	}
}

// call records op and returns the error injected for it
func (m *mockHW) call(op string, args ...interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := op
	if len(args) > 0 {
		entry += fmt.Sprint(args...)
	}
	m.calls = append(m.calls, entry)
	return m.fail[op]
}

func (m *mockHW) failOn(op string, err error) {
	m.mu.Lock()
	m.fail[op] = err
	m.mu.Unlock()
}

func (m *mockHW) clearFail(op string) {
	m.mu.Lock()
	delete(m.fail, op)
	m.mu.Unlock()
}

func (m *mockHW) up(key string) {
	m.mu.Lock()
	m.live[key] = true
	m.mu.Unlock()
}

func (m *mockHW) down(key string) {
	m.mu.Lock()
	delete(m.live, key)
	m.mu.Unlock()
}

func (m *mockHW) isUp(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live[key]
}

func (m *mockHW) liveKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.live))
	for k := range m.live {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// count returns how many calls started with op, arguments included
func (m *mockHW) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if strings.HasPrefix(c, op) {
			n++
		}
	}
	return n
}

// ---- GPIO

type mockGPIO struct{ *mockHW }

func (m mockGPIO) ConfigureInput(pin periman.Pin, pull gpio.Pull) error {
	return m.call("gpio.ConfigureInput", pin, " ", pull)
}

func (m mockGPIO) ConfigureOutput(pin periman.Pin, openDrain bool) error {
	return m.call("gpio.ConfigureOutput", pin, " ", openDrain)
}

func (m mockGPIO) Reset(pin periman.Pin) error {
	return m.call("gpio.Reset", pin)
}

func (m mockGPIO) Set(pin periman.Pin, level gpio.Level) error {
	if err := m.call("gpio.Set", pin); err != nil {
		return err
	}
	m.mu.Lock()
	m.levels[pin] = level
	m.mu.Unlock()
	return nil
}

func (m mockGPIO) Get(pin periman.Pin) (gpio.Level, error) {
	if err := m.call("gpio.Get", pin); err != nil {
		return gpio.Low, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

// ---- ADC: unit 0 is pins 32-39, unit 1 the pins listed in adc1Pins

var adc1Pins = []periman.Pin{4, 0, 2, 15, 13, 12, 14, 27, 25, 26}

type mockADC struct{ *mockHW }

func (m mockADC) PinToChannel(pin periman.Pin) (ADCUnit, ADCChannel, bool) {
	if pin >= 32 && pin <= 39 {
		return 0, ADCChannel(pin - 32), true
	}
	for i, p := range adc1Pins {
		if p == pin {
			return 1, ADCChannel(i), true
		}
	}
	return 0, 0, false
}

func (m mockADC) ChannelToPin(unit ADCUnit, ch ADCChannel) (periman.Pin, bool) {
	switch {
	case unit == 0 && ch < 8:
		return 32 + periman.Pin(ch), true
	case unit == 1 && int(ch) < len(adc1Pins):
		return adc1Pins[ch], true
	}
	return periman.NoPin, false
}

func (m mockADC) ChannelCount(unit ADCUnit) int {
	if unit == 0 {
		return 8
	}
	return len(adc1Pins)
}

func (m mockADC) NewUnit(unit ADCUnit) error {
	if err := m.call("adc.NewUnit", unit); err != nil {
		return err
	}
	m.up(fmt.Sprintf("adc%d", unit))
	return nil
}

func (m mockADC) DeleteUnit(unit ADCUnit) error {
	if err := m.call("adc.DeleteUnit", unit); err != nil {
		return err
	}
	m.down(fmt.Sprintf("adc%d", unit))
	return nil
}

func (m mockADC) ConfigChannel(unit ADCUnit, ch ADCChannel, width uint8, atten ADCAttenuation) error {
	return m.call("adc.ConfigChannel", unit, ch, " ", width, " ", atten)
}

func (m mockADC) ReadRaw(unit ADCUnit, ch ADCChannel) (ADCValue, error) {
	if err := m.call("adc.ReadRaw", unit, ch); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adcRaw, nil
}

func (m mockADC) ReadMilliVolts(unit ADCUnit, ch ADCChannel) (uint32, error) {
	if err := m.call("adc.ReadMilliVolts", unit, ch); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint32(m.adcRaw) * 3300 / 4095, nil
}

type mockADCContinuous struct{ *mockHW }

func (m mockADCContinuous) Start(channels []ADCSample, cfg ADCContinuousConfig) error {
	if err := m.call("adccont.Start"); err != nil {
		return err
	}
	m.up("adccont")
	return nil
}

func (m mockADCContinuous) Read(buf []ADCSample, timeout time.Duration) (int, error) {
	if err := m.call("adccont.Read"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return copy(buf, m.samples), nil
}

func (m mockADCContinuous) Stop() error {
	if err := m.call("adccont.Stop"); err != nil {
		return err
	}
	m.down("adccont")
	return nil
}

// ---- DAC: pins 25 and 26

type mockDAC struct{ *mockHW }

func (m mockDAC) PinToChannel(pin periman.Pin) (DACChannel, bool) {
	switch pin {
	case 25:
		return 0, true
	case 26:
		return 1, true
	}
	return 0, false
}

func (m mockDAC) Enable(ch DACChannel) error {
	if err := m.call("dac.Enable", ch); err != nil {
		return err
	}
	m.up(fmt.Sprintf("dac%d", ch))
	return nil
}

func (m mockDAC) Write(ch DACChannel, value uint8) error {
	return m.call("dac.Write", ch, " ", value)
}

func (m mockDAC) Disable(ch DACChannel) error {
	if err := m.call("dac.Disable", ch); err != nil {
		return err
	}
	m.down(fmt.Sprintf("dac%d", ch))
	return nil
}

// ---- LEDC

type mockLEDC struct{ *mockHW }

func (m mockLEDC) ChannelCount() int { return 4 }

func (m mockLEDC) ChannelFor(pin periman.Pin) []LEDCChannelID { return nil }

func (m mockLEDC) Configure(ch LEDCChannelID, pin periman.Pin, freq physic.Frequency, resolution uint8) (physic.Frequency, error) {
	if err := m.call("ledc.Configure", ch); err != nil {
		return 0, err
	}
	m.up(fmt.Sprintf("ledc%d", ch))
	return freq, nil
}

func (m mockLEDC) SetDuty(ch LEDCChannelID, duty uint32) error {
	return m.call("ledc.SetDuty", ch, " ", duty)
}

func (m mockLEDC) SetFrequency(ch LEDCChannelID, freq physic.Frequency) (physic.Frequency, error) {
	if err := m.call("ledc.SetFrequency", ch); err != nil {
		return 0, err
	}
	return freq, nil
}

func (m mockLEDC) Stop(ch LEDCChannelID) error {
	if err := m.call("ledc.Stop", ch); err != nil {
		return err
	}
	m.down(fmt.Sprintf("ledc%d", ch))
	return nil
}

// ---- RMT

type mockRMT struct{ *mockHW }

func (m mockRMT) NewChannel(pin periman.Pin, dir RMTDirection, resolution physic.Frequency) (RMTHandle, error) {
	if err := m.call("rmt.NewChannel", pin); err != nil {
		return 0, err
	}
	m.mu.Lock()
	h := m.nextRMT
	m.nextRMT++
	m.mu.Unlock()
	m.up(fmt.Sprintf("rmt%d", h))
	return h, nil
}

func (m mockRMT) Write(h RMTHandle, symbols []RMTSymbol) error {
	return m.call("rmt.Write", h)
}

func (m mockRMT) Read(h RMTHandle, symbols []RMTSymbol, timeout time.Duration) (int, error) {
	if err := m.call("rmt.Read", h); err != nil {
		return 0, err
	}
	if len(symbols) == 0 {
		return 0, nil
	}
	symbols[0] = RMTSymbol{Duration0: 10, Level0: true, Duration1: 20}
	return 1, nil
}

func (m mockRMT) DeleteChannel(h RMTHandle) error {
	if err := m.call("rmt.DeleteChannel", h); err != nil {
		return err
	}
	m.down(fmt.Sprintf("rmt%d", h))
	return nil
}

// ---- I2C

type mockI2C struct{ *mockHW }

func (m mockI2C) BusCount() int { return 2 }

func (m mockI2C) Init(bus I2CBusID, sda, scl periman.Pin, freq physic.Frequency) error {
	if err := m.call("i2c.Init", bus); err != nil {
		return err
	}
	m.up(fmt.Sprintf("i2c%d", bus))
	return nil
}

func (m mockI2C) Deinit(bus I2CBusID) error {
	if err := m.call("i2c.Deinit", bus); err != nil {
		return err
	}
	m.down(fmt.Sprintf("i2c%d", bus))
	return nil
}

func (m mockI2C) SetClock(bus I2CBusID, freq physic.Frequency) error {
	return m.call("i2c.SetClock", bus)
}

// Tx treats the first written byte as a register index into i2cRegs
func (m mockI2C) Tx(bus I2CBusID, addr uint16, w, r []byte, timeout time.Duration) error {
	if err := m.call("i2c.Tx", bus); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	regs, ok := m.i2cRegs[addr]
	if !ok {
		return fmt.Errorf("no device at 0x%02x", addr)
	}
	if len(w) == 0 {
		return nil
	}
	reg := int(w[0])
	if len(w) > 1 {
		copy(regs[reg:], w[1:])
	}
	if len(r) > 0 {
		copy(r, regs[reg:])
	}
	return nil
}

type mockI2CSlave struct{ *mockHW }

func (m mockI2CSlave) Init(bus I2CBusID, sda, scl periman.Pin, addr uint16, freq physic.Frequency) error {
	if err := m.call("i2cslave.Init", bus); err != nil {
		return err
	}
	m.up(fmt.Sprintf("i2cslave%d", bus))
	return nil
}

func (m mockI2CSlave) Deinit(bus I2CBusID) error {
	if err := m.call("i2cslave.Deinit", bus); err != nil {
		return err
	}
	m.down(fmt.Sprintf("i2cslave%d", bus))
	return nil
}

func (m mockI2CSlave) Write(bus I2CBusID, data []byte, timeout time.Duration) (int, error) {
	return len(data), m.call("i2cslave.Write", bus)
}

func (m mockI2CSlave) Read(bus I2CBusID, buf []byte, timeout time.Duration) (int, error) {
	return 0, m.call("i2cslave.Read", bus)
}

// ---- SPI

type mockSPI struct{ *mockHW }

func (m mockSPI) BusCount() int { return 2 }

func (m mockSPI) Start(bus SPIBusID, cfg SPIConfig) error {
	if err := m.call("spi.Start", bus); err != nil {
		return err
	}
	m.up(fmt.Sprintf("spi%d", bus))
	return nil
}

func (m mockSPI) Stop(bus SPIBusID) error {
	if err := m.call("spi.Stop", bus); err != nil {
		return err
	}
	m.down(fmt.Sprintf("spi%d", bus))
	return nil
}

func (m mockSPI) Configure(bus SPIBusID, cfg SPIConfig) error {
	return m.call("spi.Configure", bus)
}

func (m mockSPI) AttachLine(bus SPIBusID, line SPILine, pin periman.Pin) error {
	if err := m.call("spi.AttachLine", bus, " ", line); err != nil {
		return err
	}
	m.up(fmt.Sprintf("spi%d.%s", bus, line))
	return nil
}

func (m mockSPI) DetachLine(bus SPIBusID, line SPILine, pin periman.Pin) error {
	if err := m.call("spi.DetachLine", bus, " ", line); err != nil {
		return err
	}
	m.down(fmt.Sprintf("spi%d.%s", bus, line))
	return nil
}

// Transfer loops w back into r
func (m mockSPI) Transfer(bus SPIBusID, w, r []byte) error {
	if err := m.call("spi.Transfer", bus); err != nil {
		return err
	}
	copy(r, w)
	return nil
}

// ---- UART

type mockUART struct{ *mockHW }

func (m mockUART) PortCount() int { return 3 }

func (m mockUART) Install(port UARTPortID, cfg UARTConfig) error {
	if err := m.call("uart.Install", port); err != nil {
		return err
	}
	m.up(fmt.Sprintf("uart%d", port))
	return nil
}

func (m mockUART) Uninstall(port UARTPortID) error {
	if err := m.call("uart.Uninstall", port); err != nil {
		return err
	}
	m.down(fmt.Sprintf("uart%d", port))
	return nil
}

func (m mockUART) Configure(port UARTPortID, cfg UARTConfig) error {
	return m.call("uart.Configure", port)
}

func (m mockUART) RouteLine(port UARTPortID, line UARTLine, pin periman.Pin) error {
	if err := m.call("uart.RouteLine", port, " ", line); err != nil {
		return err
	}
	m.up(fmt.Sprintf("uart%d.%s", port, line))
	return nil
}

func (m mockUART) UnrouteLine(port UARTPortID, line UARTLine, pin periman.Pin) error {
	if err := m.call("uart.UnrouteLine", port, " ", line); err != nil {
		return err
	}
	m.down(fmt.Sprintf("uart%d.%s", port, line))
	return nil
}

func (m mockUART) Write(port UARTPortID, p []byte) (int, error) {
	if err := m.call("uart.Write", port); err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.uartOut[port] = append(m.uartOut[port], p...)
	m.mu.Unlock()
	return len(p), nil
}

func (m mockUART) Read(port UARTPortID, p []byte, timeout time.Duration) (int, error) {
	if err := m.call("uart.Read", port); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := copy(p, m.uartIn[port])
	m.uartIn[port] = m.uartIn[port][n:]
	return n, nil
}

// ---- Touch: same pads as the second ADC unit

type mockTouch struct{ *mockHW }

func (m mockTouch) PinToPad(pin periman.Pin) (TouchPad, bool) {
	for i, p := range adc1Pins[:8] {
		if p == pin {
			return TouchPad(i), true
		}
	}
	return 0, false
}

func (m mockTouch) NewController() error {
	if err := m.call("touch.NewController"); err != nil {
		return err
	}
	m.up("touch")
	return nil
}

func (m mockTouch) DeleteController() error {
	if err := m.call("touch.DeleteController"); err != nil {
		return err
	}
	m.down("touch")
	return nil
}

func (m mockTouch) NewChannel(pad TouchPad) error {
	if err := m.call("touch.NewChannel", pad); err != nil {
		return err
	}
	m.up(fmt.Sprintf("touch%d", pad))
	return nil
}

func (m mockTouch) DeleteChannel(pad TouchPad) error {
	if err := m.call("touch.DeleteChannel", pad); err != nil {
		return err
	}
	m.down(fmt.Sprintf("touch%d", pad))
	return nil
}

func (m mockTouch) Read(pad TouchPad) (TouchValue, error) {
	return TouchValue(1000 + uint32(pad)), m.call("touch.Read", pad)
}

func (m mockTouch) SetThreshold(pad TouchPad, threshold TouchValue) error {
	return m.call("touch.SetThreshold", pad)
}

// ---- SD/MMC

const mockSectorSize = 512

type mockSDMMC struct{ *mockHW }

func (m mockSDMMC) SlotCount() int { return 2 }

func (m mockSDMMC) Init(slot SDMMCSlot, pins SDMMCPins, width int, freq physic.Frequency) (SDMMCCard, error) {
	if err := m.call("sdmmc.Init", slot, " ", width); err != nil {
		return SDMMCCard{}, err
	}
	m.up(fmt.Sprintf("sdmmc%d", slot))
	return SDMMCCard{Sectors: 64, SectorSize: mockSectorSize, Frequency: freq}, nil
}

func (m mockSDMMC) Deinit(slot SDMMCSlot) error {
	if err := m.call("sdmmc.Deinit", slot); err != nil {
		return err
	}
	m.down(fmt.Sprintf("sdmmc%d", slot))
	return nil
}

func (m mockSDMMC) ReadBlocks(slot SDMMCSlot, sector uint64, buf []byte) error {
	if err := m.call("sdmmc.ReadBlocks", slot); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < len(buf)/mockSectorSize; i++ {
		copy(buf[i*mockSectorSize:(i+1)*mockSectorSize], m.sectors[sector+uint64(i)])
	}
	return nil
}

func (m mockSDMMC) WriteBlocks(slot SDMMCSlot, sector uint64, buf []byte) error {
	if err := m.call("sdmmc.WriteBlocks", slot); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < len(buf)/mockSectorSize; i++ {
		m.sectors[sector+uint64(i)] = append([]byte(nil), buf[i*mockSectorSize:(i+1)*mockSectorSize]...)
	}
	return nil
}

// ---- Ethernet: RMII data lines on the usual ESP32 pins

var mockRMIIPins = []periman.Pin{19, 21, 22, 25, 26, 27}

type mockEthernet struct{ *mockHW }

func (m mockEthernet) RMIIDataPins() []periman.Pin { return mockRMIIPins }

func (m mockEthernet) start(op string) (EthernetHandle, error) {
	if err := m.call(op); err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.nextEth++
	h := m.nextEth
	m.mu.Unlock()
	m.up(fmt.Sprintf("eth%d", h))
	return h, nil
}

func (m mockEthernet) StartRMII(cfg EthernetRMIIConfig) (EthernetHandle, error) {
	return m.start("eth.StartRMII")
}

func (m mockEthernet) StartSPI(bus SPIBusID, cfg EthernetSPIConfig) (EthernetHandle, error) {
	return m.start("eth.StartSPI")
}

func (m mockEthernet) Stop(h EthernetHandle) error {
	if err := m.call("eth.Stop", h); err != nil {
		return err
	}
	m.down(fmt.Sprintf("eth%d", h))
	return nil
}

func (m mockEthernet) HardwareAddr(h EthernetHandle) (net.HardwareAddr, error) {
	return net.HardwareAddr{0x02, 0, 0, 0, 0, byte(h)}, m.call("eth.HardwareAddr", h)
}

func (m mockEthernet) LinkUp(h EthernetHandle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.linkUp
}

// ---- USB: D-/D+ on 19/20 like the S2 and S3

type mockUSB struct{ *mockHW }

func (m mockUSB) Pins() (periman.Pin, periman.Pin, bool) { return 19, 20, true }

func (m mockUSB) Enable() error {
	if err := m.call("usb.Enable"); err != nil {
		return err
	}
	m.up("usb")
	return nil
}

func (m mockUSB) Disable() error {
	if err := m.call("usb.Disable"); err != nil {
		return err
	}
	m.down("usb")
	return nil
}

func (m mockUSB) Connected() bool { return m.isUp("usb") }

// ---- I2S: written samples loop back to the read side

type mockI2S struct{ *mockHW }

func (m mockI2S) PortCount() int { return 2 }

func (m mockI2S) Init(port I2SPort, cfg I2SConfig) error {
	if err := m.call("i2s.Init", port, " ", cfg.Mode); err != nil {
		return err
	}
	m.up(fmt.Sprintf("i2s%d", port))
	return nil
}

func (m mockI2S) Deinit(port I2SPort) error {
	if err := m.call("i2s.Deinit", port); err != nil {
		return err
	}
	m.down(fmt.Sprintf("i2s%d", port))
	return nil
}

func (m mockI2S) Write(port I2SPort, buf []byte) (int, error) {
	if err := m.call("i2s.Write", port); err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.i2sData[port] = append(m.i2sData[port], buf...)
	m.mu.Unlock()
	return len(buf), nil
}

func (m mockI2S) Read(port I2SPort, buf []byte) (int, error) {
	if err := m.call("i2s.Read", port); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := copy(buf, m.i2sData[port])
	m.i2sData[port] = m.i2sData[port][n:]
	return n, nil
}

// ---- Sigma-delta

type mockSigmaDelta struct{ *mockHW }

func (m mockSigmaDelta) ChannelCount() int { return 2 }

func (m mockSigmaDelta) Configure(ch SigmaDeltaChannelID, pin periman.Pin, freq physic.Frequency) (physic.Frequency, error) {
	if err := m.call("sigmadelta.Configure", ch); err != nil {
		return 0, err
	}
	m.up(fmt.Sprintf("sigmadelta%d", ch))
	return freq, nil
}

func (m mockSigmaDelta) SetDuty(ch SigmaDeltaChannelID, duty uint8) error {
	return m.call("sigmadelta.SetDuty", ch, " ", duty)
}

func (m mockSigmaDelta) Stop(ch SigmaDeltaChannelID) error {
	if err := m.call("sigmadelta.Stop", ch); err != nil {
		return err
	}
	m.down(fmt.Sprintf("sigmadelta%d", ch))
	return nil
}

// resetDrivers drops every driver instance so each test starts cold
func resetDrivers() {
	resetADC()
	resetTouch()
	adcCont = &ADCContinuous{}
	usbDevice = &USB{dm: periman.NoPin, dp: periman.NoPin}

	i2cBuses.mu.Lock()
	i2cBuses.buses = [maxI2CBuses]*I2CBus{}
	i2cBuses.mu.Unlock()
	i2cSlaves.mu.Lock()
	i2cSlaves.slaves = [maxI2CBuses]*I2CSlave{}
	i2cSlaves.mu.Unlock()
	spiBuses.mu.Lock()
	spiBuses.buses = [maxSPIBuses]*SPIBus{}
	spiBuses.mu.Unlock()
	uartPorts.mu.Lock()
	uartPorts.ports = [maxUARTPorts]*UARTPort{}
	uartPorts.mu.Unlock()
	sdmmcHosts.mu.Lock()
	sdmmcHosts.slots = [maxSDMMCSlots]*SDMMC{}
	sdmmcHosts.mu.Unlock()
	ledcChannels.mu.Lock()
	ledcChannels.used = 0
	ledcChannels.mu.Unlock()
	sigmaDeltaChannels.mu.Lock()
	sigmaDeltaChannels.used = 0
	sigmaDeltaChannels.mu.Unlock()
	i2sPorts.mu.Lock()
	i2sPorts.ports = [maxI2SPorts]*I2S{}
	i2sPorts.mu.Unlock()
}

// setupTest installs a fresh registry for chip and mock drivers for every
// peripheral.
func setupTestChip(t *testing.T, chip periman.Chip) *mockHW {
	t.Helper()
	m := newMockHW()
	SetPinRegistry(periman.New(chip))
	SetGPIODriver(mockGPIO{m})
	SetADCDriver(mockADC{m})
	SetADCContinuousDriver(mockADCContinuous{m})
	SetDACDriver(mockDAC{m})
	SetLEDCDriver(mockLEDC{m})
	SetRMTDriver(mockRMT{m})
	SetI2CDriver(mockI2C{m})
	SetI2CSlaveDriver(mockI2CSlave{m})
	SetSPIDriver(mockSPI{m})
	SetUARTDriver(mockUART{m})
	SetTouchDriver(mockTouch{m})
	SetSDMMCDriver(mockSDMMC{m})
	SetEthernetDriver(mockEthernet{m})
	SetUSBDriver(mockUSB{m})
	SetI2SDriver(mockI2S{m})
	SetSigmaDeltaDriver(mockSigmaDelta{m})
	resetDrivers()
	return m
}

func setupTest(t *testing.T) *mockHW {
	t.Helper()
	return setupTestChip(t, periman.ESP32)
}

// ownerType returns the bus type owning pin
func ownerType(pin periman.Pin) periman.BusType {
	return MustPins().GetPinBusType(pin)
}

// expectQuiescent fails unless no pin is owned and no hardware is up
func expectQuiescent(t *testing.T, m *mockHW) {
	t.Helper()
	if owned := MustPins().Snapshot(); len(owned) != 0 {
		for _, p := range owned {
			t.Errorf("pin %d still owned by %s", p.Pin, p.Type)
		}
	}
	if live := m.liveKeys(); len(live) != 0 {
		t.Errorf("hardware still up: %v", live)
	}
}
