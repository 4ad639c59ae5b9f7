// I2S audio support
// Pins are set per mode before Begin; the lines claimed depend on the mode.
package core

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"

	"gohal/debug"
	"gohal/periman"
)

const maxI2SPorts = 2

// I2S is one audio controller
type I2S struct {
	Port I2SPort

	opMu sync.Mutex

	mu      sync.Mutex
	running bool
	pins    I2SPins
	pdmTx   I2SPDMPins
	pdmRx   I2SPDMPins
	cfg     I2SConfig
}

var i2sPorts struct {
	mu    sync.Mutex
	ports [maxI2SPorts]*I2S
}

func noPDMPins() I2SPDMPins {
	no := periman.NoPin
	return I2SPDMPins{CLK: no, Data: [4]periman.Pin{no, no, no, no}}
}

// I2SBus returns controller n
func I2SBus(n I2SPort) (*I2S, error) {
	if int(n) >= MustI2S().PortCount() || n >= maxI2SPorts {
		return nil, errors.Wrapf(ErrInvalidBusNum, "i2s%d", n)
	}
	i2sPorts.mu.Lock()
	defer i2sPorts.mu.Unlock()
	if i2sPorts.ports[n] == nil {
		no := periman.NoPin
		i2sPorts.ports[n] = &I2S{
			Port:  n,
			pins:  I2SPins{MCLK: no, BCLK: no, WS: no, DOut: no, DIn: no},
			pdmTx: noPDMPins(),
			pdmRx: noPDMPins(),
		}
	}
	return i2sPorts.ports[n], nil
}

// owned lists the lines cfg claims, tagged for its mode
func (cfg I2SConfig) owned() []ownedPin {
	p, d := cfg.Pins, cfg.PDM
	switch cfg.Mode {
	case I2SModeStd:
		return []ownedPin{
			{p.MCLK, periman.BusTypeI2SStdMCLK},
			{p.BCLK, periman.BusTypeI2SStdBCLK},
			{p.WS, periman.BusTypeI2SStdWS},
			{p.DOut, periman.BusTypeI2SStdDOut},
			{p.DIn, periman.BusTypeI2SStdDIn},
		}
	case I2SModeTDM:
		return []ownedPin{
			{p.MCLK, periman.BusTypeI2STdmMCLK},
			{p.BCLK, periman.BusTypeI2STdmBCLK},
			{p.WS, periman.BusTypeI2STdmWS},
			{p.DOut, periman.BusTypeI2STdmDOut},
			{p.DIn, periman.BusTypeI2STdmDIn},
		}
	case I2SModePDMTx:
		return []ownedPin{
			{d.CLK, periman.BusTypeI2SPdmTxCLK},
			{d.Data[0], periman.BusTypeI2SPdmTxDOut0},
			{d.Data[1], periman.BusTypeI2SPdmTxDOut1},
		}
	case I2SModePDMRx:
		return []ownedPin{
			{d.CLK, periman.BusTypeI2SPdmRxCLK},
			{d.Data[0], periman.BusTypeI2SPdmRxDIn0},
			{d.Data[1], periman.BusTypeI2SPdmRxDIn1},
			{d.Data[2], periman.BusTypeI2SPdmRxDIn2},
			{d.Data[3], periman.BusTypeI2SPdmRxDIn3},
		}
	}
	return nil
}

// SetPins sets the STD/TDM lines used by the next Begin
func (s *I2S) SetPins(pins I2SPins) {
	s.mu.Lock()
	s.pins = pins
	s.mu.Unlock()
}

// SetPinsPDMTx sets the PDM transmit lines. dout1 may be NoPin.
func (s *I2S) SetPinsPDMTx(clk, dout0, dout1 periman.Pin) {
	s.mu.Lock()
	s.pdmTx = noPDMPins()
	s.pdmTx.CLK = clk
	s.pdmTx.Data[0], s.pdmTx.Data[1] = dout0, dout1
	s.mu.Unlock()
}

// SetPinsPDMRx sets the PDM receive lines. Unused data lines are NoPin.
func (s *I2S) SetPinsPDMRx(clk periman.Pin, din ...periman.Pin) {
	s.mu.Lock()
	s.pdmRx = noPDMPins()
	s.pdmRx.CLK = clk
	copy(s.pdmRx.Data[:], din)
	s.mu.Unlock()
}

// config builds the channel config for mode from the stored pins
func (s *I2S) config(mode I2SMode, rate physic.Frequency, bits uint8, slot I2SSlotMode) (I2SConfig, error) {
	s.mu.Lock()
	cfg := I2SConfig{Mode: mode, SampleRate: rate, Bits: bits, Slot: slot, Pins: s.pins}
	switch mode {
	case I2SModePDMTx:
		cfg.PDM = s.pdmTx
	case I2SModePDMRx:
		cfg.PDM = s.pdmRx
	}
	s.mu.Unlock()

	no := periman.NoPin
	switch mode {
	case I2SModeStd, I2SModeTDM:
		if cfg.Pins.BCLK == no || cfg.Pins.WS == no {
			return cfg, errors.Wrapf(ErrInvalidArg, "i2s%d: %s needs BCLK and WS", s.Port, mode)
		}
		cfg.TX, cfg.RX = cfg.Pins.DOut != no, cfg.Pins.DIn != no
	case I2SModePDMTx:
		cfg.TX = true
	case I2SModePDMRx:
		cfg.RX = true
	default:
		return cfg, errors.Wrapf(ErrInvalidArg, "i2s%d: mode %d", s.Port, mode)
	}
	if mode == I2SModePDMTx || mode == I2SModePDMRx {
		if cfg.PDM.CLK == no || cfg.PDM.Data[0] == no {
			return cfg, errors.Wrapf(ErrInvalidArg, "i2s%d: %s needs CLK and a data line", s.Port, mode)
		}
	}
	if !cfg.TX && !cfg.RX {
		return cfg, errors.Wrapf(ErrInvalidArg, "i2s%d: no data line set", s.Port)
	}
	if rate <= 0 {
		return cfg, errors.Wrapf(ErrInvalidArg, "i2s%d: sample rate %s", s.Port, rate)
	}
	switch bits {
	case 8, 16, 24, 32:
	default:
		return cfg, errors.Wrapf(ErrInvalidArg, "i2s%d: %d bits per sample", s.Port, bits)
	}
	if slot != I2SMono && slot != I2SStereo {
		return cfg, errors.Wrapf(ErrInvalidArg, "i2s%d: slot mode %d", s.Port, slot)
	}
	return cfg, nil
}

// deinit deletes the channels and releases every line. Safe to call more
// than once.
func (s *I2S) deinit() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cfg := s.cfg
	s.mu.Unlock()

	if err := MustI2S().Deinit(s.Port); err != nil {
		s.mu.Lock()
		s.running = true
		s.mu.Unlock()
		return errors.Wrapf(err, "i2s%d: deinit", s.Port)
	}
	return releaseOwned(s, cfg.owned()...)
}

// Begin starts the controller in mode with the pins set for that mode.
// TX and RX channels are created for whichever data lines are present.
func (s *I2S) Begin(mode I2SMode, rate physic.Frequency, bits uint8, slot I2SSlotMode) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.Running() {
		return errors.Wrapf(ErrBusActive, "i2s%d", s.Port)
	}
	cfg, err := s.config(mode, rate, bits, slot)
	if err != nil {
		return err
	}

	bringUp := func() error {
		if err := MustI2S().Init(s.Port, cfg); err != nil {
			return err
		}
		s.mu.Lock()
		s.running = true
		s.cfg = cfg
		s.mu.Unlock()
		return nil
	}
	a := MustPins().NewAttachment(s, instanceDeinit)
	for _, p := range cfg.owned() {
		a.Pin(p.pin, p.typ, int8(s.Port), -1)
	}
	if err := a.Run(bringUp); err != nil {
		debug.Errorf("i2s%d %s init failed: %v", s.Port, mode, err)
		return errors.Wrapf(err, "i2s%d: begin", s.Port)
	}
	debug.Infof("i2s%d: %s %s %d-bit", s.Port, mode, rate, bits)
	return nil
}

// End stops the controller and releases its lines
func (s *I2S) End() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	err := releaseOwned(s, cfg.owned()...)
	if s.Running() {
		err = multierr.Append(err, s.deinit())
	}
	return err
}

// Running reports whether the controller is started
func (s *I2S) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Mode returns the mode of the running controller
func (s *I2S) Mode() (I2SMode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Mode, s.running
}

func (s *I2S) checkDir(tx bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return errors.Wrapf(ErrBusInactive, "i2s%d", s.Port)
	}
	if tx && !s.cfg.TX {
		return errors.Wrapf(ErrNotCapable, "i2s%d: no TX channel", s.Port)
	}
	if !tx && !s.cfg.RX {
		return errors.Wrapf(ErrNotCapable, "i2s%d: no RX channel", s.Port)
	}
	return nil
}

// Write queues samples for output
func (s *I2S) Write(buf []byte) (int, error) {
	if err := s.checkDir(true); err != nil {
		return 0, err
	}
	n, err := MustI2S().Write(s.Port, buf)
	return n, errors.Wrapf(err, "i2s%d: write", s.Port)
}

// Read fills buf with received samples
func (s *I2S) Read(buf []byte) (int, error) {
	if err := s.checkDir(false); err != nil {
		return 0, err
	}
	n, err := MustI2S().Read(s.Port, buf)
	return n, errors.Wrapf(err, "i2s%d: read", s.Port)
}
