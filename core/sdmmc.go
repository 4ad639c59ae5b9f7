// SD/MMC host support
package core

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"

	"gohal/debug"
	"gohal/periman"
)

const (
	SDMMCDefaultFrequency = 20 * physic.MegaHertz

	maxSDMMCSlots = 2
)

// SDMMC is one host slot with a card
type SDMMC struct {
	Slot SDMMCSlot

	opMu sync.Mutex

	mu      sync.Mutex
	running bool
	pins    SDMMCPins
	card    SDMMCCard
}

var sdmmcHosts struct {
	mu    sync.Mutex
	slots [maxSDMMCSlots]*SDMMC
}

// SDMMCHost returns slot n
func SDMMCHost(n SDMMCSlot) (*SDMMC, error) {
	if int(n) >= MustSDMMC().SlotCount() || n >= maxSDMMCSlots {
		return nil, errors.Wrapf(ErrInvalidBusNum, "sdmmc%d", n)
	}
	sdmmcHosts.mu.Lock()
	defer sdmmcHosts.mu.Unlock()
	if sdmmcHosts.slots[n] == nil {
		sdmmcHosts.slots[n] = &SDMMC{Slot: n}
	}
	return sdmmcHosts.slots[n], nil
}

func (p SDMMCPins) owned() []ownedPin {
	return []ownedPin{
		{p.CLK, periman.BusTypeSDMMCCLK},
		{p.CMD, periman.BusTypeSDMMCCMD},
		{p.D0, periman.BusTypeSDMMCD0},
		{p.D1, periman.BusTypeSDMMCD1},
		{p.D2, periman.BusTypeSDMMCD2},
		{p.D3, periman.BusTypeSDMMCD3},
	}
}

// deinit unmounts the card and releases every line.
func (s *SDMMC) deinit() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	pins := s.pins
	s.mu.Unlock()

	if err := MustSDMMC().Deinit(s.Slot); err != nil {
		s.mu.Lock()
		s.running = true
		s.mu.Unlock()
		return errors.Wrapf(err, "sdmmc%d: deinit", s.Slot)
	}
	return releaseOwned(s, pins.owned()...)
}

// Begin brings the host up in 1-bit or 4-bit mode, depending on which data
// pins are given, and probes the card. A zero freq selects 20 MHz.
func (s *SDMMC) Begin(pins SDMMCPins, freq physic.Frequency) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.Running() {
		return errors.Wrapf(ErrBusActive, "sdmmc%d", s.Slot)
	}
	width := pins.Width()
	if width == 0 {
		return errors.Wrapf(ErrInvalidArg, "sdmmc%d: pins %+v", s.Slot, pins)
	}
	if freq <= 0 {
		freq = SDMMCDefaultFrequency
	}

	bringUp := func() error {
		card, err := MustSDMMC().Init(s.Slot, pins, width, freq)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.running = true
		s.pins = pins
		s.card = card
		s.mu.Unlock()
		return nil
	}
	a := MustPins().NewAttachment(s, instanceDeinit)
	for _, p := range pins.owned() {
		a.Pin(p.pin, p.typ, int8(s.Slot), -1)
	}
	if err := a.Run(bringUp); err != nil {
		debug.Errorf("sdmmc%d init failed: %v", s.Slot, err)
		return errors.Wrapf(err, "sdmmc%d: begin", s.Slot)
	}
	debug.Infof("sdmmc%d: %d-bit, %d sectors", s.Slot, width, s.Card().Sectors)
	return nil
}

// End unmounts the card and releases the pins
func (s *SDMMC) End() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.mu.Lock()
	pins := s.pins
	s.mu.Unlock()
	err := releaseOwned(s, pins.owned()...)
	if s.Running() {
		err = multierr.Append(err, s.deinit())
	}
	return err
}

// Running reports whether a card is mounted
func (s *SDMMC) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Card returns the probed card, zero when stopped
func (s *SDMMC) Card() SDMMCCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return SDMMCCard{}
	}
	return s.card
}

func (s *SDMMC) checkIO(sector uint64, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return errors.Wrapf(ErrBusInactive, "sdmmc%d", s.Slot)
	}
	size := s.card.SectorSize
	if size <= 0 || len(buf)%size != 0 {
		return errors.Wrapf(ErrInvalidArg, "sdmmc%d: %d bytes is not a whole number of sectors", s.Slot, len(buf))
	}
	if sector+uint64(len(buf)/size) > s.card.Sectors {
		return errors.Wrapf(ErrInvalidArg, "sdmmc%d: sector %d out of range", s.Slot, sector)
	}
	return nil
}

// ReadBlocks reads whole sectors starting at sector
func (s *SDMMC) ReadBlocks(sector uint64, buf []byte) error {
	if err := s.checkIO(sector, buf); err != nil {
		return err
	}
	return errors.Wrapf(MustSDMMC().ReadBlocks(s.Slot, sector, buf), "sdmmc%d: read sector %d", s.Slot, sector)
}

// WriteBlocks writes whole sectors starting at sector
func (s *SDMMC) WriteBlocks(sector uint64, buf []byte) error {
	if err := s.checkIO(sector, buf); err != nil {
		return err
	}
	return errors.Wrapf(MustSDMMC().WriteBlocks(s.Slot, sector, buf), "sdmmc%d: write sector %d", s.Slot, sector)
}
