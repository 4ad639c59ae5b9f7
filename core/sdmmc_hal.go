package core

import (
	"periph.io/x/conn/v3/physic"

	"gohal/periman"
)

// SDMMCSlot identifies an SD/MMC host slot
type SDMMCSlot uint8

// SDMMCPins are the host's lines. D1-D3 are NoPin in 1-bit mode.
type SDMMCPins struct {
	CLK, CMD       periman.Pin
	D0, D1, D2, D3 periman.Pin
}

// Width returns the bus width implied by the data pins, 0 if invalid
func (p SDMMCPins) Width() int {
	if p.CLK == periman.NoPin || p.CMD == periman.NoPin || p.D0 == periman.NoPin {
		return 0
	}
	n := 0
	for _, d := range []periman.Pin{p.D1, p.D2, p.D3} {
		if d != periman.NoPin {
			n++
		}
	}
	switch n {
	case 0:
		return 1
	case 3:
		return 4
	}
	return 0
}

// SDMMCCard describes a mounted card
type SDMMCCard struct {
	Sectors    uint64
	SectorSize int
	Frequency  physic.Frequency
}

// SDMMCDriver is implemented by target code to drive the SD/MMC host.
type SDMMCDriver interface {
	SlotCount() int
	// Init routes pins, brings the host up and probes the card
	Init(slot SDMMCSlot, pins SDMMCPins, width int, freq physic.Frequency) (SDMMCCard, error)
	Deinit(slot SDMMCSlot) error
	ReadBlocks(slot SDMMCSlot, sector uint64, buf []byte) error
	WriteBlocks(slot SDMMCSlot, sector uint64, buf []byte) error
}

var sdmmcDriver SDMMCDriver

// SetSDMMCDriver is called by target code to register its SD/MMC driver
func SetSDMMCDriver(d SDMMCDriver) {
	sdmmcDriver = d
}

// MustSDMMC returns the SD/MMC driver or panics if missing
func MustSDMMC() SDMMCDriver {
	if sdmmcDriver == nil {
		panic("SDMMC driver not configured")
	}
	return sdmmcDriver
}
