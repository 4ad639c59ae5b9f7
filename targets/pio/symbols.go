package pio

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"

	"gohal/core"
)

// A transmit word holds one level in bit 0 and its hold count in bits 1..31.
// The program spends txOverhead cycles per word outside the hold loop, so the
// count is the duration minus that overhead. One PIO cycle is one tick.
const txOverhead = 4

// MinDuration is the shortest level the transmitter can produce, in ticks
const MinDuration = txOverhead

// rxCyclesPerTick is the length of the receive program's counting loop
const rxCyclesPerTick = 2

// IdleTicks is the level length the receiver treats as end of frame
const IdleTicks = 0xffff

// EncodeLevel packs one level of a symbol into a transmit word
func EncodeLevel(level bool, duration uint16) uint32 {
	var n uint32
	if duration > txOverhead {
		n = uint32(duration) - txOverhead
	}
	w := n << 1
	if level {
		w |= 1
	}
	return w
}

// EncodeSymbols converts symbols to transmit words, stopping at the first
// zero duration
func EncodeSymbols(symbols []core.RMTSymbol) []uint32 {
	words := make([]uint32, 0, 2*len(symbols))
	for _, s := range symbols {
		if s.Duration0 == 0 {
			break
		}
		words = append(words, EncodeLevel(s.Level0, s.Duration0))
		if s.Duration1 == 0 {
			break
		}
		words = append(words, EncodeLevel(s.Level1, s.Duration1))
	}
	return words
}

// DecodeCount turns a receive count into a duration. The receive program
// counts x down from IdleTicks while the level holds; when the count runs
// out x wraps below zero, which marks the end of a frame and ok is false.
func DecodeCount(x uint32) (duration uint16, ok bool) {
	if x > IdleTicks {
		return IdleTicks, false
	}
	return uint16(IdleTicks - x), true
}

// Assembler pairs receive counts into symbols. The receiver reports a high
// level then a low level, alternating, starting high.
type Assembler struct {
	symbols []core.RMTSymbol
	high    bool // level of the next count
	halves  int  // levels stored
	done    bool
}

// NewAssembler collects into symbols
func NewAssembler(symbols []core.RMTSymbol) *Assembler {
	return &Assembler{symbols: symbols, high: true}
}

// Add feeds one count. It returns true once the frame is complete, either
// because the buffer is full or an idle level was seen after data. Idle and
// zero-length levels before the first edge are skipped.
func (a *Assembler) Add(x uint32) bool {
	if a.done {
		return true
	}
	level := a.high
	a.high = !a.high
	d, ok := DecodeCount(x)
	if !ok {
		a.done = a.halves > 0
		return a.done
	}
	if d == 0 {
		return false
	}
	i := a.halves / 2
	if i >= len(a.symbols) {
		a.done = true
		return true
	}
	if a.halves%2 == 0 {
		a.symbols[i] = core.RMTSymbol{Duration0: d, Level0: level}
	} else {
		a.symbols[i].Duration1 = d
		a.symbols[i].Level1 = level
	}
	a.halves++
	a.done = a.halves == 2*len(a.symbols)
	return a.done
}

// Len returns the number of symbols collected. A trailing half symbol has
// Duration1 zero.
func (a *Assembler) Len() int {
	return (a.halves + 1) / 2
}

// ClockDivider returns the integer and 1/256 fractional divider that runs a
// state machine at cyclesPerTick*resolution from sysclk.
func ClockDivider(sysclk uint32, resolution physic.Frequency, cyclesPerTick uint32) (whole uint16, frac uint8, err error) {
	hz := uint64(resolution/physic.Hertz) * uint64(cyclesPerTick)
	if hz == 0 || hz > uint64(sysclk) {
		return 0, 0, errors.Errorf("pio: resolution %s out of range", resolution)
	}
	div256 := uint64(sysclk) * 256 / hz
	if div256>>8 > 0xffff {
		return 0, 0, errors.Errorf("pio: resolution %s too low", resolution)
	}
	return uint16(div256 >> 8), uint8(div256), nil
}
