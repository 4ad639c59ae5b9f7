//go:build rp2040

package pio

import (
	"machine"
	"sync"
	"time"

	"github.com/pkg/errors"
	rp2pio "github.com/tinygo-org/pio/rp2-pio"
	"periph.io/x/conn/v3/physic"

	"gohal/core"
	"gohal/periman"
)

// Both programs live in every block at fixed origins so their jump targets
// can be assembled up front.
const (
	txOrigin = 0
	rxOrigin = 4
)

// buildTxProgram outputs one level per word: bit 0 to the pin, then holds it
// for the remaining 31 bits worth of cycles.
func buildTxProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),                    // 0: pull block
		asm.Out(rp2pio.OutDestPins, 1).Encode(),           // 1: out pins, 1
		asm.Out(rp2pio.OutDestX, 31).Encode(),             // 2: out x, 31
		asm.Jmp(txOrigin+3, rp2pio.JmpXNZeroDec).Encode(), // 3: jmp x--, 3
		// .wrap
	}
}

// buildRxProgram measures alternating high and low levels on the jump pin,
// two cycles per count, and pushes what is left of the count each time.
func buildRxProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		asm.Pull(false, true).Encode(),        // 0: pull block
		asm.Out(rp2pio.OutDestY, 32).Encode(), // 1: out y, 32 (idle count)
		// .wrap_target
		asm.Mov(rp2pio.MovDestX, rp2pio.MovSrcY).Encode(), // 2: mov x, y
		asm.Jmp(rxOrigin+5, rp2pio.JmpPinInput).Encode(),  // 3: jmp pin, 5
		asm.Jmp(rxOrigin+6, rp2pio.JmpAlways).Encode(),    // 4: jmp 6
		asm.Jmp(rxOrigin+3, rp2pio.JmpXNZeroDec).Encode(), // 5: jmp x--, 3
		asm.In(rp2pio.InSrcX, 32).Encode(),                // 6: in x, 32
		asm.Push(false, true).Encode(),                    // 7: push block
		asm.Mov(rp2pio.MovDestX, rp2pio.MovSrcY).Encode(), // 8: mov x, y
		asm.Jmp(rxOrigin+11, rp2pio.JmpPinInput).Encode(), // 9: jmp pin, 11
		asm.Jmp(rxOrigin+9, rp2pio.JmpXNZeroDec).Encode(), // 10: jmp x--, 9
		asm.In(rp2pio.InSrcX, 32).Encode(),                // 11: in x, 32
		asm.Push(false, true).Encode(),                    // 12: push block
		// .wrap
	}
}

var blocks = [Blocks]*rp2pio.PIO{rp2pio.PIO0, rp2pio.PIO1}

type rmtChannel struct {
	slot Slot
	sm   rp2pio.StateMachine
	pin  machine.Pin
	dir  core.RMTDirection
}

// RMTDriver implements core.RMTDriver with one state machine per channel
type RMTDriver struct {
	mu       sync.Mutex
	alloc    Allocator
	loaded   [Blocks]bool
	channels map[core.RMTHandle]*rmtChannel
	next     core.RMTHandle
}

func NewRMTDriver() *RMTDriver {
	return &RMTDriver{channels: make(map[core.RMTHandle]*rmtChannel)}
}

func (d *RMTDriver) loadPrograms(block uint8) error {
	if d.loaded[block] {
		return nil
	}
	p := blocks[block]
	if _, err := p.AddProgram(buildTxProgram(), txOrigin); err != nil {
		return errors.Wrapf(err, "pio%d: load tx program", block)
	}
	if _, err := p.AddProgram(buildRxProgram(), rxOrigin); err != nil {
		return errors.Wrapf(err, "pio%d: load rx program", block)
	}
	d.loaded[block] = true
	return nil
}

func (d *RMTDriver) NewChannel(pin periman.Pin, dir core.RMTDirection, resolution physic.Frequency) (core.RMTHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cycles := uint32(1)
	if dir == core.RMTRx {
		cycles = rxCyclesPerTick
	}
	whole, frac, err := ClockDivider(machine.CPUFrequency(), resolution, cycles)
	if err != nil {
		return 0, err
	}
	slot, err := d.alloc.Alloc()
	if err != nil {
		return 0, err
	}
	if err := d.loadPrograms(slot.Block); err != nil {
		d.alloc.Free(slot)
		return 0, err
	}
	p := blocks[slot.Block]
	sm := p.StateMachine(slot.Machine)
	if !sm.TryClaim() {
		d.alloc.Free(slot)
		return 0, errors.Errorf("pio%d sm%d is claimed elsewhere", slot.Block, slot.Machine)
	}

	mp := machine.Pin(pin)
	mp.Configure(machine.PinConfig{Mode: p.PinMode()})
	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetClkDivIntFrac(whole, frac)
	if dir == core.RMTTx {
		cfg.SetOutPins(mp, 1)
		cfg.SetOutShift(true, false, 32)
		cfg.SetWrap(txOrigin+3, txOrigin)
		sm.Init(txOrigin, cfg)
		sm.SetPindirsConsecutive(mp, 1, true)
		sm.SetPinsConsecutive(mp, 1, false)
	} else {
		cfg.SetJmpPin(mp)
		cfg.SetInShift(false, false, 32)
		cfg.SetWrap(rxOrigin+12, rxOrigin+2)
		sm.Init(rxOrigin, cfg)
		sm.SetPindirsConsecutive(mp, 1, false)
	}
	sm.SetEnabled(true)
	if dir == core.RMTRx {
		sm.TxPut(IdleTicks)
	}

	d.next++
	h := d.next
	d.channels[h] = &rmtChannel{slot: slot, sm: sm, pin: mp, dir: dir}
	return h, nil
}

func (d *RMTDriver) channel(h core.RMTHandle, dir core.RMTDirection) (*rmtChannel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.channels[h]
	if !ok {
		return nil, errors.Errorf("rmt handle %d is not open", h)
	}
	if c.dir != dir {
		return nil, errors.Errorf("rmt handle %d has the wrong direction", h)
	}
	return c, nil
}

func (d *RMTDriver) Write(h core.RMTHandle, symbols []core.RMTSymbol) error {
	c, err := d.channel(h, core.RMTTx)
	if err != nil {
		return err
	}
	for _, w := range EncodeSymbols(symbols) {
		for c.sm.IsTxFIFOFull() {
		}
		c.sm.TxPut(w)
	}
	return nil
}

func (d *RMTDriver) Read(h core.RMTHandle, symbols []core.RMTSymbol, timeout time.Duration) (int, error) {
	c, err := d.channel(h, core.RMTRx)
	if err != nil {
		return 0, err
	}
	a := NewAssembler(symbols)
	deadline := time.Now().Add(timeout)
	for {
		for !c.sm.IsRxFIFOEmpty() {
			if a.Add(c.sm.RxGet()) {
				return a.Len(), nil
			}
		}
		if !time.Now().Before(deadline) {
			return a.Len(), nil
		}
		time.Sleep(50 * time.Microsecond)
	}
}

func (d *RMTDriver) DeleteChannel(h core.RMTHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.channels[h]
	if !ok {
		return nil
	}
	c.sm.SetEnabled(false)
	c.sm.ClearFIFOs()
	c.sm.Restart()
	c.sm.Unclaim()
	c.pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	d.alloc.Free(c.slot)
	delete(d.channels, h)
	return nil
}
