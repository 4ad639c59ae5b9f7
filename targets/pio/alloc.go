// Package pio implements the remote-control (RMT) peripheral on RP2040 PIO
// state machines.
package pio

import "github.com/pkg/errors"

// Two PIO blocks with four state machines each
const (
	Blocks        = 2
	MachinesPerIO = 4
)

// ErrNoStateMachine is returned when every state machine is in use
var ErrNoStateMachine = errors.New("pio: no free state machine")

// Slot names one state machine
type Slot struct {
	Block   uint8
	Machine uint8
}

// Allocator hands out state machines round robin so a freed slot is not
// reused immediately.
type Allocator struct {
	used [Blocks][MachinesPerIO]bool
	next int
}

// Alloc claims a free slot
func (a *Allocator) Alloc() (Slot, error) {
	for i := 0; i < Blocks*MachinesPerIO; i++ {
		n := (a.next + i) % (Blocks * MachinesPerIO)
		s := Slot{Block: uint8(n / MachinesPerIO), Machine: uint8(n % MachinesPerIO)}
		if !a.used[s.Block][s.Machine] {
			a.used[s.Block][s.Machine] = true
			a.next = n + 1
			return s, nil
		}
	}
	return Slot{}, ErrNoStateMachine
}

// Free releases s. Freeing an unused slot is a no-op.
func (a *Allocator) Free(s Slot) {
	if s.Block < Blocks && s.Machine < MachinesPerIO {
		a.used[s.Block][s.Machine] = false
	}
}

// InUse reports the allocation map
func (a *Allocator) InUse() [Blocks][MachinesPerIO]bool {
	return a.used
}
