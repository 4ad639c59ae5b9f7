package mcu

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// PinOwner is one pin_bus report
type PinOwner struct {
	Pin     int
	Type    string
	BusNum  int
	Channel int
	Extra   string
}

func (p PinOwner) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "GPIO %3d : %s", p.Pin, p.Type)
	if p.BusNum >= 0 {
		fmt.Fprintf(&b, "[%d]", p.BusNum)
	}
	if p.Channel >= 0 {
		fmt.Fprintf(&b, ",%d", p.Channel)
	}
	if p.Extra != "" {
		fmt.Fprintf(&b, " (%s)", p.Extra)
	}
	return b.String()
}

func (m *MCU) pinOwner(r Response) PinOwner {
	typ := r.Int("type")
	name, ok := m.dict.EnumName("bus_type", typ)
	if !ok {
		name = "type " + strconv.Itoa(typ)
	}
	return PinOwner{
		Pin:     r.Int("pin"),
		Type:    name,
		BusNum:  r.Int("bus_num"),
		Channel: r.Int("channel"),
		Extra:   r.String("extra"),
	}
}

// QueryPin asks who owns pin
func (m *MCU) QueryPin(ctx context.Context, pin int) (PinOwner, error) {
	rs, err := m.Query(ctx, "query_pin", map[string]string{"pin": strconv.Itoa(pin)}, "pin_bus")
	if err != nil {
		return PinOwner{}, err
	}
	return m.pinOwner(rs[len(rs)-1]), nil
}

// QueryPins lists every owned pin
func (m *MCU) QueryPins(ctx context.Context) ([]PinOwner, error) {
	rs, err := m.Query(ctx, "query_pins", nil, "pins_done")
	if err != nil {
		return nil, err
	}
	var out []PinOwner
	for _, r := range rs {
		if r.Name == "pin_bus" {
			out = append(out, m.pinOwner(r))
		}
	}
	if want := rs[len(rs)-1].Int("count"); want != len(out) {
		return out, errors.Errorf("mcu: expected %d pins, got %d", want, len(out))
	}
	return out, nil
}

// ClearPin releases pin, tearing down whatever owned it
func (m *MCU) ClearPin(ctx context.Context, pin int) error {
	rs, err := m.Query(ctx, "clear_pin", map[string]string{"pin": strconv.Itoa(pin)}, "pin_cleared")
	if err != nil {
		return err
	}
	if rs[len(rs)-1].Int("ok") != 0 {
		return nil
	}
	// the board follows a failed clear with the reason
	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if r, err := m.Receive(ctx); err == nil {
		if ce := m.asError(r); ce != nil {
			return ce
		}
	}
	return errors.Errorf("mcu: pin %d was not cleared", pin)
}
