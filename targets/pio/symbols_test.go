package pio

import (
	"testing"

	"periph.io/x/conn/v3/physic"

	"gohal/core"
)

func TestEncodeLevel(t *testing.T) {
	tests := []struct {
		level    bool
		duration uint16
		want     uint32
	}{
		{true, 100, (100-txOverhead)<<1 | 1},
		{false, 100, (100 - txOverhead) << 1},
		{true, 2, 1},
		{false, txOverhead, 0},
	}
	for _, tt := range tests {
		if got := EncodeLevel(tt.level, tt.duration); got != tt.want {
			t.Errorf("EncodeLevel(%v, %d): expected %#x, got %#x", tt.level, tt.duration, tt.want, got)
		}
	}
}

func TestEncodeSymbolsStopsAtZero(t *testing.T) {
	symbols := []core.RMTSymbol{
		{Duration0: 10, Level0: true, Duration1: 20},
		{Duration0: 30, Level0: true, Duration1: 0},
		{Duration0: 40, Level0: true, Duration1: 40},
	}
	words := EncodeSymbols(symbols)
	if len(words) != 3 {
		t.Fatalf("Expected 3 words, got %d", len(words))
	}
	if words[2] != EncodeLevel(true, 30) {
		t.Errorf("Unexpected last word %#x", words[2])
	}
	if n := len(EncodeSymbols([]core.RMTSymbol{{}})); n != 0 {
		t.Errorf("Expected nothing for a leading zero, got %d words", n)
	}
}

func TestDecodeCount(t *testing.T) {
	if d, ok := DecodeCount(IdleTicks - 250); !ok || d != 250 {
		t.Errorf("Expected 250, got %d (ok=%v)", d, ok)
	}
	if _, ok := DecodeCount(0xffffffff); ok {
		t.Error("Expected a wrapped count to mark idle")
	}
}

// counts builds the receive FIFO contents for the given durations
func counts(durations ...uint16) []uint32 {
	out := make([]uint32, len(durations))
	for i, d := range durations {
		out[i] = IdleTicks - uint32(d)
	}
	return out
}

const idle = 0xffffffff

func TestAssemblerFrame(t *testing.T) {
	buf := make([]core.RMTSymbol, 8)
	a := NewAssembler(buf)

	input := append([]uint32{idle}, counts(0)...) // idle high, nothing low
	input = append(input, counts(9000, 4500, 560, 560)...)
	input = append(input, idle)
	done := false
	for _, x := range input {
		done = a.Add(x)
	}
	if !done {
		t.Fatal("Expected the frame to complete at idle")
	}
	if a.Len() != 2 {
		t.Fatalf("Expected 2 symbols, got %d", a.Len())
	}
	want := core.RMTSymbol{Duration0: 9000, Level0: true, Duration1: 4500, Level1: false}
	if buf[0] != want {
		t.Errorf("Expected %+v, got %+v", want, buf[0])
	}
}

func TestAssemblerTrailingHalf(t *testing.T) {
	buf := make([]core.RMTSymbol, 4)
	a := NewAssembler(buf)
	for _, x := range append(counts(100, 200, 300), idle) {
		a.Add(x)
	}
	if a.Len() != 2 {
		t.Fatalf("Expected 2 symbols, got %d", a.Len())
	}
	if buf[1].Duration0 != 300 || buf[1].Duration1 != 0 {
		t.Errorf("Expected a half symbol, got %+v", buf[1])
	}
}

func TestAssemblerFull(t *testing.T) {
	buf := make([]core.RMTSymbol, 1)
	a := NewAssembler(buf)
	if a.Add(counts(10)[0]) {
		t.Fatal("Completed after one level")
	}
	if !a.Add(counts(20)[0]) {
		t.Fatal("Expected completion when the buffer is full")
	}
	if !a.Add(counts(30)[0]) || a.Len() != 1 {
		t.Errorf("Expected no more symbols after completion, got %d", a.Len())
	}
}

func TestClockDivider(t *testing.T) {
	tests := []struct {
		name       string
		resolution physic.Frequency
		cycles     uint32
		whole      uint16
		frac       uint8
		wantErr    bool
	}{
		{"1MHz", physic.MegaHertz, 1, 125, 0, false},
		{"1MHz rx", physic.MegaHertz, 2, 62, 128, false},
		{"10MHz", 10 * physic.MegaHertz, 1, 12, 128, false},
		{"too fast", 200 * physic.MegaHertz, 1, 0, 0, true},
		{"too slow", physic.Hertz, 1, 0, 0, true},
		{"zero", 0, 1, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			whole, frac, err := ClockDivider(125000000, tt.resolution, tt.cycles)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if err == nil && (whole != tt.whole || frac != tt.frac) {
				t.Errorf("Expected %d+%d/256, got %d+%d/256", tt.whole, tt.frac, whole, frac)
			}
		})
	}
}
