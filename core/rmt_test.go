package core

import (
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"

	"gohal/periman"
)

func TestRMTTxRx(t *testing.T) {
	m := setupTest(t)

	tx, err := RMTInit(18, RMTTx, 10*physic.MegaHertz)
	if err != nil {
		t.Fatalf("RMTInit tx: %v", err)
	}
	rx, err := RMTInit(19, RMTRx, physic.MegaHertz)
	if err != nil {
		t.Fatalf("RMTInit rx: %v", err)
	}
	if ownerType(18) != periman.BusTypeRMTTx || ownerType(19) != periman.BusTypeRMTRx {
		t.Errorf("Unexpected owners %s/%s", ownerType(18), ownerType(19))
	}

	sym := []RMTSymbol{{Duration0: 3, Level0: true, Duration1: 9}}
	if err := tx.Write(sym); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := rx.Write(sym); !errors.Is(err, ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg writing an RX channel, got %v", err)
	}
	buf := make([]RMTSymbol, 4)
	n, err := rx.Read(buf, time.Millisecond)
	if err != nil || n != 1 {
		t.Fatalf("Read = %d, %v", n, err)
	}
	if _, err := tx.Read(buf, time.Millisecond); !errors.Is(err, ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg reading a TX channel, got %v", err)
	}

	if err := tx.Close(); err != nil {
		t.Fatal(err)
	}
	if err := RMTDeinit(19); err != nil {
		t.Fatal(err)
	}
	if err := RMTDeinit(19); !errors.Is(err, ErrNotOwned) {
		t.Errorf("Expected ErrNotOwned, got %v", err)
	}
	if err := tx.Write(sym); !errors.Is(err, ErrBusInactive) {
		t.Errorf("Expected ErrBusInactive after close, got %v", err)
	}
	expectQuiescent(t, m)
}

// Two channels share one deinit registration; evicting one must only
// delete that one.
func TestRMTEvictionTargetsOwner(t *testing.T) {
	m := setupTest(t)

	a, err := RMTInit(18, RMTTx, physic.MegaHertz)
	if err != nil {
		t.Fatal(err)
	}
	b, err := RMTInit(19, RMTTx, physic.MegaHertz)
	if err != nil {
		t.Fatal(err)
	}
	if err := SetPinMode(18, Output); err != nil {
		t.Fatal(err)
	}
	if m.isUp("rmt0") {
		t.Error("Channel on pin 18 still allocated")
	}
	if !m.isUp("rmt1") {
		t.Error("Channel on pin 19 was deleted by the wrong eviction")
	}
	if err := a.Write(nil); !errors.Is(err, ErrBusInactive) {
		t.Errorf("Expected evicted channel inactive, got %v", err)
	}
	if err := b.Write(nil); err != nil {
		t.Errorf("Surviving channel: %v", err)
	}
}

func TestRMTInitValidation(t *testing.T) {
	m := setupTest(t)

	if _, err := RMTInit(18, RMTTx, 0); !errors.Is(err, ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg for zero resolution, got %v", err)
	}
	if _, err := RMTInit(18, RMTDirection(7), physic.MegaHertz); !errors.Is(err, ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg for bad direction, got %v", err)
	}
	if _, err := RMTInit(periman.NoPin, RMTTx, physic.MegaHertz); !errors.Is(err, periman.ErrInvalidPin) {
		t.Errorf("Expected ErrInvalidPin, got %v", err)
	}
	m.failOn("rmt.NewChannel", errors.New("no channel"))
	if _, err := RMTInit(18, RMTTx, physic.MegaHertz); err == nil {
		t.Error("Expected failure from driver")
	}
	expectQuiescent(t, m)
}
