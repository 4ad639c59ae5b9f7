package core

import (
	"errors"
	"testing"

	"gohal/periman"
)

func TestTouchControllerFollowsChannels(t *testing.T) {
	m := setupTest(t)

	// pins 4 and 2 are pads 0 and 2
	v, err := TouchRead(4)
	if err != nil {
		t.Fatalf("TouchRead(4): %v", err)
	}
	if v != 1000 {
		t.Errorf("Expected 1000, got %d", v)
	}
	if _, err := TouchRead(2); err != nil {
		t.Fatal(err)
	}
	if n := m.count("touch.NewController"); n != 1 {
		t.Errorf("Expected the controller created once, got %d", n)
	}
	if !TouchControllerActive() {
		t.Fatal("Controller inactive with two pads attached")
	}

	if err := TouchDetach(4); err != nil {
		t.Fatalf("TouchDetach(4): %v", err)
	}
	if !TouchControllerActive() || !m.isUp("touch") {
		t.Error("Controller deleted while pad 2 is still attached")
	}

	// Evicting the last pad deletes the controller
	if err := SetPinMode(2, Input); err != nil {
		t.Fatal(err)
	}
	if TouchControllerActive() || m.isUp("touch") {
		t.Error("Controller still up after last pad was evicted")
	}
	if err := PinReset(2); err != nil {
		t.Fatal(err)
	}
	expectQuiescent(t, m)
}

func TestTouchNotCapable(t *testing.T) {
	setupTest(t)

	if _, err := TouchRead(5); !errors.Is(err, ErrNotCapable) {
		t.Errorf("Expected ErrNotCapable, got %v", err)
	}
	if err := TouchDetach(4); !errors.Is(err, ErrNotOwned) {
		t.Errorf("Expected ErrNotOwned, got %v", err)
	}
}

func TestTouchChannelFailureDropsController(t *testing.T) {
	m := setupTest(t)
	m.failOn("touch.NewChannel", errors.New("pad fault"))

	if _, err := TouchRead(4); err == nil {
		t.Fatal("Expected failure")
	}
	if TouchControllerActive() || m.isUp("touch") {
		t.Error("Controller left running after the only channel failed")
	}
	if got := ownerType(4); got != periman.BusTypeInit {
		t.Errorf("Expected pin 4 unowned, got %s", got)
	}
}

func TestTouchSetThreshold(t *testing.T) {
	m := setupTest(t)

	if err := TouchSetThreshold(15, 500); err != nil {
		t.Fatalf("TouchSetThreshold: %v", err)
	}
	if got := ownerType(15); got != periman.BusTypeTouch {
		t.Errorf("Expected pin 15 owned by TOUCH, got %s", got)
	}
	info, _ := MustPins().Info(15)
	if info.BusChannel != 3 {
		t.Errorf("Expected pad 3, got %d", info.BusChannel)
	}
	if m.count("touch.SetThreshold3") != 1 {
		t.Errorf("Expected threshold set on pad 3, calls: %v", m.calls)
	}
}

func TestTouchDeinitTwiceKeepsController(t *testing.T) {
	m := setupTest(t)

	b4, err := touchAttach(4)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := touchAttach(2); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := touchDeinit.Deinit(b4); err != nil {
			t.Fatalf("Deinit #%d: %v", i+1, err)
		}
	}
	if n := m.count("touch.DeleteChannel"); n != 1 {
		t.Errorf("Expected one DeleteChannel, got %d", n)
	}
	if !TouchControllerActive() || !m.isUp("touch") {
		t.Error("Controller deleted while pad 2 is still attached")
	}
	if got := ownerType(2); got != periman.BusTypeTouch {
		t.Errorf("Expected pin 2 owned by TOUCH, got %s", got)
	}
}

func TestTouchRollbackReportsControllerError(t *testing.T) {
	m := setupTest(t)
	padErr := errors.New("pad fault")
	ctrlErr := errors.New("controller stuck")
	m.failOn("touch.NewChannel", padErr)
	m.failOn("touch.DeleteController", ctrlErr)

	_, err := TouchRead(4)
	if !errors.Is(err, padErr) || !errors.Is(err, ctrlErr) {
		t.Errorf("Expected both failures in %v", err)
	}
	if TouchControllerActive() {
		t.Error("Controller counted active after a failed attach")
	}
}
