package core

import (
	"errors"
	"sync"
	"testing"

	"gohal/periman"
	"gohal/protocol"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	var called bool
	id := registry.Register("test_command", "arg=%u", func(args *protocol.Decoder) error {
		v, err := args.Uint()
		if err != nil {
			return err
		}
		called = v == 42
		return nil
	})
	if id != 0 {
		t.Errorf("Expected first command to have ID 0, got %d", id)
	}
	if again := registry.Register("test_command", "other=%c", nil); again != id {
		t.Errorf("Expected duplicate registration to return %d, got %d", id, again)
	}
	respID := registry.Register("test_response", "value=%i", nil)
	if respID != 1 || registry.Count() != 2 {
		t.Errorf("Expected response id 1 of 2 entries, got %d of %d", respID, registry.Count())
	}

	cmd, ok := registry.Get(id)
	if !ok || cmd.Name != "test_command" {
		t.Fatalf("Failed to retrieve registered command: %+v", cmd)
	}
	if cmd.Key() != "test_command arg=%u" {
		t.Errorf("Unexpected key %q", cmd.Key())
	}
	if _, ok := registry.Lookup("missing"); ok {
		t.Error("Lookup found an unregistered name")
	}

	payload := protocol.NewEncoder(id).Uint(42).Payload()
	d := protocol.NewDecoder(payload)
	d.Uint()
	if err := registry.Dispatch(id, d); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !called {
		t.Error("Handler was not called with its argument")
	}

	// Responses have no handler and cannot be dispatched
	for _, bad := range []uint16{respID, 99} {
		if err := registry.Dispatch(bad, protocol.NewDecoder(nil)); !errors.Is(err, ErrUnknownCommand) {
			t.Errorf("Dispatch(%d): expected ErrUnknownCommand, got %v", bad, err)
		}
	}

	commands, responses := registry.Split()
	if commands["test_command arg=%u"] != 0 || responses["test_response value=%i"] != 1 {
		t.Errorf("Unexpected split %v / %v", commands, responses)
	}
	if names := registry.Names(); len(names) != 2 || names[1] != "test_response" {
		t.Errorf("Unexpected names %v", names)
	}
}

func TestCommandHandlerErrorNamesCommand(t *testing.T) {
	registry := NewCommandRegistry()
	boom := errors.New("boom")
	id := registry.Register("fails", "", func(*protocol.Decoder) error { return boom })

	err := registry.Dispatch(id, protocol.NewDecoder(nil))
	if !errors.Is(err, boom) {
		t.Fatalf("Expected handler error, got %v", err)
	}
	if err.Error() != "fails: boom" {
		t.Errorf("Expected error prefixed by command name, got %q", err)
	}
}

// sentMessage is one decoded response
type sentMessage struct {
	name string
	args map[string]interface{}
}

// recorder collects responses and decodes them against the global registry
type recorder struct {
	t    *testing.T
	mu   sync.Mutex
	sent []sentMessage
}

func (r *recorder) Send(e *protocol.Encoder) error {
	d := protocol.NewDecoder(e.Payload())
	id, err := d.Uint()
	if err != nil {
		r.t.Fatalf("response id: %v", err)
	}
	c, ok := globalRegistry.Get(uint16(id))
	if !ok {
		r.t.Fatalf("response %d not registered", id)
	}
	f, err := protocol.ParseFormat(c.Key())
	if err != nil {
		r.t.Fatal(err)
	}
	args, err := f.Decode(d)
	if err != nil {
		r.t.Fatalf("decode %s: %v", c.Name, err)
	}
	r.mu.Lock()
	r.sent = append(r.sent, sentMessage{c.Name, args})
	r.mu.Unlock()
	return nil
}

func (r *recorder) take() []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sent
	r.sent = nil
	return out
}

// setupCommands starts from empty command tables with a recording responder
func setupCommands(t *testing.T) (*mockHW, *recorder) {
	t.Helper()
	m := setupTest(t)
	globalRegistry = NewCommandRegistry()
	globalDictionary = NewDictionary(globalRegistry)
	initCommandsOnce = sync.Once{}
	InitCoreCommands()

	rec := &recorder{t: t}
	SetResponder(rec)
	t.Cleanup(func() { SetResponder(nil) })
	return m, rec
}

// run sends name with integer args and returns the handler error
func run(t *testing.T, name string, args ...uint32) error {
	t.Helper()
	c, ok := globalRegistry.Lookup(name)
	if !ok {
		t.Fatalf("%s not registered", name)
	}
	e := protocol.NewEncoder(c.ID)
	for _, a := range args {
		e.Uint(a)
	}
	d := protocol.NewDecoder(e.Payload())
	d.Uint()
	return HandleCommand(c.ID, d)
}

func TestCoreCommandIDs(t *testing.T) {
	setupCommands(t)

	tests := []struct {
		name string
		id   uint16
	}{
		{"identify_response", 0},
		{"identify", 1},
	}
	for _, tt := range tests {
		c, ok := globalRegistry.Lookup(tt.name)
		if !ok || c.ID != tt.id {
			t.Errorf("Expected %s at id %d, got %+v", tt.name, tt.id, c)
		}
	}

	// A second init must not register anything again
	n := globalRegistry.Count()
	InitCoreCommands()
	if globalRegistry.Count() != n {
		t.Errorf("InitCoreCommands registered twice: %d -> %d", n, globalRegistry.Count())
	}
}

func TestGetUptimeCommand(t *testing.T) {
	_, rec := setupCommands(t)
	SetClockSource(func() uint64 { return 1<<32 | 5 })
	t.Cleanup(func() { SetClockSource(nil) })

	if err := run(t, "get_uptime"); err != nil {
		t.Fatal(err)
	}
	sent := rec.take()
	if len(sent) != 1 || sent[0].name != "uptime" {
		t.Fatalf("Expected one uptime response, got %+v", sent)
	}
	if sent[0].args["high"] != int32(1) || sent[0].args["clock"] != int32(5) {
		t.Errorf("Unexpected uptime %v", sent[0].args)
	}
}

func TestQueryPinCommands(t *testing.T) {
	_, rec := setupCommands(t)

	if err := run(t, "pin_mode", 4, uint32(Output)); err != nil {
		t.Fatal(err)
	}
	if err := run(t, "query_pin", 4); err != nil {
		t.Fatal(err)
	}
	sent := rec.take()
	if len(sent) != 1 || sent[0].name != "pin_bus" {
		t.Fatalf("Expected one pin_bus response, got %+v", sent)
	}
	if sent[0].args["pin"] != int32(4) || sent[0].args["type"] != int32(periman.BusTypeGPIO) {
		t.Errorf("Unexpected pin_bus %v", sent[0].args)
	}

	if err := run(t, "pin_mode", 5, uint32(Input)); err != nil {
		t.Fatal(err)
	}
	if err := run(t, "query_pins"); err != nil {
		t.Fatal(err)
	}
	sent = rec.take()
	if len(sent) != 3 {
		t.Fatalf("Expected two pin_bus and pins_done, got %+v", sent)
	}
	last := sent[2]
	if last.name != "pins_done" || last.args["count"] != int32(2) {
		t.Errorf("Expected pins_done count=2, got %+v", last)
	}
}

func TestClearPinCommand(t *testing.T) {
	_, rec := setupCommands(t)

	if err := run(t, "pin_mode", 4, uint32(Output)); err != nil {
		t.Fatal(err)
	}
	if err := run(t, "clear_pin", 4); err != nil {
		t.Fatal(err)
	}
	sent := rec.take()
	if len(sent) != 1 || sent[0].name != "pin_cleared" || sent[0].args["ok"] != int32(1) {
		t.Fatalf("Expected pin_cleared ok=1, got %+v", sent)
	}
	if ownerType(4) != periman.BusTypeInit {
		t.Errorf("Pin still owned by %s", ownerType(4))
	}
}

func TestDigitalCommands(t *testing.T) {
	m, rec := setupCommands(t)

	if err := run(t, "pin_mode", 2, uint32(Output)); err != nil {
		t.Fatal(err)
	}
	if err := run(t, "digital_write", 2, 1); err != nil {
		t.Fatal(err)
	}
	if !m.levels[2] {
		t.Error("Pin not driven high")
	}
	if err := run(t, "digital_read", 2); err != nil {
		t.Fatal(err)
	}
	sent := rec.take()
	if len(sent) != 1 || sent[0].name != "digital_state" || sent[0].args["value"] != int32(1) {
		t.Errorf("Expected digital_state value=1, got %+v", sent)
	}
}

func TestAnalogReadCommand(t *testing.T) {
	_, rec := setupCommands(t)

	if err := run(t, "analog_read", 34); err != nil {
		t.Fatal(err)
	}
	sent := rec.take()
	if len(sent) != 1 || sent[0].name != "analog_state" || sent[0].args["pin"] != int32(34) {
		t.Fatalf("Expected analog_state for pin 34, got %+v", sent)
	}
	if ownerType(34) != periman.BusTypeADCOneshot {
		t.Errorf("Expected ADC owner, got %s", ownerType(34))
	}
}

func TestCommandErrorReported(t *testing.T) {
	_, rec := setupCommands(t)

	err := run(t, "pin_mode", 24, uint32(Output))
	if !errors.Is(err, periman.ErrInvalidPin) {
		t.Fatalf("Expected ErrInvalidPin, got %v", err)
	}
	sent := rec.take()
	if len(sent) != 1 || sent[0].name != "command_error" {
		t.Fatalf("Expected command_error, got %+v", sent)
	}
	c, _ := globalRegistry.Lookup("pin_mode")
	if sent[0].args["id"] != int32(c.ID) {
		t.Errorf("Expected id %d, got %v", c.ID, sent[0].args["id"])
	}
	if msg, _ := sent[0].args["message"].([]byte); string(msg) != err.Error() {
		t.Errorf("Expected message %q, got %q", err.Error(), msg)
	}

	// Unknown ids are reported the same way
	if err := HandleCommand(200, protocol.NewDecoder(nil)); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Expected ErrUnknownCommand, got %v", err)
	}
	if sent := rec.take(); len(sent) != 1 || sent[0].args["id"] != int32(200) {
		t.Errorf("Expected command_error for id 200, got %+v", sent)
	}
}

func TestSendResponseWithoutResponder(t *testing.T) {
	setupCommands(t)
	SetResponder(nil)

	if err := SendResponse("uptime", nil); err != nil {
		t.Errorf("Expected silent drop, got %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for an unregistered response")
		}
	}()
	SendResponse("no_such_response", nil)
}
