package core

import (
	"bytes"
	"testing"

	"gohal/periman"
	"gohal/protocol"
)

func testDictionary() *Dictionary {
	reg := NewCommandRegistry()
	reg.Register("test_response", "value=%u", nil)
	reg.Register("test_cmd", "pin=%c data=%*s", func(*protocol.Decoder) error { return nil })

	dict := NewDictionary(reg)
	dict.AddConstant("TEST_CONST", uint32(42))
	dict.AddConstant("TEST_STR", "hello")
	dict.AddEnumeration("test_pins", []string{"PA0", "", "PB0"})
	dict.SetVersion("v1.2", "go1.24")
	return dict
}

func TestDictionaryRoundTrip(t *testing.T) {
	data, err := testDictionary().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	parsed, err := protocol.ParseDictionary(data)
	if err != nil {
		t.Fatalf("ParseDictionary: %v", err)
	}

	if parsed.Version != "v1.2" || parsed.BuildVersions != "go1.24" {
		t.Errorf("Unexpected versions %q %q", parsed.Version, parsed.BuildVersions)
	}
	if parsed.Config["TEST_CONST"] != "42" || parsed.Config["TEST_STR"] != "hello" {
		t.Errorf("Unexpected constants %v", parsed.Config)
	}

	f, ok := parsed.Message("test_cmd")
	if !ok {
		t.Fatal("test_cmd missing from dictionary")
	}
	if f.ID != 1 || len(f.Params) != 2 || f.Params[1].Kind != protocol.ParamBytes {
		t.Errorf("Unexpected test_cmd format %+v", f)
	}
	if _, ok := parsed.Commands["test_response value=%u"]; ok {
		t.Error("Response listed as a command")
	}

	tests := []struct {
		value int
		name  string
		ok    bool
	}{
		{0, "PA0", true},
		{1, "", false},
		{2, "PB0", true},
	}
	for _, tt := range tests {
		name, ok := parsed.EnumName("test_pins", tt.value)
		if name != tt.name || ok != tt.ok {
			t.Errorf("EnumName(%d) = %q, %v, want %q, %v", tt.value, name, ok, tt.name, tt.ok)
		}
	}
}

func TestDictionaryChunks(t *testing.T) {
	dict := testDictionary()
	full := dict.Bytes()
	if len(full) == 0 {
		t.Fatal("Empty dictionary")
	}

	// Reassemble the way the host's identify loop does
	var got []byte
	for offset := uint32(0); ; {
		chunk := dict.Chunk(offset, 40)
		if len(chunk) == 0 {
			break
		}
		if len(chunk) > 40 {
			t.Fatalf("Chunk of %d bytes exceeds count", len(chunk))
		}
		got = append(got, chunk...)
		offset += uint32(len(chunk))
	}
	if !bytes.Equal(got, full) {
		t.Error("Reassembled dictionary differs")
	}
	if c := dict.Chunk(uint32(len(full))+10, 40); c != nil {
		t.Errorf("Expected nil past the end, got %d bytes", len(c))
	}
}

func TestDictionaryCacheInvalidation(t *testing.T) {
	dict := testDictionary()
	before := dict.Bytes()
	dict.AddConstant("EXTRA", 7)
	after := dict.Bytes()
	if bytes.Equal(before, after) {
		t.Error("Adding a constant did not rebuild the dictionary")
	}
	parsed, err := protocol.ParseDictionary(after)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Config["EXTRA"] != "7" {
		t.Errorf("Expected EXTRA=7, got %q", parsed.Config["EXTRA"])
	}
}

func TestRegisterChipConstants(t *testing.T) {
	setupCommands(t)
	RegisterChipConstants(periman.ESP32S3)

	parsed, err := protocol.ParseDictionary(GetGlobalDictionary().Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Config["MCU"] != "esp32s3" {
		t.Errorf("Expected MCU esp32s3, got %q", parsed.Config["MCU"])
	}
	if parsed.Config["CLOCK_FREQ"] != "1000000" {
		t.Errorf("Expected CLOCK_FREQ 1000000, got %q", parsed.Config["CLOCK_FREQ"])
	}
	name, ok := parsed.EnumName("bus_type", int(periman.BusTypeSPIMasterSCK))
	if !ok || name != "SPI_MASTER_SCK" {
		t.Errorf("Expected SPI_MASTER_SCK in bus_type, got %q", name)
	}
	if _, ok := parsed.Message("identify"); !ok {
		t.Error("identify missing from the global dictionary")
	}
}
