package core

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"gohal/periman"
	"gohal/protocol"
	"gohal/tinycompress"
)

// Dictionary describes the firmware to the host: commands, responses,
// constants and enumerations. It is served in chunks by identify.
type Dictionary struct {
	mu            sync.RWMutex
	reg           *CommandRegistry
	constants     map[string]string
	enumerations  map[string]map[string]int
	version       string
	buildVersions string
	cached        []byte
}

var globalDictionary = NewDictionary(globalRegistry)

// NewDictionary creates a dictionary over reg
func NewDictionary(reg *CommandRegistry) *Dictionary {
	return &Dictionary{
		reg:           reg,
		constants:     make(map[string]string),
		enumerations:  make(map[string]map[string]int),
		version:       protocol.Version,
		buildVersions: "go",
	}
}

// GetGlobalDictionary returns the firmware's dictionary
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}

// RegisterConstant adds a constant to the global dictionary
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration adds an enumeration to the global dictionary. Empty
// names are skipped; the rest map to their index.
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

// AddConstant adds or replaces a constant
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = fmt.Sprint(value)
	d.cached = nil
}

// AddEnumeration adds or replaces an enumeration
func (d *Dictionary) AddEnumeration(name string, values []string) {
	m := make(map[string]int, len(values))
	for i, v := range values {
		if v != "" {
			m[v] = i
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enumerations[name] = m
	d.cached = nil
}

// SetVersion sets the firmware version string
func (d *Dictionary) SetVersion(version, buildVersions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version, d.buildVersions = version, buildVersions
	d.cached = nil
}

// Build serializes the dictionary as zlib-wrapped JSON and caches the result. Registering a
// command after Build does not invalidate the cache; call Build again.
func (d *Dictionary) Build() ([]byte, error) {
	// registry lock is taken before ours, never inside it
	commands, responses := d.reg.Split()

	d.mu.Lock()
	defer d.mu.Unlock()
	src := protocol.Dictionary{
		Version:       d.version,
		BuildVersions: d.buildVersions,
		Config:        d.constants,
		Commands:      commands,
		Responses:     responses,
		Enumerations:  d.enumerations,
	}
	raw, err := src.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "dictionary")
	}
	data, err := tinycompress.Compress(raw)
	if err != nil {
		return nil, errors.Wrap(err, "dictionary")
	}
	d.cached = data
	return data, nil
}

// Bytes returns the cached dictionary, building it if needed
func (d *Dictionary) Bytes() []byte {
	d.mu.RLock()
	data := d.cached
	d.mu.RUnlock()
	if data != nil {
		return data
	}
	data, err := d.Build()
	if err != nil {
		return nil
	}
	return data
}

// Chunk returns up to count bytes starting at offset; past the end it
// returns nothing, which ends the host's identify loop.
func (d *Dictionary) Chunk(offset uint32, count uint8) []byte {
	data := d.Bytes()
	if offset >= uint32(len(data)) {
		return nil
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}
	return append([]byte(nil), data[offset:end]...)
}

// RegisterChipConstants publishes the chip and bus type tables
func RegisterChipConstants(chip periman.Chip) {
	RegisterConstant("MCU", chip.Name)
	RegisterConstant("PIN_COUNT", chip.PinCount)
	RegisterEnumeration("bus_type", periman.BusTypeNames())
}
