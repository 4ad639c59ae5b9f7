package protocol

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Dictionary is the self-description a device returns through identify.
// Commands and responses map "name format" to message id.
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`

	byName map[string]*MessageFormat
	byID   map[uint16]*MessageFormat
}

// ParseDictionary decodes and indexes a dictionary. data is JSON, either
// plain or inside a zlib stream as devices send it.
func ParseDictionary(data []byte) (*Dictionary, error) {
	if len(data) > 0 && data[0] == 0x78 {
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "protocol: dictionary")
		}
		data, err = io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, errors.Wrap(err, "protocol: dictionary")
		}
	}
	var d Dictionary
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrap(err, "protocol: dictionary")
	}
	if err := d.index(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Marshal encodes the dictionary as JSON
func (d *Dictionary) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

func (d *Dictionary) index() error {
	d.byName = make(map[string]*MessageFormat)
	d.byID = make(map[uint16]*MessageFormat)
	for i, group := range []map[string]int{d.Commands, d.Responses} {
		for key, id := range group {
			f, err := ParseFormat(key)
			if err != nil {
				return err
			}
			f.ID = uint16(id)
			f.Response = i == 1
			d.byName[f.Name] = f
			d.byID[f.ID] = f
		}
	}
	return nil
}

// Message finds a command or response by name
func (d *Dictionary) Message(name string) (*MessageFormat, bool) {
	f, ok := d.byName[name]
	return f, ok
}

// MessageByID finds a command or response by id
func (d *Dictionary) MessageByID(id uint16) (*MessageFormat, bool) {
	f, ok := d.byID[id]
	return f, ok
}

// EnumName returns the name of value in enumeration enum
func (d *Dictionary) EnumName(enum string, value int) (string, bool) {
	for name, v := range d.Enumerations[enum] {
		if v == value {
			return name, true
		}
	}
	return "", false
}

// ParamKind is the wire type of one argument
type ParamKind uint8

const (
	ParamInt ParamKind = iota
	ParamBytes
)

// Param is one "name=%x" argument
type Param struct {
	Name string
	Kind ParamKind
}

// MessageFormat is a parsed "name arg=%c ..." message description
type MessageFormat struct {
	ID       uint16
	Name     string
	Params   []Param
	Response bool // device->host
}

// ParseFormat parses a dictionary key such as "pin_bus pin=%c extra=%*s"
func ParseFormat(key string) (*MessageFormat, error) {
	fields := strings.Fields(key)
	if len(fields) == 0 {
		return nil, errors.New("protocol: empty message format")
	}
	f := &MessageFormat{Name: fields[0]}
	for _, field := range fields[1:] {
		name, verb, ok := strings.Cut(field, "=")
		if !ok {
			return nil, errors.Errorf("protocol: %s: bad parameter %q", f.Name, field)
		}
		switch verb {
		case "%c", "%u", "%i", "%hu", "%hi":
			f.Params = append(f.Params, Param{name, ParamInt})
		case "%*s", "%s", "%.*s":
			f.Params = append(f.Params, Param{name, ParamBytes})
		default:
			return nil, errors.Errorf("protocol: %s: unknown type %q", f.Name, verb)
		}
	}
	return f, nil
}

// Decode reads every parameter of the message from d
func (f *MessageFormat) Decode(d *Decoder) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(f.Params))
	for _, p := range f.Params {
		switch p.Kind {
		case ParamInt:
			v, err := d.Int()
			if err != nil {
				return out, errors.Wrapf(err, "%s.%s", f.Name, p.Name)
			}
			out[p.Name] = v
		case ParamBytes:
			b, err := d.Bytes()
			if err != nil {
				return out, errors.Wrapf(err, "%s.%s", f.Name, p.Name)
			}
			out[p.Name] = append([]byte(nil), b...)
		}
	}
	return out, nil
}

// Encode builds the message from textual "name=value" arguments. Integers
// accept any base strconv understands; byte strings are taken verbatim.
func (f *MessageFormat) Encode(args map[string]string) (*Encoder, error) {
	e := NewEncoder(f.ID)
	for _, p := range f.Params {
		raw, ok := args[p.Name]
		if !ok {
			return nil, errors.Errorf("%s: missing %s", f.Name, p.Name)
		}
		switch p.Kind {
		case ParamInt:
			v, err := strconv.ParseInt(raw, 0, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: %s", f.Name, p.Name)
			}
			e.Int(int32(v))
		case ParamBytes:
			e.String(raw)
		}
	}
	return e, nil
}
