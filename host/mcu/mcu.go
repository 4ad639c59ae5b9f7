// Package mcu is the host side of the diagnostic link: it fetches the
// board's dictionary and sends commands by name.
package mcu

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"gohal/host/serial"
	"gohal/protocol"
)

// identify and identify_response have fixed ids so a host can fetch the
// dictionary before it knows anything else.
const (
	identifyResponseID = 0
	identifyID         = 1

	chunkSize     = 40
	maxDictionary = 1 << 20
)

// ErrNoDictionary is returned by named operations before Identify
var ErrNoDictionary = errors.New("mcu: dictionary not loaded")

// CommandError is a command_error reported by the board
type CommandError struct {
	ID      uint16
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return "mcu: " + e.Command + ": " + e.Message
}

// Response is one decoded message from the board
type Response struct {
	ID   uint16
	Name string
	Args map[string]interface{}
}

// Int returns the integer argument name, or 0
func (r Response) Int(name string) int {
	v, _ := r.Args[name].(int32)
	return int(v)
}

// String returns the byte-string argument name as text
func (r Response) String(name string) string {
	b, _ := r.Args[name].([]byte)
	return string(b)
}

// MCU is a connection to one board
type MCU struct {
	client *protocol.Client
	dict   *protocol.Dictionary
	raw    []byte

	// Timeout bounds every exchange that is not given a deadline
	Timeout time.Duration
}

// New wraps an open link
func New(rw io.ReadWriteCloser) *MCU {
	return &MCU{client: protocol.NewClient(rw), Timeout: time.Second}
}

// Connect opens the serial port described by cfg
func Connect(cfg *serial.Config) (*MCU, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, err
	}
	return New(port), nil
}

// Dial connects to a board served over TCP, such as gohal-linux
func Dial(ctx context.Context, addr string) (*MCU, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "mcu: dial %s", addr)
	}
	return New(conn), nil
}

// Close closes the link
func (m *MCU) Close() error {
	return m.client.Close()
}

func (m *MCU) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || m.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.Timeout)
}

// Identify fetches and parses the dictionary in chunks
func (m *MCU) Identify(ctx context.Context) error {
	m.client.Reset()
	var buf bytes.Buffer
	for {
		chunk, err := m.identifyChunk(ctx, uint32(buf.Len()))
		if err != nil {
			return errors.Wrapf(err, "mcu: identify at offset %d", buf.Len())
		}
		buf.Write(chunk)
		if len(chunk) < chunkSize {
			break
		}
		if buf.Len() > maxDictionary {
			return errors.Errorf("mcu: dictionary larger than %d bytes", maxDictionary)
		}
	}
	dict, err := protocol.ParseDictionary(buf.Bytes())
	if err != nil {
		return err
	}
	m.raw = buf.Bytes()
	m.dict = dict
	return nil
}

func (m *MCU) identifyChunk(ctx context.Context, offset uint32) ([]byte, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if err := m.client.Send(ctx, protocol.NewEncoder(identifyID).Uint(offset).Uint(chunkSize)); err != nil {
		return nil, err
	}
	for {
		msg, err := m.client.Receive(ctx)
		if err != nil {
			return nil, err
		}
		if msg.ID != identifyResponseID {
			continue
		}
		got, err := msg.Args.Uint()
		if err != nil {
			return nil, err
		}
		if got != offset {
			// a late answer to an earlier request
			continue
		}
		return msg.Args.Bytes()
	}
}

// Dictionary returns the parsed dictionary, nil before Identify
func (m *MCU) Dictionary() *protocol.Dictionary {
	return m.dict
}

// RawDictionary returns the dictionary as received
func (m *MCU) RawDictionary() []byte {
	return m.raw
}

// Encode builds command name from textual arguments
func (m *MCU) Encode(name string, args map[string]string) (*protocol.Encoder, error) {
	if m.dict == nil {
		return nil, ErrNoDictionary
	}
	f, ok := m.dict.Message(name)
	if !ok {
		return nil, errors.Errorf("mcu: unknown command %q", name)
	}
	if f.Response {
		return nil, errors.Errorf("mcu: %q is a response", name)
	}
	return f.Encode(args)
}

// Send sends command name without waiting for a response
func (m *MCU) Send(ctx context.Context, name string, args map[string]string) error {
	e, err := m.Encode(name, args)
	if err != nil {
		return err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.client.Send(ctx, e)
}

// Receive waits for the next message and decodes it
func (m *MCU) Receive(ctx context.Context) (Response, error) {
	if m.dict == nil {
		return Response{}, ErrNoDictionary
	}
	msg, err := m.client.Receive(ctx)
	if err != nil {
		return Response{}, err
	}
	f, ok := m.dict.MessageByID(msg.ID)
	if !ok {
		return Response{ID: msg.ID}, errors.Errorf("mcu: unknown message id %d", msg.ID)
	}
	args, err := f.Decode(msg.Args)
	if err != nil {
		return Response{ID: msg.ID, Name: f.Name}, err
	}
	return Response{ID: msg.ID, Name: f.Name, Args: args}, nil
}

// asError converts a command_error into a *CommandError
func (m *MCU) asError(r Response) error {
	if r.Name != "command_error" {
		return nil
	}
	ce := &CommandError{ID: uint16(r.Int("id")), Message: r.String("message")}
	if f, ok := m.dict.MessageByID(ce.ID); ok {
		ce.Command = f.Name
	} else {
		ce.Command = "id " + strconv.Itoa(int(ce.ID))
	}
	return ce
}

// Query sends command name and collects responses until one named until
// arrives, which is returned last. A command_error aborts the exchange.
func (m *MCU) Query(ctx context.Context, name string, args map[string]string, until string) ([]Response, error) {
	e, err := m.Encode(name, args)
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	if err := m.client.Send(ctx, e); err != nil {
		return nil, err
	}
	var out []Response
	for {
		r, err := m.Receive(ctx)
		if err != nil {
			return out, err
		}
		if err := m.asError(r); err != nil {
			return out, err
		}
		out = append(out, r)
		if r.Name == until {
			return out, nil
		}
	}
}

// Call sends a command that has no response of its own and waits settle
// for a command_error.
func (m *MCU) Call(ctx context.Context, name string, args map[string]string, settle time.Duration) error {
	if err := m.Send(ctx, name, args); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, settle)
	defer cancel()
	for {
		r, err := m.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := m.asError(r); err != nil {
			return err
		}
	}
}
