package protocol

import "github.com/pkg/errors"

var (
	ErrShortBuffer = errors.New("protocol: message truncated")
	ErrTooLong     = errors.New("protocol: payload exceeds frame size")
)

// AppendInt appends v in the variable length encoding: 7 bits per byte, most
// significant group first, with the sign carried by bits 5 and 6 of the first
// byte so small negative numbers stay short.
func AppendInt(dst []byte, v int32) []byte {
	switch {
	case v < -(1<<26) || v >= 3<<26:
		dst = append(dst, byte(v>>28)|0x80)
		fallthrough
	case v < -(1<<19) || v >= 3<<19:
		dst = append(dst, byte(v>>21)|0x80)
		fallthrough
	case v < -(1<<12) || v >= 3<<12:
		dst = append(dst, byte(v>>14)|0x80)
		fallthrough
	case v < -(1<<5) || v >= 3<<5:
		dst = append(dst, byte(v>>7)|0x80)
	}
	return append(dst, byte(v)&0x7F)
}

// AppendUint appends v; it shares the signed encoding
func AppendUint(dst []byte, v uint32) []byte {
	return AppendInt(dst, int32(v))
}

// AppendBytes appends a length-prefixed byte string
func AppendBytes(dst, b []byte) []byte {
	dst = AppendUint(dst, uint32(len(b)))
	return append(dst, b...)
}

// AppendString appends a length-prefixed string
func AppendString(dst []byte, s string) []byte {
	dst = AppendUint(dst, uint32(len(s)))
	return append(dst, s...)
}

// Encoder builds one message payload
type Encoder struct {
	buf []byte
}

// NewEncoder starts a message for command id
func NewEncoder(id uint16) *Encoder {
	return &Encoder{buf: AppendUint(nil, uint32(id))}
}

func (e *Encoder) Int(v int32) *Encoder     { e.buf = AppendInt(e.buf, v); return e }
func (e *Encoder) Uint(v uint32) *Encoder   { e.buf = AppendUint(e.buf, v); return e }
func (e *Encoder) Bytes(b []byte) *Encoder  { e.buf = AppendBytes(e.buf, b); return e }
func (e *Encoder) String(s string) *Encoder { e.buf = AppendString(e.buf, s); return e }

// Bool encodes b as 0 or 1
func (e *Encoder) Bool(b bool) *Encoder {
	if b {
		return e.Uint(1)
	}
	return e.Uint(0)
}

// Payload returns the encoded message
func (e *Encoder) Payload() []byte {
	return e.buf
}

// Decoder reads values from a payload in order
type Decoder struct {
	data []byte
}

// NewDecoder reads from p. p is not copied.
func NewDecoder(p []byte) *Decoder {
	return &Decoder{data: p}
}

// Len returns the number of unread bytes
func (d *Decoder) Len() int {
	return len(d.data)
}

func (d *Decoder) Int() (int32, error) {
	if len(d.data) == 0 {
		return 0, ErrShortBuffer
	}
	c := d.data[0]
	d.data = d.data[1:]
	v := uint32(c & 0x7F)
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	for c&0x80 != 0 {
		if len(d.data) == 0 {
			return 0, ErrShortBuffer
		}
		c = d.data[0]
		d.data = d.data[1:]
		v = v<<7 | uint32(c&0x7F)
	}
	return int32(v), nil
}

func (d *Decoder) Uint() (uint32, error) {
	v, err := d.Int()
	return uint32(v), err
}

// Bytes returns a length-prefixed byte string. The result aliases the payload.
func (d *Decoder) Bytes() ([]byte, error) {
	n, err := d.Uint()
	if err != nil {
		return nil, err
	}
	if uint32(len(d.data)) < n {
		return nil, ErrShortBuffer
	}
	b := d.data[:n:n]
	d.data = d.data[n:]
	return b, nil
}

func (d *Decoder) String() (string, error) {
	b, err := d.Bytes()
	return string(b), err
}
