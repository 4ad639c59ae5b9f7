package protocol

import "github.com/pkg/errors"

var (
	// ErrNeedMore means data holds the start of a frame but not all of it
	ErrNeedMore = errors.New("protocol: incomplete frame")
	// ErrBadFrame means the bytes at the start of data are not a valid frame;
	// the caller should resynchronize on the next sync byte
	ErrBadFrame = errors.New("protocol: bad frame")
)

// Frame is one decoded frame
type Frame struct {
	Seq     uint8
	Payload []byte
}

// IsAck reports whether the frame carries no messages
func (f Frame) IsAck() bool {
	return len(f.Payload) == 0
}

// AppendFrame wraps payload in a frame with sequence byte seq
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return dst, errors.Wrapf(ErrTooLong, "%d bytes", len(payload))
	}
	start := len(dst)
	dst = append(dst, byte(len(payload)+FrameMinSize), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, byte(crc>>8), byte(crc), SyncByte), nil
}

// ParseFrame decodes the frame at the start of data, returning it and the
// number of bytes it used. Payload aliases data.
func ParseFrame(data []byte) (Frame, int, error) {
	if len(data) < 1 {
		return Frame{}, 0, ErrNeedMore
	}
	n := int(data[0])
	if n < FrameMinSize || n > FrameMaxSize {
		return Frame{}, 0, errors.Wrapf(ErrBadFrame, "length %d", n)
	}
	if len(data) >= 2 && data[1]&^SeqMask != DestBits {
		return Frame{}, 0, errors.Wrapf(ErrBadFrame, "sequence byte 0x%02x", data[1])
	}
	if len(data) < n {
		return Frame{}, 0, ErrNeedMore
	}
	if data[n-1] != SyncByte {
		return Frame{}, 0, errors.Wrap(ErrBadFrame, "missing sync byte")
	}
	want := uint16(data[n-3])<<8 | uint16(data[n-2])
	if got := CRC16(data[:n-FrameTrailerSize]); got != want {
		return Frame{}, 0, errors.Wrapf(ErrBadFrame, "crc 0x%04x, want 0x%04x", got, want)
	}
	return Frame{Seq: data[1], Payload: data[FrameHeaderSize : n-FrameTrailerSize]}, n, nil
}

// Scanner splits a byte stream into frames, skipping garbage up to the next
// sync byte whenever a frame fails to parse.
type Scanner struct {
	buf      []byte
	synced   bool
	Dropped  int
	OnResync func()
}

// NewScanner returns a scanner that starts synchronized
func NewScanner() *Scanner {
	return &Scanner{synced: true}
}

// Write buffers stream bytes
func (s *Scanner) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

// Next returns the next complete frame. ok is false when more input is
// needed. The payload is a copy owned by the caller.
func (s *Scanner) Next() (f Frame, ok bool) {
	for len(s.buf) > 0 {
		if !s.synced {
			i := indexSync(s.buf)
			if i < 0 {
				s.Dropped += len(s.buf)
				s.buf = s.buf[:0]
				return Frame{}, false
			}
			s.Dropped += i + 1
			s.buf = s.buf[i+1:]
			s.synced = true
			if s.OnResync != nil {
				s.OnResync()
			}
			continue
		}
		if s.buf[0] == SyncByte {
			s.buf = s.buf[1:]
			continue
		}
		f, n, err := ParseFrame(s.buf)
		if errors.Is(err, ErrNeedMore) {
			return Frame{}, false
		}
		if err != nil {
			s.synced = false
			continue
		}
		payload := append([]byte(nil), f.Payload...)
		s.buf = s.buf[n:]
		return Frame{Seq: f.Seq, Payload: payload}, true
	}
	return Frame{}, false
}

// Reset drops buffered input
func (s *Scanner) Reset() {
	s.buf = s.buf[:0]
	s.synced = true
}

func indexSync(b []byte) int {
	for i, c := range b {
		if c == SyncByte {
			return i
		}
	}
	return -1
}
