package protocol

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Handler runs one decoded command. args holds the command's arguments
// followed by any later messages in the same frame, so a handler must read
// exactly its own arguments.
type Handler func(id uint16, args *Decoder) error

// Session is the device end of the link. It reassembles frames from Feed,
// dispatches in-sequence frames to the handler and answers every frame with
// an ACK naming the next sequence it expects.
type Session struct {
	// feedMu serializes Feed; handlers run under it and may call Send.
	feedMu  sync.Mutex
	wmu     sync.Mutex
	w       io.Writer
	handler Handler
	scan    *Scanner
	next    uint32 // atomic

	// OnHostReset runs when the host restarts its sequence at 0x10
	OnHostReset func()
}

// NewSession writes ACKs and responses to w
func NewSession(w io.Writer, h Handler) *Session {
	return &Session{w: w, handler: h, scan: NewScanner(), next: DestBits}
}

// Feed consumes received bytes. Handler errors do not stop processing; they
// are returned combined once the input is drained.
func (s *Session) Feed(p []byte) error {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	s.scan.Write(p)
	var err error
	for {
		f, ok := s.scan.Next()
		if !ok {
			return err
		}
		next := uint8(atomic.LoadUint32(&s.next))
		if f.Seq == DestBits && next != DestBits {
			next = DestBits
			atomic.StoreUint32(&s.next, DestBits)
			if s.OnHostReset != nil {
				s.OnHostReset()
			}
		}
		if f.Seq == next {
			atomic.StoreUint32(&s.next, uint32(NextSeq(f.Seq)))
			err = multierr.Append(err, s.dispatch(f.Payload))
		}
		err = multierr.Append(err, s.writeFrame(nil))
	}
}

func (s *Session) dispatch(payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("handler panic: %v", r)
		}
	}()
	d := NewDecoder(payload)
	for d.Len() > 0 {
		id, derr := d.Uint()
		if derr != nil {
			return errors.Wrap(derr, "command id")
		}
		if s.handler == nil {
			continue
		}
		if herr := s.handler(uint16(id), d); herr != nil {
			return errors.Wrapf(herr, "command %d", id)
		}
	}
	return nil
}

func (s *Session) writeFrame(payload []byte) error {
	seq := uint8(atomic.LoadUint32(&s.next))
	buf, err := AppendFrame(make([]byte, 0, FrameMinSize+len(payload)), seq, payload)
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err = s.w.Write(buf)
	return errors.Wrap(err, "protocol: write")
}

// Send writes one response message
func (s *Session) Send(e *Encoder) error {
	return s.writeFrame(e.Payload())
}

// Reset forgets the sequence and any buffered input
func (s *Session) Reset() {
	s.feedMu.Lock()
	atomic.StoreUint32(&s.next, DestBits)
	s.scan.Reset()
	s.feedMu.Unlock()
}
