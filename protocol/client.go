package protocol

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrClosed = errors.New("protocol: client closed")

// Message is one response received from the device
type Message struct {
	ID   uint16
	Args *Decoder
}

// Client is the host end of the link. Send blocks until the device
// acknowledges the frame; responses are delivered through Receive.
type Client struct {
	rw io.ReadWriteCloser

	sendMu sync.Mutex
	seq    uint8

	acks      chan uint8
	responses chan Message
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	readErr   error
}

// NewClient starts reading from rw in the background
func NewClient(rw io.ReadWriteCloser) *Client {
	c := &Client{
		rw:        rw,
		seq:       DestBits,
		acks:      make(chan uint8, 4),
		responses: make(chan Message, 32),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.done)
	scan := NewScanner()
	buf := make([]byte, 256)
	for {
		select {
		case <-c.stop:
			return
		default:
		}
		n, err := c.rw.Read(buf)
		if n > 0 {
			scan.Write(buf[:n])
			for {
				f, ok := scan.Next()
				if !ok {
					break
				}
				c.deliver(f)
			}
		}
		if err == io.EOF {
			c.readErr = err
			return
		}
		if err != nil {
			// serial ports report read timeouts as errors
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (c *Client) deliver(f Frame) {
	if f.IsAck() {
		select {
		case c.acks <- f.Seq:
		default:
		}
		return
	}
	d := NewDecoder(f.Payload)
	id, err := d.Uint()
	if err != nil {
		return
	}
	msg := Message{ID: uint16(id), Args: d}
	select {
	case c.responses <- msg:
	default:
		// drop the oldest rather than stall the reader
		<-c.responses
		c.responses <- msg
	}
}

// Send frames e and waits for the device's ACK
func (c *Client) Send(ctx context.Context, e *Encoder) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	buf, err := AppendFrame(nil, c.seq, e.Payload())
	if err != nil {
		return err
	}
	for len(c.acks) > 0 {
		<-c.acks
	}
	if _, err := c.rw.Write(buf); err != nil {
		return errors.Wrap(err, "protocol: write")
	}
	want := NextSeq(c.seq)
	for {
		select {
		case ack := <-c.acks:
			if ack != want {
				return errors.Errorf("protocol: ack for 0x%02x, want 0x%02x", ack, want)
			}
			c.seq = want
			return nil
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "protocol: waiting for ack")
		case <-c.done:
			return ErrClosed
		}
	}
}

// Receive returns the next response
func (c *Client) Receive(ctx context.Context) (Message, error) {
	select {
	case m := <-c.responses:
		return m, nil
	case <-ctx.Done():
		return Message{}, errors.Wrap(ctx.Err(), "protocol: waiting for response")
	case <-c.done:
		return Message{}, ErrClosed
	}
}

// Reset restarts the sequence at 0x10, which the device treats as a new host
func (c *Client) Reset() {
	c.sendMu.Lock()
	c.seq = DestBits
	c.sendMu.Unlock()
	for len(c.responses) > 0 {
		<-c.responses
	}
}

// Close stops the reader and closes the port
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		err = c.rw.Close()
		<-c.done
	})
	return err
}
