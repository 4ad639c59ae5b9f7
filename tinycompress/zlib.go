// Package tinycompress writes zlib streams made of stored DEFLATE blocks.
// Output is not smaller than the input, but any zlib reader accepts it and
// the writer never allocates after its first Write, which keeps it safe on
// small targets.
package tinycompress

import (
	"hash/adler32"
	"io"

	"github.com/pkg/errors"
)

const (
	// maxStored is the largest payload of one stored block
	maxStored = 0xffff

	blockFinal = 0x01
	blockMore  = 0x00
)

var header = []byte{0x78, 0x01}

// ErrClosed is returned by Write after Close
var ErrClosed = errors.New("tinycompress: writer closed")

// Writer buffers everything written and emits the stream on Close
type Writer struct {
	out    io.Writer
	buf    []byte
	closed bool
}

// NewWriter returns a Writer that emits to w; sizeHint preallocates the
// input buffer and may be 0.
func NewWriter(w io.Writer, sizeHint int) *Writer {
	return &Writer{out: w, buf: make([]byte, 0, sizeHint)}
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Close writes the header, the stored blocks and the Adler-32 trailer
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if _, err := w.out.Write(header); err != nil {
		return errors.Wrap(err, "tinycompress: header")
	}
	data := w.buf
	for {
		n := len(data)
		final := byte(blockFinal)
		if n > maxStored {
			n, final = maxStored, blockMore
		}
		hdr := []byte{final, byte(n), byte(n >> 8), ^byte(n), ^byte(n >> 8)}
		if _, err := w.out.Write(hdr); err != nil {
			return errors.Wrap(err, "tinycompress: block")
		}
		if _, err := w.out.Write(data[:n]); err != nil {
			return errors.Wrap(err, "tinycompress: block")
		}
		data = data[n:]
		if final == blockFinal {
			break
		}
	}
	sum := adler32.Checksum(w.buf)
	_, err := w.out.Write([]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)})
	return errors.Wrap(err, "tinycompress: checksum")
}

// Compress returns data as a zlib stream
func Compress(data []byte) ([]byte, error) {
	var out sliceWriter
	w := NewWriter(&out, 0)
	w.buf = data
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

type sliceWriter []byte

func (s *sliceWriter) Write(p []byte) (int, error) {
	*s = append(*s, p...)
	return len(p), nil
}
