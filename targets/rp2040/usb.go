//go:build rp2040

package main

import (
	"machine"
	"time"

	"gohal/protocol"
)

// usbLink is the host link over USB CDC
type usbLink struct{}

func (usbLink) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := machine.Serial.Write(p[written:])
		if err != nil {
			return written, err
		}
		if n == 0 {
			// host not reading; drop rather than stall the command loop
			return written, nil
		}
		written += n
	}
	return written, nil
}

// serveUSB feeds received bytes to the session forever
func serveUSB(sess *protocol.Session) {
	buf := make([]byte, 64)
	for {
		n := 0
		for n < len(buf) && machine.Serial.Buffered() > 0 {
			b, err := machine.Serial.ReadByte()
			if err != nil {
				break
			}
			buf[n] = b
			n++
		}
		if n > 0 {
			sess.Feed(buf[:n])
			continue
		}
		time.Sleep(100 * time.Microsecond)
	}
}
