package linux

import (
	"io"

	"github.com/pkg/errors"

	"gohal/core"
	"gohal/debug"
	"gohal/protocol"
)

// ServeConn runs the command protocol on one host connection until it
// closes. Responses go to this connection while it is being served.
func ServeConn(rw io.ReadWriter) error {
	sess := protocol.NewSession(rw, core.HandleCommand)
	sess.OnHostReset = func() {
		debug.Infof("host restarted its sequence")
	}
	core.SetResponder(sess)
	defer core.SetResponder(nil)

	buf := make([]byte, 256)
	for {
		n, err := rw.Read(buf)
		if n > 0 {
			if ferr := sess.Feed(buf[:n]); ferr != nil {
				debug.Warnf("%v", ferr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "serve")
		}
	}
}
