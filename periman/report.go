package periman

import (
	"fmt"
	"io"
)

// Report writes the "GPIO Info" table: one line per owned pin with its
// type (or extra-type label), bus number and channel.
func (r *Registry) Report(w io.Writer) error {
	pw := &reportWriter{w: w}
	pw.printf("GPIO Info:\n")
	pw.printf("------------------------------------------\n")
	pw.printf("  GPIO : BUS_TYPE[bus/unit][chan]\n")
	pw.printf("  --------------------------------------  \n")
	for _, info := range r.Snapshot() {
		pw.printf("  %4d : ", info.Pin)
		if info.ExtraType != "" {
			pw.printf("%s", info.ExtraType)
		} else {
			pw.printf("%s", r.TypeName(info.Type))
		}
		if info.BusNum != -1 {
			pw.printf("[%d]", info.BusNum)
		}
		if info.BusChannel != -1 {
			pw.printf("[%d]", info.BusChannel)
		}
		pw.printf("\n")
	}
	return pw.err
}

// reportWriter remembers the first write error
type reportWriter struct {
	w   io.Writer
	err error
}

func (p *reportWriter) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
