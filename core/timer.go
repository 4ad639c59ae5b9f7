package core

import (
	"sync/atomic"
	"time"
)

// TimerFreq is the uptime tick rate
const TimerFreq = 1000000

var (
	bootTime    = time.Now()
	clockSource atomic.Pointer[func() uint64]
)

// SetClockSource replaces the uptime counter. src returns ticks at TimerFreq
// since boot, for targets with a free-running hardware timer.
func SetClockSource(src func() uint64) {
	if src == nil {
		clockSource.Store(nil)
		return
	}
	clockSource.Store(&src)
}

// GetUptime returns ticks since boot
func GetUptime() uint64 {
	if src := clockSource.Load(); src != nil {
		return (*src)()
	}
	return uint64(time.Since(bootTime) / time.Microsecond)
}
