// Package debug provides leveled debug output for firmware and host code.
//
// Output goes through a platform-supplied Writer (UART, USB CDC, log.Printf).
// Nothing is printed until SetWriter is called.
package debug

import (
	"fmt"
	"sync/atomic"
)

// Writer is a function that emits one line of debug output
type Writer func(string)

// Level selects how much output is produced
type Level int32

const (
	LevelNone Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelVerbose
)

var levelTags = [...]string{"", "E", "W", "I", "D", "V"}

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelVerbose:
		return "verbose"
	}
	return "unknown"
}

// ParseLevel is the inverse of Level.String
func ParseLevel(s string) (Level, bool) {
	for l := LevelNone; l <= LevelVerbose; l++ {
		if l.String() == s {
			return l, true
		}
	}
	return LevelNone, false
}

var (
	writer atomic.Pointer[Writer]
	level  atomic.Int32

	// async output channel, nil until InitAsync
	asyncChan chan string
)

func init() {
	level.Store(int32(LevelError))
}

// SetWriter sets the platform-specific output function.
// A nil writer disables output.
func SetWriter(w Writer) {
	if w == nil {
		writer.Store(nil)
		return
	}
	writer.Store(&w)
}

// SetLevel sets the most verbose level that is printed
func SetLevel(l Level) {
	level.Store(int32(l))
}

// GetLevel returns the current level
func GetLevel() Level {
	return Level(level.Load())
}

// Enabled reports whether messages at l are printed
func Enabled(l Level) bool {
	return l != LevelNone && l <= GetLevel() && writer.Load() != nil
}

// Println writes msg unconditionally if a writer is set
func Println(msg string) {
	if w := writer.Load(); w != nil {
		(*w)(msg)
	}
}

// InitAsync starts a goroutine that drains Async messages.
// Call this from main() after SetWriter.
func InitAsync(depth int) {
	asyncChan = make(chan string, depth)
	go func() {
		for msg := range asyncChan {
			Println(msg)
		}
	}()
}

// Async queues a message without blocking; the message is dropped if the
// queue is full or InitAsync was never called.
func Async(msg string) {
	if asyncChan == nil {
		return
	}
	select {
	case asyncChan <- msg:
	default:
	}
}

func logf(l Level, format string, args ...interface{}) {
	if !Enabled(l) {
		return
	}
	Println("[" + levelTags[l] + "] " + fmt.Sprintf(format, args...))
}

// Errorf logs at error level
func Errorf(format string, args ...interface{}) { logf(LevelError, format, args...) }

// Warnf logs at warn level
func Warnf(format string, args ...interface{}) { logf(LevelWarn, format, args...) }

// Infof logs at info level
func Infof(format string, args ...interface{}) { logf(LevelInfo, format, args...) }

// Debugf logs at debug level
func Debugf(format string, args ...interface{}) { logf(LevelDebug, format, args...) }

// Verbosef logs at verbose level
func Verbosef(format string, args ...interface{}) { logf(LevelVerbose, format, args...) }
