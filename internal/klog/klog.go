// Package klog is the kernel's early console logger: everything from
// boot messages to fault backtraces goes through it before any richer
// subsystem (or a host OS) exists to receive it.
//
// Ground: no example repo in the retrieved corpus wires a structured
// logging library (zerolog/zap/logrus) into freestanding or
// kernel-adjacent code; biscuit's own host-side tools (kernel/chentry.go)
// use the standard library "log" package directly. A freestanding
// kernel cannot import any of those libraries either way — there is no
// goroutine scheduler, no os.Stdout, no heap until internal/kalloc is
// up — so klog wraps an injected io.Writer (the SBI console, once
// internal/sbi is wired) with the same %v-style formatting "log" itself
// uses, rather than adopting a structured logger with nowhere to run.
package klog

import (
	"fmt"
	"io"
)

// Level orders klog's severity levels, mirroring the teacher's
// boot-time log conventions (FATAL panics, ERROR and above survive a
// release build's verbosity filter).
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "???"
	}
}

var (
	sink    io.Writer = discard{}
	minimum           = Info
)

// SetSink installs the writer klog appends formatted lines to — in
// production, a console backed by SBI's legacy putchar call
// (internal/sbi); in tests, any io.Writer, e.g. a bytes.Buffer.
func SetSink(w io.Writer) { sink = w }

// SetLevel sets the minimum level that reaches the sink.
func SetLevel(l Level) { minimum = l }

func logf(level Level, format string, args ...any) {
	if level < minimum {
		return
	}
	fmt.Fprintf(sink, "["+level.String()+"] "+format+"\n", args...)
}

// Debugf logs at Debug level.
func Debugf(format string, args ...any) { logf(Debug, format, args...) }

// Infof logs at Info level.
func Infof(format string, args ...any) { logf(Info, format, args...) }

// Warnf logs at Warn level.
func Warnf(format string, args ...any) { logf(Warn, format, args...) }

// Errorf logs at Error level.
func Errorf(format string, args ...any) { logf(Error, format, args...) }

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
