// Package kfmt implements the kernel log output facility. Output is sent to a
// registered sink; anything logged before a sink is available is captured by
// an early ring buffer and replayed when the sink is registered.
package kfmt

import (
	"fmt"
	"io"
	"pagevmm/kernel/sync"
)

var (
	// outputLock serializes writes to the output sink and the early
	// print buffer.
	outputLock sync.Spinlock

	// earlyPrintBuffer is a ring buffer that stores Printf output before
	// an output sink is registered.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	defer outputLock.AcquireGuard().Release()

	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// Printf formats according to a format specifier and writes the result to the
// registered output sink or, if no sink is registered, to the early print
// buffer. It supports the formatting verbs of fmt.Printf.
func Printf(format string, args ...interface{}) {
	defer outputLock.AcquireGuard().Release()

	if outputSink == nil {
		_, _ = fmt.Fprintf(&earlyPrintBuffer, format, args...)
		return
	}

	_, _ = fmt.Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. Writes to w are not serialized with Printf.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		return
	}

	_, _ = fmt.Fprintf(w, format, args...)
}
