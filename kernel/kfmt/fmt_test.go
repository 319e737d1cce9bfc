package kfmt

import (
	"bytes"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestPrintfToRingBuffer(t *testing.T) {
	defer func() {
		outputSink = nil
		earlyPrintBuffer.rIndex, earlyPrintBuffer.wIndex = 0, 0
	}()

	earlyPrintBuffer.rIndex, earlyPrintBuffer.wIndex = 0, 0
	outputSink = nil

	Printf("[vmm] mapped %d pages at 0x%x\n", 3, 0x400000)

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if exp, got := "[vmm] mapped 3 pages at 0x400000\n", buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}

	// Once a sink is set output goes straight to it
	buf.Reset()
	Printf("direct %t", true)
	if exp, got := "direct true", buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "%s=%d", "count", 42)

	if exp, got := "count=42", buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}

	// writing to a nil writer is a no-op
	Fprintf(nil, "ignored")
}

func TestRateLimitedPrinter(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	var buf bytes.Buffer
	outputSink = &buf

	p := RateLimited(time.Hour)
	p.Printf("first\n")
	p.Printf("second\n")
	p.Printf("third\n")

	if exp, got := "first\n", buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}

	if exp, got := uint64(2), p.suppressed.Load(); got != exp {
		t.Fatalf("expected %d suppressed messages; got %d", exp, got)
	}

	// Lift the limit; the next message reports the dropped ones
	p.limit = rate.NewLimiter(rate.Inf, 1)
	buf.Reset()
	p.Printf("fourth\n")

	if exp, got := "(2 similar messages suppressed)\nfourth\n", buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}
