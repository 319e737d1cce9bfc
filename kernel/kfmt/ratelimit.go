package kfmt

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedPrinter forwards messages to Printf no more than once per
// configured interval and counts the messages it suppressed.
type RateLimitedPrinter struct {
	limit      *rate.Limiter
	suppressed atomic.Uint64
}

// RateLimited returns a printer that emits at most one message per the
// provided duration.
func RateLimited(every time.Duration) *RateLimitedPrinter {
	return &RateLimitedPrinter{
		limit: rate.NewLimiter(rate.Every(every), 1),
	}
}

// Printf behaves like the package-level Printf if the rate limit allows it;
// otherwise the message is dropped. When a message is emitted after others
// were dropped, the number of dropped messages is reported first.
func (p *RateLimitedPrinter) Printf(format string, args ...interface{}) {
	if !p.limit.Allow() {
		p.suppressed.Add(1)
		return
	}

	if dropped := p.suppressed.Swap(0); dropped != 0 {
		Printf("(%d similar messages suppressed)\n", dropped)
	}
	Printf(format, args...)
}
