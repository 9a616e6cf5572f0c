package kraken_auth

import (
	"sync/atomic"
	"time"
)

// unixEpochTicks is 1970-01-01 expressed in 100ns ticks since 0001-01-01,
// the epoch earlier runs of this client used for their nonces.
const unixEpochTicks int64 = 621355968000000000

const tick = 100 * time.Nanosecond

// NonceSource hands out strictly increasing nonces for private calls.
//
// The value is the wall clock at construction (in ticks) plus the monotonic
// time elapsed since then, so it keeps increasing across runs and is not
// affected by wall-clock steps during a run. Two callers sampling inside the
// same tick are separated by bumping to last+1.
//
// Create one per process and share it between every client using the same
// API key.
type NonceSource struct {
	base  int64
	start time.Time
	now   func() time.Time
	last  atomic.Int64
}

// NewNonceSource captures the base time from now. A nil now uses time.Now.
func NewNonceSource(now func() time.Time) *NonceSource {
	if now == nil {
		now = time.Now
	}
	start := now()
	return &NonceSource{
		base:  start.UnixNano()/int64(tick) + unixEpochTicks,
		start: start,
		now:   now,
	}
}

func (n *NonceSource) Next() int64 {
	candidate := n.base + int64(n.now().Sub(n.start)/tick)
	for {
		last := n.last.Load()
		next := candidate
		if next <= last {
			next = last + 1
		}
		if n.last.CompareAndSwap(last, next) {
			return next
		}
	}
}
