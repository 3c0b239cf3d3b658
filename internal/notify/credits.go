// Package notify is the credit-gated send path for orientation telemetry.
//
// One pending sample, overwrite on arrival, send only when the link is
// bonded and the controller has a free buffer. Backpressure therefore costs
// a fixed amount of memory no matter how far the host falls behind.
package notify

import "sync/atomic"

// Credits tracks free outbound controller buffers. The counter is bounded to
// [0, max]: Grant saturates at max, take stops at zero. Any grant that would
// break the bound is recorded as a violation and surfaced by the notifier as
// a fatal fault, since it means the buffer accounting disagrees with the
// controller.
type Credits struct {
	max       int32
	n         atomic.Int32
	violation atomic.Bool
}

func NewCredits(max int) *Credits {
	if max <= 0 {
		max = 1
	}
	return &Credits{max: int32(max)}
}

// Grant returns n freed buffers to the pool. Implements link.CreditSink.
func (c *Credits) Grant(n int) {
	if n <= 0 {
		c.violation.Store(true)
		return
	}
	for {
		cur := c.n.Load()
		next := cur + int32(n)
		if next > c.max {
			c.violation.Store(true)
			next = c.max
		}
		if c.n.CompareAndSwap(cur, next) {
			return
		}
	}
}

// TryTake consumes one credit; false when none are available.
func (c *Credits) TryTake() bool {
	for {
		cur := c.n.Load()
		if cur <= 0 {
			return false
		}
		if c.n.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Available returns the current credit count.
func (c *Credits) Available() int { return int(c.n.Load()) }

// Max returns the controller-advertised buffer ceiling.
func (c *Credits) Max() int { return int(c.max) }

// Fill sets the counter to max. Called when a connection comes up: every
// controller buffer is free at that point.
func (c *Credits) Fill() { c.n.Store(c.max) }

// Reset zeroes the counter. Called on disconnect; stale credits must not
// leak into the next connection.
func (c *Credits) Reset() { c.n.Store(0) }

// Violated reports whether a grant ever broke the [0, max] bound.
func (c *Credits) Violated() bool { return c.violation.Load() }
