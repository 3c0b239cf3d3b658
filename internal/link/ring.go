package link

import "sync"

// Ring is the fixed-size event intake between controller interrupt context
// and the adapter task. Deliver appends under a brief lock and fires the
// wake hook; all translation work happens later in the adapter. On overflow
// the oldest event is discarded and counted, keeping Deliver O(1) always.
type Ring struct {
	mu      sync.Mutex
	buf     []Event
	head    int
	n       int
	dropped uint64

	wake func()
}

func NewRing(size int, wake func()) *Ring {
	if size <= 0 {
		size = 32
	}
	return &Ring{buf: make([]Event, size), wake: wake}
}

// Deliver implements EventSink. Safe from any goroutine; does not allocate,
// log, or block beyond the spinlock-short critical section.
func (r *Ring) Deliver(ev Event) {
	r.mu.Lock()
	if r.n == len(r.buf) {
		r.head = (r.head + 1) % len(r.buf)
		r.n--
		r.dropped++
	}
	r.buf[(r.head+r.n)%len(r.buf)] = ev
	r.n++
	r.mu.Unlock()
	if r.wake != nil {
		r.wake()
	}
}

// Pop removes the oldest pending event.
func (r *Ring) Pop() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == 0 {
		return Event{}, false
	}
	ev := r.buf[r.head]
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	return ev, true
}

// TakeDropped returns and resets the overflow counter.
func (r *Ring) TakeDropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.dropped
	r.dropped = 0
	return d
}
