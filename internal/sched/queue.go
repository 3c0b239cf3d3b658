package sched

import "sync"

// Queue is a small bounded FIFO mailbox for handoffs where ordering matters
// and coalescing would lose information (connection state events). Capacity
// is fixed at construction; overflow drops the newest element and counts it,
// so memory stays bounded under a misbehaving producer.
type Queue[T any] struct {
	mu      sync.Mutex
	buf     []T
	head    int
	n       int
	dropped uint64
	wake    func()
}

func NewQueue[T any](capacity int, wake func()) *Queue[T] {
	if capacity <= 0 {
		capacity = 8
	}
	return &Queue[T]{buf: make([]T, capacity), wake: wake}
}

// Push appends v. Reports false when the queue was full and v was dropped.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	ok := q.n < len(q.buf)
	if ok {
		q.buf[(q.head+q.n)%len(q.buf)] = v
		q.n++
	} else {
		q.dropped++
	}
	q.mu.Unlock()
	if q.wake != nil {
		q.wake()
	}
	return ok
}

// Pop removes and returns the oldest element.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == 0 {
		var zero T
		return zero, false
	}
	v := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return v, true
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Dropped returns the count of elements rejected on overflow.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
