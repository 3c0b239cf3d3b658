package sched

import "sync"

// Slot is a single-value overwrite mailbox, the only cross-task handoff in
// the firmware. A producer always succeeds: a newer value replaces an unread
// one (coalescing), so backlog memory stays at exactly one element no matter
// how far the consumer falls behind.
//
// The critical section is a copy under a mutex; no task ever waits on
// another while holding it.
type Slot[T any] struct {
	mu   sync.Mutex
	val  T
	full bool
	wake func()
}

// NewSlot creates a slot. wake, if non-nil, is called after every Put,
// outside the lock; hand it Executor.WakeFunc of the consuming task.
func NewSlot[T any](wake func()) *Slot[T] {
	return &Slot[T]{wake: wake}
}

// Put stores v, overwriting any unread value. Reports whether a pending
// value was discarded.
func (s *Slot[T]) Put(v T) (overwrote bool) {
	s.mu.Lock()
	overwrote = s.full
	s.val = v
	s.full = true
	s.mu.Unlock()
	if s.wake != nil {
		s.wake()
	}
	return overwrote
}

// Take removes and returns the pending value, if any.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full {
		var zero T
		return zero, false
	}
	s.full = false
	return s.val, true
}

// Peek returns the pending value without consuming it.
func (s *Slot[T]) Peek() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full {
		var zero T
		return zero, false
	}
	return s.val, true
}

// Clear discards any pending value.
func (s *Slot[T]) Clear() {
	s.mu.Lock()
	var zero T
	s.val = zero
	s.full = false
	s.mu.Unlock()
}
