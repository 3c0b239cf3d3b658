// Package sched is the cooperative runtime binding the firmware tasks.
//
// One goroutine dispatches a fixed, build-time task set in two tiers: the
// link tier services controller events ahead of everything else, then the
// application tier (sampler, fusion, notifier, connection manager) runs
// cooperatively. Interrupt-style contexts never run task work; they record
// state and wake the owning task.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lookpoint-fw/internal/fault"
)

type Tier int

const (
	// TierLink tasks drain controller events. They run first in every
	// iteration; their deadline windows are not renegotiable.
	TierLink Tier = iota
	// TierApp tasks are cooperatively scheduled after the link tier.
	TierApp

	tierCount
)

// Task is one schedulable unit. Run must do a bounded slice of work and
// return; blocking inside Run stalls every other task.
type Task interface {
	Name() string
	Run(now time.Time) error
}

type entry struct {
	task   Task
	tier   Tier
	period time.Duration
	due    time.Time
	woken  bool
}

// Executor dispatches registered tasks. Register everything before Run;
// registration is not safe once the loop is started.
type Executor struct {
	log zerolog.Logger

	mu      sync.Mutex
	entries [tierCount][]*entry
	byTask  map[Task]*entry

	wakeCh chan struct{}
}

func New(log zerolog.Logger) *Executor {
	return &Executor{
		log:    log,
		byTask: make(map[Task]*entry),
		wakeCh: make(chan struct{}, 1),
	}
}

// Add registers a task. period > 0 runs the task on that cadence; period 0
// means wake-driven only. Tasks run in registration order within a tier.
func (e *Executor) Add(tier Tier, period time.Duration, t Task) {
	if t == nil {
		return
	}
	en := &entry{task: t, tier: tier, period: period}
	e.entries[tier] = append(e.entries[tier], en)
	e.byTask[t] = en
}

// Wake marks the task runnable and triggers an immediate iteration. Safe to
// call from any goroutine, including controller event context; the critical
// section is a flag write.
func (e *Executor) Wake(t Task) {
	e.mu.Lock()
	en := e.byTask[t]
	if en != nil {
		en.woken = true
	}
	e.mu.Unlock()
	if en == nil {
		return
	}
	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

// WakeFunc returns a closure waking t, for handing to event callbacks.
func (e *Executor) WakeFunc(t Task) func() {
	return func() { e.Wake(t) }
}

// Run dispatches until ctx is canceled or a task returns a fatal fault.
// The fatal fault is returned; context cancellation returns ctx.Err().
func (e *Executor) Run(ctx context.Context) error {
	e.primeDeadlines(time.Now())

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		if d, ok := e.untilNextDue(time.Now()); ok {
			timer.Reset(d)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-e.wakeCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		if err := e.Step(time.Now()); err != nil {
			return err
		}
	}
}

// Step runs a single iteration at the given time: link tier first, then the
// application tier, each in registration order. Exposed so tests can drive
// the loop with a manual clock.
func (e *Executor) Step(now time.Time) error {
	runnable := e.collect(now)
	for _, en := range runnable {
		if err := en.task.Run(now); err != nil {
			if fault.IsFatal(err) {
				e.log.Error().Str("task", en.task.Name()).Err(err).Msg("fatal fault, stopping executor")
				return fmt.Errorf("sched: task %s: %w", en.task.Name(), err)
			}
			e.log.Warn().Str("task", en.task.Name()).Err(err).Msg("task error")
		}
	}
	return nil
}

func (e *Executor) primeDeadlines(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for t := Tier(0); t < tierCount; t++ {
		for _, en := range e.entries[t] {
			if en.period > 0 {
				en.due = now.Add(en.period)
			}
		}
	}
}

func (e *Executor) untilNextDue(now time.Time) (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var next time.Time
	for t := Tier(0); t < tierCount; t++ {
		for _, en := range e.entries[t] {
			if en.period <= 0 {
				continue
			}
			if next.IsZero() || en.due.Before(next) {
				next = en.due
			}
		}
	}
	if next.IsZero() {
		return 0, false
	}
	d := next.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

func (e *Executor) collect(now time.Time) []*entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*entry
	for t := Tier(0); t < tierCount; t++ {
		for _, en := range e.entries[t] {
			run := en.woken
			if en.period > 0 && !en.due.After(now) {
				run = true
				// Next deadline counts from now, not from the missed
				// deadline: wireless jitter must not compress the
				// sampling cadence.
				en.due = now.Add(en.period)
			}
			if run {
				en.woken = false
				out = append(out, en)
			}
		}
	}
	return out
}
