package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lookpoint-fw/internal/conn"
	"lookpoint-fw/internal/fault"
	"lookpoint-fw/internal/fusion"
	"lookpoint-fw/internal/link"
	"lookpoint-fw/internal/sched"
	"lookpoint-fw/internal/telemetry"
)

// Gate exposes the connection manager's gating view.
type Gate interface {
	Snapshot() conn.Snapshot
}

type Notifier struct {
	log        zerolog.Logger
	pending    *sched.Slot[fusion.OrientationSample]
	credits    *Credits
	ctrl       link.Controller
	gate       Gate
	staleAfter time.Duration

	mu          sync.Mutex
	seq         uint16
	lastValidAt time.Time
	sent        uint64
}

// New wires the send path. staleAfter bounds both the age of a pending
// sample and how long stale-flagged output keeps flowing after the sensor
// faults; at or under zero it defaults to 500ms.
func New(log zerolog.Logger, pending *sched.Slot[fusion.OrientationSample], credits *Credits, ctrl link.Controller, gate Gate, staleAfter time.Duration) *Notifier {
	if staleAfter <= 0 {
		staleAfter = 500 * time.Millisecond
	}
	return &Notifier{
		log:        log,
		pending:    pending,
		credits:    credits,
		ctrl:       ctrl,
		gate:       gate,
		staleAfter: staleAfter,
	}
}

func (n *Notifier) Name() string { return "telemetry-notifier" }

// LinkUp arms the send path for a new bonded connection. All controller
// buffers are free at connection time.
func (n *Notifier) LinkUp(link.Handle) {
	n.mu.Lock()
	n.seq = 0
	n.lastValidAt = time.Time{}
	n.mu.Unlock()
	n.credits.Fill()
}

// LinkDown discards all in-flight telemetry state. The pending sample and
// credits belong to the connection that just died, not the next one.
func (n *Notifier) LinkDown() {
	n.pending.Clear()
	n.credits.Reset()
	n.mu.Lock()
	n.seq = 0
	n.mu.Unlock()
}

// Sent returns the number of notifications handed to the controller.
func (n *Notifier) Sent() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent
}

// Run sends at most one notification: newest sample, bonded link, one
// credit. Every other outcome is a silent drop; the slot's overwrite
// semantics guarantee a fresher sample is already on its way.
func (n *Notifier) Run(now time.Time) error {
	if n.credits.Violated() {
		return fault.New(fault.LogicInvariant, "notify: credit count left [0, %d]", n.credits.Max())
	}

	snap := n.gate.Snapshot()
	if snap.State != conn.StateBonded {
		n.pending.Clear()
		return nil
	}

	s, ok := n.pending.Peek()
	if !ok {
		return nil
	}

	n.mu.Lock()
	if s.Valid {
		n.lastValidAt = s.At
	}
	lastValid := n.lastValidAt
	n.mu.Unlock()

	if !s.Valid && (lastValid.IsZero() || now.Sub(lastValid) > n.staleAfter) {
		// Sensor has been faulted past the staleness bound: stop emitting
		// rather than keep repeating an orientation that is no longer true.
		n.pending.Take()
		return nil
	}
	if age := now.Sub(s.At); age > n.staleAfter {
		n.pending.Take()
		n.log.Debug().Dur("age", age).Msg("pending sample stale, dropped")
		return nil
	}

	if !n.credits.TryTake() {
		// Keep the sample; a newer one overwrites it while we wait for the
		// next buffer-available grant.
		return nil
	}
	s, ok = n.pending.Take()
	if !ok {
		// Raced with LinkDown clearing the slot.
		n.credits.Grant(1)
		return nil
	}

	n.mu.Lock()
	seq := n.seq
	n.seq++
	n.mu.Unlock()

	payload := telemetry.Encode(telemetry.Record{Seq: seq, Valid: s.Valid, Q: s.Q})
	if err := n.ctrl.Send(snap.Handle, payload); err != nil {
		// Link faults are absorbed; the disconnect event does the cleanup.
		// The buffer was not consumed, so the credit comes back.
		n.credits.Grant(1)
		n.log.Warn().Err(err).Msg("notification send failed")
		return nil
	}

	n.mu.Lock()
	n.sent++
	n.mu.Unlock()
	return nil
}
