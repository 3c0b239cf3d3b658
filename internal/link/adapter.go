package link

import (
	"time"

	"github.com/rs/zerolog"

	"lookpoint-fw/internal/sched"
)

// CreditSink receives buffer credit grants. Implemented by the telemetry
// notifier's credit counter.
type CreditSink interface {
	Grant(n int)
}

// Adapter is the link-tier task translating raw controller events into
// scheduler-visible signals: credit grants go to the notifier, connection
// and pairing events go to the connection manager's mailbox. Logging happens
// here, never in the intake path.
type Adapter struct {
	log zerolog.Logger

	ring    *Ring
	connEvs *sched.Queue[Event]
	credits CreditSink
}

// NewAdapter builds the adapter around an existing intake ring. connEvs is
// the connection manager's event mailbox (its wake hook wakes the manager);
// credits is the notifier's counter.
func NewAdapter(log zerolog.Logger, ring *Ring, connEvs *sched.Queue[Event], credits CreditSink) *Adapter {
	return &Adapter{log: log, ring: ring, connEvs: connEvs, credits: credits}
}

func (a *Adapter) Name() string { return "link-adapter" }

// Run drains the intake ring. Each event is dispatched exactly once; the
// ring bounds how much work one iteration can do.
func (a *Adapter) Run(now time.Time) error {
	if d := a.ring.TakeDropped(); d > 0 {
		a.log.Warn().Uint64("dropped", d).Msg("controller event intake overflow")
	}
	for {
		ev, ok := a.ring.Pop()
		if !ok {
			return nil
		}
		switch ev.Kind {
		case EventBufferAvailable:
			a.credits.Grant(ev.Count)
			a.log.Debug().Int("count", ev.Count).Msg("buffer credits granted")
		case EventDataSent:
			a.log.Debug().Uint16("handle", uint16(ev.Handle)).Msg("notification sent")
		case EventConnected, EventDisconnected, EventPairingRequest:
			if !a.connEvs.Push(ev) {
				a.log.Warn().Stringer("kind", ev.Kind).Msg("connection event mailbox full, event dropped")
			}
		default:
			a.log.Warn().Stringer("kind", ev.Kind).Msg("unknown controller event")
		}
	}
}
