package link

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lookpoint-fw/internal/sched"
)

type fakeCredits struct{ granted int }

func (f *fakeCredits) Grant(n int) { f.granted += n }

func TestAdapter_RoutesCreditGrants(t *testing.T) {
	ring := NewRing(8, nil)
	connQ := sched.NewQueue[Event](8, nil)
	credits := &fakeCredits{}
	a := NewAdapter(zerolog.Nop(), ring, connQ, credits)

	ring.Deliver(Event{Kind: EventBufferAvailable, Count: 3})
	ring.Deliver(Event{Kind: EventBufferAvailable, Count: 1})
	require.NoError(t, a.Run(time.Now()))

	assert.Equal(t, 4, credits.granted)
	assert.Equal(t, 0, connQ.Len(), "credit events never reach the manager")
}

func TestAdapter_ForwardsConnectionEvents(t *testing.T) {
	ring := NewRing(8, nil)
	wakes := 0
	connQ := sched.NewQueue[Event](8, func() { wakes++ })
	a := NewAdapter(zerolog.Nop(), ring, connQ, &fakeCredits{})

	ring.Deliver(Event{Kind: EventConnected, Handle: 7})
	ring.Deliver(Event{Kind: EventPairingRequest, Handle: 7})
	ring.Deliver(Event{Kind: EventDisconnected, Handle: 7, Reason: ReasonConnectionTimeout})
	require.NoError(t, a.Run(time.Now()))

	require.Equal(t, 3, connQ.Len())
	assert.Equal(t, 3, wakes, "manager woken per forwarded event")

	ev, _ := connQ.Pop()
	assert.Equal(t, EventConnected, ev.Kind)
	ev, _ = connQ.Pop()
	assert.Equal(t, EventPairingRequest, ev.Kind)
	ev, _ = connQ.Pop()
	assert.Equal(t, EventDisconnected, ev.Kind)
	assert.Equal(t, uint8(ReasonConnectionTimeout), ev.Reason)
}

func TestAdapter_DataSentConsumedSilently(t *testing.T) {
	ring := NewRing(8, nil)
	connQ := sched.NewQueue[Event](8, nil)
	a := NewAdapter(zerolog.Nop(), ring, connQ, &fakeCredits{})

	ring.Deliver(Event{Kind: EventDataSent, Handle: 7})
	require.NoError(t, a.Run(time.Now()))
	assert.Equal(t, 0, connQ.Len())
}

func TestAdapter_DrainsEverythingInOneRun(t *testing.T) {
	ring := NewRing(16, nil)
	connQ := sched.NewQueue[Event](16, nil)
	a := NewAdapter(zerolog.Nop(), ring, connQ, &fakeCredits{})

	for i := 0; i < 10; i++ {
		ring.Deliver(Event{Kind: EventConnected})
	}
	require.NoError(t, a.Run(time.Now()))
	_, ok := ring.Pop()
	assert.False(t, ok, "ring fully drained")
}
