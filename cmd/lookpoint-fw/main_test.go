package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lookpoint-fw/internal/bond"
	"lookpoint-fw/internal/conn"
	"lookpoint-fw/internal/fusion"
	"lookpoint-fw/internal/imu"
	"lookpoint-fw/internal/link"
	lsim "lookpoint-fw/internal/link/sim"
	"lookpoint-fw/internal/notify"
	"lookpoint-fw/internal/sched"
	"lookpoint-fw/internal/sim"
	"lookpoint-fw/internal/telemetry"
)

// Full pipeline under a manual clock: 100 Hz sampling against a host that
// returns one credit every 100ms. The notifier must emit exactly one
// notification per credit, always carrying a fresh sample, with a contiguous
// sequence.
func TestPipeline_CreditMeteredTelemetry(t *testing.T) {
	log := zerolog.Nop()
	exec := sched.New(log)
	ctrl := lsim.New(lsim.Config{Buffers: 4})

	var (
		adapter  *link.Adapter
		engine   *fusion.Engine
		notifier *notify.Notifier
		manager  *conn.Manager
	)
	ring := link.NewRing(32, func() { exec.Wake(adapter) })
	connEvs := sched.NewQueue[link.Event](16, func() { exec.Wake(manager) })
	rawSlot := sched.NewSlot[imu.Sample](func() { exec.Wake(engine) })
	fusedSlot := sched.NewSlot[fusion.OrientationSample](func() { exec.Wake(notifier) })

	credits := notify.NewCredits(ctrl.BufferCount())
	adapter = link.NewAdapter(log, ring, connEvs, credits)
	ctrl.SetEventSink(ring)

	store := bond.NewStore(filepath.Join(t.TempDir(), "bond.yaml"))
	manager = conn.New(log, conn.Config{DeviceName: "Lookpoint Tracker"}, ctrl, store, connEvs, nil)
	notifier = notify.New(log, fusedSlot, credits, ctrl, manager, 500*time.Millisecond)
	manager.SetTelemetryGate(notifier)

	clock := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	reader := &sim.Reader{Now: func() time.Time { return clock }}
	sampler := imu.NewSampler(log, imu.SamplerConfig{Period: 10 * time.Millisecond}, reader, rawSlot)
	engine = fusion.NewEngine(fusion.Config{}, rawSlot, fusedSlot)

	exec.Add(sched.TierLink, 0, adapter)
	exec.Add(sched.TierApp, 10*time.Millisecond, sampler)
	exec.Add(sched.TierApp, 0, engine)
	exec.Add(sched.TierApp, 0, notifier)
	exec.Add(sched.TierApp, 0, manager)

	require.NoError(t, manager.Start())
	require.True(t, ctrl.Advertising())

	_, err := ctrl.Connect()
	require.NoError(t, err)
	peer := link.PeerID{0xAA, 0xBB, 0xCC, 0x01, 0x02, 0x03}
	var confirm [16]byte
	confirm[0] = 0x5A
	ctrl.PairRequest(peer, confirm)

	grants := 0
	for i := 1; i <= 200; i++ {
		clock = clock.Add(10 * time.Millisecond)
		if i%10 == 0 {
			ctrl.FreeBuffers(1)
			grants++
		}
		require.NoError(t, exec.Step(clock))
	}

	assert.Equal(t, conn.StateBonded, manager.Snapshot().State)

	sent := ctrl.Sent()
	// Initial connection fill drains the full buffer pool once, then the
	// flow is exactly one notification per returned credit.
	require.Len(t, sent, ctrl.BufferCount()+grants)

	for i, b := range sent {
		rec, err := telemetry.Decode(b)
		require.NoError(t, err)
		assert.Equal(t, uint16(i), rec.Seq, "sequence must be contiguous")
		assert.True(t, rec.Valid)
	}
}

// A disconnect mid-stream discards in-flight telemetry and the device
// returns to advertising without manual intervention.
func TestPipeline_DisconnectRecovers(t *testing.T) {
	log := zerolog.Nop()
	exec := sched.New(log)
	ctrl := lsim.New(lsim.Config{Buffers: 2})

	var (
		adapter  *link.Adapter
		notifier *notify.Notifier
		manager  *conn.Manager
	)
	ring := link.NewRing(32, func() { exec.Wake(adapter) })
	connEvs := sched.NewQueue[link.Event](16, func() { exec.Wake(manager) })
	fusedSlot := sched.NewSlot[fusion.OrientationSample](func() { exec.Wake(notifier) })

	credits := notify.NewCredits(ctrl.BufferCount())
	adapter = link.NewAdapter(log, ring, connEvs, credits)
	ctrl.SetEventSink(ring)

	store := bond.NewStore(filepath.Join(t.TempDir(), "bond.yaml"))
	manager = conn.New(log, conn.Config{DeviceName: "Lookpoint Tracker"}, ctrl, store, connEvs, nil)
	notifier = notify.New(log, fusedSlot, credits, ctrl, manager, 500*time.Millisecond)
	manager.SetTelemetryGate(notifier)

	exec.Add(sched.TierLink, 0, adapter)
	exec.Add(sched.TierApp, 0, notifier)
	exec.Add(sched.TierApp, 0, manager)

	require.NoError(t, manager.Start())
	_, err := ctrl.Connect()
	require.NoError(t, err)
	var confirm [16]byte
	confirm[0] = 1
	ctrl.PairRequest(link.PeerID{9}, confirm)

	clock := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		clock = clock.Add(10 * time.Millisecond)
		require.NoError(t, exec.Step(clock))
	}
	require.Equal(t, conn.StateBonded, manager.Snapshot().State)

	fusedSlot.Put(fusion.OrientationSample{At: clock, Q: [4]float64{1, 0, 0, 0}, Valid: true})
	ctrl.Drop(link.ReasonConnectionTimeout)
	for i := 0; i < 3; i++ {
		clock = clock.Add(10 * time.Millisecond)
		require.NoError(t, exec.Step(clock))
	}

	assert.Equal(t, conn.StateAdvertising, manager.Snapshot().State)
	assert.Equal(t, 0, credits.Available())
	_, pending := fusedSlot.Peek()
	assert.False(t, pending, "pending sample discarded on disconnect")
	assert.True(t, ctrl.Advertising())
}
