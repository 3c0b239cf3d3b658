// Package conn owns the connection state machine and secure pairing.
//
// State transitions are driven solely by link controller events delivered
// through the adapter's mailbox; nothing else may move the machine. The
// manager also owns the bond key material: loaded at boot, regenerated only
// by a successful pairing.
package conn

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lookpoint-fw/internal/bond"
	"lookpoint-fw/internal/link"
	"lookpoint-fw/internal/sched"
)

type State int

const (
	StateDisconnected State = iota
	StateAdvertising
	StateConnecting
	StateConnected
	StateBonded
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAdvertising:
		return "advertising"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBonded:
		return "bonded"
	case StateDisconnecting:
		return "disconnecting"
	}
	return "unknown"
}

// Snapshot is the gating view consumed by the telemetry notifier: send only
// when State is Bonded and Handle is live.
type Snapshot struct {
	State  State
	Handle link.Handle
}

// TelemetryGate is notified of link lifecycle edges so in-flight telemetry
// state can be armed and discarded. Implemented by the notifier.
type TelemetryGate interface {
	LinkUp(h link.Handle)
	LinkDown()
}

type Config struct {
	DeviceName          string
	AdvertiseIntervalMs int

	// MaxPairingFailures is the per-peer failure count after which attempts
	// are rejected without any cryptographic work. Default 5.
	MaxPairingFailures int
	// PairingBackoff is how long the rejection window lasts after the
	// failure limit is reached. Default 30s.
	PairingBackoff time.Duration
}

type peerFailures struct {
	count  int
	lastAt time.Time
}

type Manager struct {
	log  zerolog.Logger
	cfg  Config
	ctrl link.Controller

	store  *bond.Store
	events *sched.Queue[link.Event]
	gate   TelemetryGate

	mu     sync.RWMutex
	state  State
	handle link.Handle

	km   *bond.KeyMaterial
	hold bool

	failures map[link.PeerID]*peerFailures

	// Injectable for tests: randRead is crypto/rand.Read, now is time.Now.
	randRead func([]byte) (int, error)
	now      func() time.Time
}

func New(log zerolog.Logger, cfg Config, ctrl link.Controller, store *bond.Store, events *sched.Queue[link.Event], gate TelemetryGate) *Manager {
	if cfg.MaxPairingFailures <= 0 {
		cfg.MaxPairingFailures = 5
	}
	if cfg.PairingBackoff <= 0 {
		cfg.PairingBackoff = 30 * time.Second
	}
	if cfg.AdvertiseIntervalMs <= 0 {
		cfg.AdvertiseIntervalMs = 100
	}
	return &Manager{
		log:      log,
		cfg:      cfg,
		ctrl:     ctrl,
		store:    store,
		events:   events,
		gate:     gate,
		failures: make(map[link.PeerID]*peerFailures),
		randRead: rand.Read,
		now:      time.Now,
	}
}

func (m *Manager) Name() string { return "conn-manager" }

// SetTelemetryGate wires the notifier after construction; the manager and
// notifier reference each other, so one side binds late. Call before Start.
func (m *Manager) SetTelemetryGate(g TelemetryGate) { m.gate = g }

// Snapshot returns the current gating state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, Handle: m.handle}
}

// Bonded reports whether persisted key material exists.
func (m *Manager) Bonded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.km != nil
}

// Hold suppresses automatic re-advertising after the next disconnect.
func (m *Manager) Hold() {
	m.mu.Lock()
	m.hold = true
	m.mu.Unlock()
}

// Resume re-enables automatic advertising and restarts it if idle.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.hold = false
	m.mu.Unlock()
	m.ensureAdvertising()
}

// Start loads persisted bond material and begins advertising. A corrupt
// bond file is logged and treated as no bond; refusing to boot over it
// would brick the device.
func (m *Manager) Start() error {
	km, err := m.store.Load()
	if err != nil {
		m.log.Warn().Err(err).Msg("bond load failed, starting unbonded")
	} else if km != nil {
		m.log.Info().Str("peer", km.Peer.String()).Time("created", km.CreatedAt).Msg("bond loaded")
	}
	m.mu.Lock()
	m.km = km
	m.state = StateDisconnected
	m.mu.Unlock()

	m.ensureAdvertising()
	return nil
}

// Run drains the event mailbox. Also re-arms advertising if a previous
// attempt failed, so a periodic registration doubles as a retry tick.
func (m *Manager) Run(now time.Time) error {
	for {
		ev, ok := m.events.Pop()
		if !ok {
			break
		}
		if err := m.handleEvent(ev); err != nil {
			return err
		}
	}
	m.ensureAdvertising()
	return nil
}

func (m *Manager) handleEvent(ev link.Event) error {
	switch ev.Kind {
	case link.EventConnected:
		m.onConnected(ev.Handle)
	case link.EventDisconnected:
		m.onDisconnected(ev)
	case link.EventPairingRequest:
		return m.onPairingRequest(ev)
	default:
		m.log.Warn().Stringer("kind", ev.Kind).Msg("unexpected event in connection mailbox")
	}
	return nil
}

func (m *Manager) onConnected(h link.Handle) {
	m.mu.Lock()
	if m.state != StateAdvertising && m.state != StateDisconnected {
		// A connect in any other state means we missed a disconnect;
		// resynchronize to the controller rather than fight it.
		m.log.Warn().Stringer("state", m.state).Msg("connected event in unexpected state")
	}
	m.state = StateConnecting
	m.handle = h
	bonded := m.km != nil
	if bonded {
		// A stored bond resumes under link-layer encryption with the
		// persisted key; no fresh pairing exchange is required.
		m.state = StateBonded
	} else {
		m.state = StateConnected
	}
	st := m.state
	m.mu.Unlock()

	m.log.Info().Uint16("handle", uint16(h)).Stringer("state", st).Msg("connection established")
	if st == StateBonded && m.gate != nil {
		m.gate.LinkUp(h)
	}
}

func (m *Manager) onDisconnected(ev link.Event) {
	m.mu.Lock()
	prev := m.state
	m.state = StateDisconnecting
	m.handle = link.None
	m.state = StateDisconnected
	m.mu.Unlock()

	m.log.Info().
		Stringer("prev", prev).
		Str("reason", link.ReasonString(ev.Reason)).
		Msg("disconnected")

	if m.gate != nil {
		m.gate.LinkDown()
	}
	m.ensureAdvertising()
}

func (m *Manager) ensureAdvertising() {
	m.mu.Lock()
	idle := m.state == StateDisconnected && !m.hold
	m.mu.Unlock()
	if !idle {
		return
	}
	err := m.ctrl.Advertise(link.AdvertiseParams{
		Name:       m.cfg.DeviceName,
		IntervalMs: m.cfg.AdvertiseIntervalMs,
	})
	if err != nil {
		// Transient controller refusal; retried on the next Run.
		m.log.Warn().Err(err).Msg("advertise failed")
		return
	}
	m.mu.Lock()
	m.state = StateAdvertising
	m.mu.Unlock()
	m.log.Info().Str("name", m.cfg.DeviceName).Msg("advertising")
}
