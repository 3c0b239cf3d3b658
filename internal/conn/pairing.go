package conn

import (
	"time"

	"lookpoint-fw/internal/bond"
	"lookpoint-fw/internal/fault"
	"lookpoint-fw/internal/link"
)

// onPairingRequest validates and completes a pairing exchange.
//
// Order matters: the per-peer rate limit is checked before the confirm value
// is even looked at, so a hostile peer burning its failure budget cannot make
// the device do key generation work during the backoff window.
func (m *Manager) onPairingRequest(ev link.Event) error {
	m.mu.Lock()
	st := m.state
	h := m.handle
	m.mu.Unlock()

	if st != StateConnected {
		m.log.Warn().
			Stringer("state", st).
			Str("peer", ev.Peer.String()).
			Msg("pairing request outside connected state, ignored")
		return nil
	}

	now := m.now()
	if m.rateLimited(ev.Peer, now) {
		m.log.Warn().Str("peer", ev.Peer.String()).Msg("pairing rejected, failure backoff active")
		return nil
	}

	if !validConfirm(ev.Confirm) {
		m.recordFailure(ev.Peer, now)
		m.log.Warn().Str("peer", ev.Peer.String()).Msg("pairing confirm invalid")
		return nil
	}

	var ltk [16]byte
	if _, err := m.randRead(ltk[:]); err != nil {
		// No entropy means no secure key, ever. Not retryable in place.
		return fault.New(fault.ResourceExhaustion, "conn: key generation: %w", err)
	}

	km := bond.KeyMaterial{Peer: ev.Peer, LTK: ltk, CreatedAt: now.UTC()}
	if err := m.store.Save(km); err != nil {
		// The session key still works for this connection; only persistence
		// across a power cycle is lost.
		m.log.Error().Err(err).Msg("bond persist failed, bond is session-only")
	}

	m.mu.Lock()
	m.km = &km
	m.state = StateBonded
	delete(m.failures, ev.Peer)
	m.mu.Unlock()

	m.log.Info().Str("peer", ev.Peer.String()).Msg("pairing complete, bonded")
	if m.gate != nil {
		m.gate.LinkUp(h)
	}
	return nil
}

// ClearBond drops persisted key material so the next connection pairs fresh.
func (m *Manager) ClearBond() error {
	if err := m.store.Clear(); err != nil {
		return err
	}
	m.mu.Lock()
	m.km = nil
	m.mu.Unlock()
	m.log.Info().Msg("bond cleared")
	return nil
}

// rateLimited reports whether the peer has exhausted its failure budget.
// An expired backoff window resets the count.
func (m *Manager) rateLimited(peer link.PeerID, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	pf, ok := m.failures[peer]
	if !ok {
		return false
	}
	if now.Sub(pf.lastAt) >= m.cfg.PairingBackoff {
		delete(m.failures, peer)
		return false
	}
	return pf.count >= m.cfg.MaxPairingFailures
}

func (m *Manager) recordFailure(peer link.PeerID, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pf, ok := m.failures[peer]
	if !ok {
		pf = &peerFailures{}
		m.failures[peer] = pf
	}
	pf.count++
	pf.lastAt = now
}

// validConfirm rejects the degenerate all-zero confirm value a peer sends
// when its own confirm computation failed.
func validConfirm(c [16]byte) bool {
	for _, b := range c {
		if b != 0 {
			return true
		}
	}
	return false
}
