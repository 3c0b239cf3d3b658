package sim

import (
	"time"

	"github.com/rs/zerolog"

	"lookpoint-fw/internal/link"
	lsim "lookpoint-fw/internal/link/sim"
)

type hostPhase int

const (
	hostWaiting hostPhase = iota
	hostConnected
	hostPaired
)

// Host is the scripted peer for sim mode. It behaves like a nearby device:
// connects shortly after advertising starts, pairs, then consumes
// notifications at a fixed rate by returning one buffer credit per period.
// The device firmware under it cannot tell it from a real central.
type Host struct {
	log  zerolog.Logger
	ctrl *lsim.Controller

	// ConnectAfter delays the first connection. Default 1s.
	ConnectAfter time.Duration
	// CreditEvery is the notification consumption rate. Default 100ms.
	CreditEvery time.Duration

	phase      hostPhase
	phaseAt    time.Time
	lastCredit time.Time
}

func NewHost(log zerolog.Logger, ctrl *lsim.Controller) *Host {
	return &Host{
		log:          log,
		ctrl:         ctrl,
		ConnectAfter: time.Second,
		CreditEvery:  100 * time.Millisecond,
	}
}

func (h *Host) Name() string { return "sim-host" }

func (h *Host) Run(now time.Time) error {
	if h.phaseAt.IsZero() {
		h.phaseAt = now
	}
	// Device re-advertising after we connected means the link dropped;
	// start the script over.
	if h.phase != hostWaiting && h.ctrl.Advertising() {
		h.phase = hostWaiting
		h.phaseAt = now
	}

	switch h.phase {
	case hostWaiting:
		if now.Sub(h.phaseAt) < h.ConnectAfter || !h.ctrl.Advertising() {
			return nil
		}
		if _, err := h.ctrl.Connect(); err != nil {
			return nil
		}
		h.log.Info().Msg("sim host connected")
		h.phase = hostConnected
		h.phaseAt = now

	case hostConnected:
		if now.Sub(h.phaseAt) < 200*time.Millisecond {
			return nil
		}
		peer := link.PeerID{0xC0, 0xFF, 0xEE, 0x00, 0x00, 0x01}
		var confirm [16]byte
		confirm[0] = 0x42
		h.ctrl.PairRequest(peer, confirm)
		h.log.Info().Msg("sim host pairing requested")
		h.phase = hostPaired
		h.phaseAt = now
		h.lastCredit = now

	case hostPaired:
		if now.Sub(h.lastCredit) >= h.CreditEvery {
			h.ctrl.FreeBuffers(1)
			h.lastCredit = now
		}
	}
	return nil
}
