// Package link adapts the wireless controller's event/command interface to
// the scheduler's task model.
//
// The controller itself is an external collaborator (packet encoding,
// channel hopping, link-layer encryption all live behind it). This package
// owns the one hard real-time path in the system: controller events arrive
// in interrupt context and must be acknowledged within the link layer's
// service window, so the intake does nothing but record the event and wake
// the adapter task.
package link

import "fmt"

// Handle identifies one live connection at the controller.
type Handle uint16

// None is the zero handle; no controller assigns it to a connection.
const None Handle = 0

// Disconnect reasons, HCI error code values.
const (
	ReasonConnectionTimeout  = 0x08
	ReasonRemoteTerminated   = 0x13
	ReasonLocalTerminated    = 0x16
	ReasonLMPResponseTimeout = 0x22
)

// ReasonString names an HCI disconnect reason for diagnostics.
func ReasonString(reason uint8) string {
	switch reason {
	case ReasonConnectionTimeout:
		return "connection timeout"
	case ReasonRemoteTerminated:
		return "remote user terminated"
	case ReasonLocalTerminated:
		return "local host terminated"
	case ReasonLMPResponseTimeout:
		return "lmp response timeout"
	}
	return fmt.Sprintf("reason 0x%02X", reason)
}

// PeerID is a 6-byte device address.
type PeerID [6]byte

func (p PeerID) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", p[0], p[1], p[2], p[3], p[4], p[5])
}

// ParsePeerID parses the colon-separated form produced by PeerID.String.
func ParsePeerID(s string) (PeerID, error) {
	var p PeerID
	n, err := fmt.Sscanf(s, "%02X:%02X:%02X:%02X:%02X:%02X", &p[0], &p[1], &p[2], &p[3], &p[4], &p[5])
	if err != nil || n != 6 {
		return PeerID{}, fmt.Errorf("link: invalid peer id %q", s)
	}
	return p, nil
}

type EventKind uint8

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventPairingRequest
	EventBufferAvailable
	EventDataSent
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventPairingRequest:
		return "pairing_request"
	case EventBufferAvailable:
		return "buffer_available"
	case EventDataSent:
		return "data_sent"
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// Event is one controller notification. Plain value with fixed-size fields
// only: the intake path must not allocate.
type Event struct {
	Kind   EventKind
	Handle Handle

	// Disconnected: HCI reason code.
	Reason uint8

	// PairingRequest: requesting peer and its confirm value.
	Peer    PeerID
	Confirm [16]byte

	// BufferAvailable: number of freed outbound buffers.
	Count int
}

// AdvertiseParams configures discoverability.
type AdvertiseParams struct {
	// Name is the advertised device name; the controller truncates past
	// its payload limit, so callers should pre-truncate (see deviceinfo).
	Name string
	// IntervalMs is the advertising interval in milliseconds.
	IntervalMs int
}

// EventSink receives controller events. Deliver is called from the
// controller's interrupt context and must be brief and non-blocking.
type EventSink interface {
	Deliver(Event)
}

// Controller is the command surface of the wireless controller.
type Controller interface {
	// SetEventSink registers the sink before any other call.
	SetEventSink(EventSink)
	// Advertise starts broadcasting discoverability. Advertising stops on
	// its own when a connection is established.
	Advertise(AdvertiseParams) error
	// Send queues one notification payload; consumes one buffer credit at
	// the controller. The freed buffer comes back as EventBufferAvailable.
	Send(Handle, []byte) error
	// Disconnect tears the connection down; completion is reported via
	// EventDisconnected.
	Disconnect(Handle) error
	// BufferCount is the fixed number of outbound notification buffers the
	// controller exposes; the credit counter is capped at this value.
	BufferCount() int
}
