// Package sim provides an in-process wireless controller for tests and for
// running the firmware without radio hardware, the way the rest of the
// system runs against simulated inputs.
//
// The simulated controller models exactly the contract the firmware relies
// on: a fixed pool of outbound notification buffers, events delivered
// asynchronously through the registered sink, and advertising that stops by
// itself once a connection is established.
package sim

import (
	"fmt"
	"sync"

	"lookpoint-fw/internal/link"
)

type Config struct {
	// Buffers is the outbound notification buffer depth. Default 4.
	Buffers int
	// AutoFree immediately returns each consumed buffer as an
	// EventBufferAvailable. Leave false to meter credits by hand with
	// FreeBuffers (backpressure scenarios).
	AutoFree bool
}

type Controller struct {
	cfg Config

	mu          sync.Mutex
	sink        link.EventSink
	advertising bool
	advName     string
	connected   bool
	handle      link.Handle
	nextHandle  uint16
	inFlight    int
	sent        [][]byte
}

func New(cfg Config) *Controller {
	if cfg.Buffers <= 0 {
		cfg.Buffers = 4
	}
	return &Controller{cfg: cfg, nextHandle: 0x0040}
}

func (c *Controller) SetEventSink(sink link.EventSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

func (c *Controller) BufferCount() int { return c.cfg.Buffers }

func (c *Controller) Advertise(p link.AdvertiseParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return fmt.Errorf("sim: cannot advertise while connected")
	}
	c.advertising = true
	c.advName = p.Name
	return nil
}

func (c *Controller) Send(h link.Handle, payload []byte) error {
	c.mu.Lock()
	if !c.connected || h != c.handle {
		c.mu.Unlock()
		return fmt.Errorf("sim: send on dead handle %d", h)
	}
	if c.inFlight >= c.cfg.Buffers {
		c.mu.Unlock()
		return fmt.Errorf("sim: no free buffers")
	}
	c.inFlight++
	cp := make([]byte, len(payload))
	copy(cp, payload)
	c.sent = append(c.sent, cp)
	sink := c.sink
	auto := c.cfg.AutoFree
	c.mu.Unlock()

	if sink != nil {
		sink.Deliver(link.Event{Kind: link.EventDataSent, Handle: h})
	}
	if auto {
		c.freeLocked(1)
	}
	return nil
}

func (c *Controller) Disconnect(h link.Handle) error {
	c.mu.Lock()
	if !c.connected || h != c.handle {
		c.mu.Unlock()
		return fmt.Errorf("sim: disconnect on dead handle %d", h)
	}
	c.mu.Unlock()
	c.Drop(link.ReasonLocalTerminated)
	return nil
}

// Connect simulates a central establishing a connection. Fails unless the
// device is advertising, like the real controller.
func (c *Controller) Connect() (link.Handle, error) {
	c.mu.Lock()
	if !c.advertising {
		c.mu.Unlock()
		return 0, fmt.Errorf("sim: not advertising")
	}
	c.advertising = false
	c.connected = true
	c.nextHandle++
	c.handle = link.Handle(c.nextHandle)
	c.inFlight = 0
	h := c.handle
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		sink.Deliver(link.Event{Kind: link.EventConnected, Handle: h})
	}
	return h, nil
}

// Drop simulates link loss with the given HCI reason.
func (c *Controller) Drop(reason uint8) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	h := c.handle
	c.handle = link.None
	c.inFlight = 0
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		sink.Deliver(link.Event{Kind: link.EventDisconnected, Handle: h, Reason: reason})
	}
}

// PairRequest simulates a pairing request from peer carrying a confirm value.
func (c *Controller) PairRequest(peer link.PeerID, confirm [16]byte) {
	c.mu.Lock()
	h := c.handle
	sink := c.sink
	connected := c.connected
	c.mu.Unlock()
	if !connected || sink == nil {
		return
	}
	sink.Deliver(link.Event{Kind: link.EventPairingRequest, Handle: h, Peer: peer, Confirm: confirm})
}

// FreeBuffers returns n consumed buffers as a credit grant.
func (c *Controller) FreeBuffers(n int) {
	c.freeLocked(n)
}

func (c *Controller) freeLocked(n int) {
	c.mu.Lock()
	if n > c.inFlight {
		n = c.inFlight
	}
	c.inFlight -= n
	h := c.handle
	sink := c.sink
	c.mu.Unlock()
	if n > 0 && sink != nil {
		sink.Deliver(link.Event{Kind: link.EventBufferAvailable, Handle: h, Count: n})
	}
}

// Advertising reports whether the device is currently discoverable.
func (c *Controller) Advertising() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advertising
}

// AdvertisedName returns the name from the last Advertise call.
func (c *Controller) AdvertisedName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advName
}

// Sent returns the payloads accepted so far, oldest first.
func (c *Controller) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}
