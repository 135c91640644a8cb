// Package channel implements the channel lifecycle state machine, the
// adapter contract, and the channel directory of spec §4.1-§4.3, grounded
// on the teacher's internal/network.NetworkManager (connections map,
// per-conn goroutine, handshake-then-message framing) but generalized from
// one hardcoded TCP transport to any Adapter.
package channel

import (
	"fmt"
	"sync"

	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/proto"
)

// State is a channel's position in its lifecycle. Connected -> Established
// -> Removed; removal from either live state is terminal (spec §4.1).
type State int

const (
	StateConnected State = iota
	StateEstablished
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateEstablished:
		return "established"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Kind distinguishes a network transport from a storage adapter
// masquerading as a peer (spec §4.6's permission default hinges on this).
type Kind string

const (
	KindNetwork Kind = "network"
	KindStorage Kind = "storage"
)

// Channel is one bidirectional link to a single counterpart. It is owned by
// the adapter that created it; the directory and synchronizer hold only
// non-owning references.
type Channel struct {
	ID          ids.ChannelID
	Kind        Kind
	AdapterType ids.AdapterType

	mu        sync.RWMutex
	state     State
	peerID    ids.PeerID
	sendFn    func(proto.Message) error
	stopFn    func()
	onReceive func(proto.Message)
}

// New constructs a Channel in the Connected state. sendFn performs the
// adapter-specific physical send; stopFn releases adapter resources.
func New(id ids.ChannelID, kind Kind, adapterType ids.AdapterType, sendFn func(proto.Message) error, stopFn func()) *Channel {
	return &Channel{
		ID:          id,
		Kind:        kind,
		AdapterType: adapterType,
		state:       StateConnected,
		sendFn:      sendFn,
		stopFn:      stopFn,
	}
}

// SetOnReceive installs the core's inbound callback. Adapters invoke
// Deliver as bytes arrive; Deliver forwards to whatever callback is
// currently installed.
func (c *Channel) SetOnReceive(fn func(proto.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReceive = fn
}

// Deliver is called by the owning adapter when a message arrives on the
// underlying transport. Messages on a Connected (not yet Established)
// channel other than establish-request/establish-response are the core's
// responsibility to drop (spec §4.1) — Deliver itself does no filtering,
// it only routes to whatever the core installed.
func (c *Channel) Deliver(msg proto.Message) {
	c.mu.RLock()
	fn := c.onReceive
	c.mu.RUnlock()
	if fn != nil {
		fn(msg)
	}
}

// Send performs the adapter's physical send. Callers (the command
// executor) are responsible for only sending non-establish messages once
// the channel is Established.
func (c *Channel) Send(msg proto.Message) error {
	c.mu.RLock()
	sendFn := c.sendFn
	state := c.state
	c.mu.RUnlock()
	if state == StateRemoved {
		return fmt.Errorf("channel %d is removed", c.ID)
	}
	return sendFn(msg)
}

// Establish transitions Connected -> Established, recording peerID. It is
// idempotent for a duplicate establish from the same peer (spec §4.1's
// "duplicate establish-response is ignored") and an error if a second,
// different peerID is claimed on an already-established channel.
func (c *Channel) Establish(peerID ids.PeerID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateConnected:
		c.state = StateEstablished
		c.peerID = peerID
		return nil
	case StateEstablished:
		if c.peerID != peerID {
			return fmt.Errorf("channel %d already established with peer %s, got %s", c.ID, c.peerID, peerID)
		}
		return nil
	default:
		return fmt.Errorf("channel %d is removed, cannot establish", c.ID)
	}
}

// Remove transitions to the terminal Removed state and releases adapter
// resources. Idempotent.
func (c *Channel) Remove() {
	c.mu.Lock()
	if c.state == StateRemoved {
		c.mu.Unlock()
		return
	}
	c.state = StateRemoved
	stopFn := c.stopFn
	c.mu.Unlock()
	if stopFn != nil {
		stopFn()
	}
}

func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Channel) IsEstablished() bool {
	return c.State() == StateEstablished
}

// PeerID returns the established peer's id, or "" if not yet established.
func (c *Channel) PeerID() ids.PeerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peerID
}
