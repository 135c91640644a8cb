// Package ids defines the identifier types shared across the synchronizer
// and a monotonic allocator for ChannelIDs.
package ids

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// PeerID is a stable, opaque identifier for a logical peer, taken from the
// Repo's configured identity (or generated with NewPeerID when that is
// empty) at repo construction and shared across channels.
type PeerID string

// ChannelID is locally unique, monotonically assigned, and never reused
// within one repo's lifetime.
type ChannelID uint64

// DocID identifies a document globally.
type DocID string

// AdapterType tags a family of channels sharing one transport (e.g.
// "tcp", "bridge", "file-storage").
type AdapterType string

// Allocator hands out strictly increasing ChannelIDs.
type Allocator struct {
	next uint64
}

// Next returns the next ChannelID, starting at 1 so the zero value can mean
// "no channel".
func (a *Allocator) Next() ChannelID {
	return ChannelID(atomic.AddUint64(&a.next, 1))
}

// NewPeerID generates a fresh random PeerID, used when constructing a Repo
// with no previously persisted identity.
func NewPeerID() PeerID {
	return PeerID(uuid.NewString())
}
