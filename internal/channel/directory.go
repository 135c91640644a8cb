package channel

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/logging"
	"github.com/syncmesh/syncmesh/internal/proto"
)

// Directory registers channels from all adapters, assigns monotonic
// ChannelIDs, and routes outbound envelopes to the correct channel's Send
// (spec §2's Channel Directory row). Grounded on the teacher's
// NetworkManager.connections map, generalized across adapters instead of
// holding raw net.Conn values.
type Directory struct {
	mu       sync.RWMutex
	alloc    *ids.Allocator
	channels map[ids.ChannelID]*Channel
	log      *logging.Logger
}

func NewDirectory(log *logging.Logger) *Directory {
	return &Directory{
		alloc:    &ids.Allocator{},
		channels: make(map[ids.ChannelID]*Channel),
		log:      log,
	}
}

// NewChannel allocates a ChannelID, constructs a Channel, and registers it.
// Adapters call this as they accept/open new connections.
func (d *Directory) NewChannel(kind Kind, adapterType ids.AdapterType, sendFn func(proto.Message) error, stopFn func()) *Channel {
	id := d.alloc.Next()
	ch := New(id, kind, adapterType, sendFn, stopFn)

	d.mu.Lock()
	d.channels[id] = ch
	d.mu.Unlock()

	return ch
}

// Remove unregisters a channel from the directory (it does not call
// Channel.Remove; the caller decides whether to stop the transport too).
func (d *Directory) Remove(id ids.ChannelID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.channels, id)
}

// Clear unregisters every channel, for Repo.Reset (spec §5's "disconnects
// all adapters, returns to an initial model"). It does not stop the
// underlying transports; callers stop each adapter first.
func (d *Directory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = make(map[ids.ChannelID]*Channel)
}

func (d *Directory) Get(id ids.ChannelID) (*Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[id]
	return ch, ok
}

// All returns a snapshot of every currently registered channel.
func (d *Directory) All() []*Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Channel, 0, len(d.channels))
	for _, ch := range d.channels {
		out = append(out, ch)
	}
	return out
}

// Route sends envelope.Message to every channel listed in
// envelope.ToChannelIDs. A destination that no longer exists is logged and
// skipped — the core never learns about routing failures beyond logs,
// matching spec §7's "transport error -> remove channel, no propagation".
func (d *Directory) Route(envelope proto.Envelope) error {
	var firstErr error
	for _, id := range envelope.ToChannelIDs {
		ch, ok := d.Get(id)
		if !ok {
			if d.log != nil {
				d.log.WithChannel(uint64(id)).Warn("route: unknown destination channel, dropping")
			}
			continue
		}
		if err := ch.Send(envelope.Message); err != nil {
			if d.log != nil {
				d.log.WithChannel(uint64(id)).Warn("route: send failed", zap.Error(err))
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("channel %d: %w", id, err)
			}
		}
	}
	return firstErr
}
