package syncer

import (
	"github.com/syncmesh/syncmesh/internal/channel"
	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/proto"
)

// Batcher accumulates the messages a single dispatch cycle wants to send to
// each destination channel and emits at most one physical send per channel
// when flushed, wrapping two-or-more accumulated messages in a batch
// envelope (spec §4.4's send batcher). It never nests a batch inside
// another — proto.Wrap already flattens any KindBatch message it's handed.
type Batcher struct {
	dir     *channel.Directory
	pending map[ids.ChannelID][]proto.Message
}

func NewBatcher(dir *channel.Directory) *Batcher {
	return &Batcher{
		dir:     dir,
		pending: make(map[ids.ChannelID][]proto.Message),
	}
}

// Enqueue records msg for delivery to every channel in toChannelIDs. It
// does not send anything itself — Flush does that once per cycle.
func (b *Batcher) Enqueue(toChannelIDs []ids.ChannelID, msg proto.Message) {
	for _, id := range toChannelIDs {
		b.pending[id] = append(b.pending[id], msg)
	}
}

// Flush sends one message per destination channel accumulated since the
// last Flush, then clears its pending state.
func (b *Batcher) Flush() {
	if len(b.pending) == 0 {
		return
	}
	for id, msgs := range b.pending {
		out := proto.Wrap(msgs)
		if err := b.dir.Route(proto.Envelope{ToChannelIDs: []ids.ChannelID{id}, Message: out}); err != nil {
			continue
		}
	}
	b.pending = make(map[ids.ChannelID][]proto.Message)
}
