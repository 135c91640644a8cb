package channel

import (
	"context"
	"sync"

	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/proto"
)

// BridgeAdapter pairs two channels directly in-process, with no network
// I/O: sending on one side invokes the other side's dispatch (via a
// goroutine, to preserve the "never recurse into the dispatch loop" rule of
// spec §4.3). It is the simplest possible adapter satisfying the Adapter
// contract and is what repo.Bridge and scenario tests use to connect two
// Repos without a real transport.
type BridgeAdapter struct {
	dispatch DispatchFunc
	dir      *Directory
	kind     Kind

	mu    sync.Mutex
	peers map[ids.ChannelID]*BridgeAdapter

	// OnChannelAdded, if set, is invoked for the channel Pair creates on
	// this side. The Repo wires this to feed MsgChannelAdded into the
	// dispatch loop, the same hook TCPAdapter exposes.
	OnChannelAdded func(*Channel)
}

func NewBridgeAdapter(dir *Directory, kind Kind, dispatch DispatchFunc) *BridgeAdapter {
	return &BridgeAdapter{
		dir:      dir,
		kind:     kind,
		dispatch: dispatch,
		peers:    make(map[ids.ChannelID]*BridgeAdapter),
	}
}

func (a *BridgeAdapter) Start(ctx context.Context) error { return nil }

func (a *BridgeAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id := range a.peers {
		delete(a.peers, id)
	}
	return nil
}

// Pair creates one channel on each of a and b and wires them so a message
// sent on one is delivered to the other's dispatch.
func Pair(a, b *BridgeAdapter) (chA, chB *Channel) {
	var pChA, pChB *Channel

	sendToB := func(msg proto.Message) error {
		go b.dispatch(pChB.ID, msg)
		return nil
	}
	sendToA := func(msg proto.Message) error {
		go a.dispatch(pChA.ID, msg)
		return nil
	}

	pChA = a.dir.NewChannel(a.kind, "bridge", sendToB, func() { b.RemoveChannel(pChB.ID) })
	pChB = b.dir.NewChannel(b.kind, "bridge", sendToA, func() { a.RemoveChannel(pChA.ID) })

	a.mu.Lock()
	a.peers[pChA.ID] = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peers[pChB.ID] = a
	b.mu.Unlock()

	if a.OnChannelAdded != nil {
		a.OnChannelAdded(pChA)
	}
	if b.OnChannelAdded != nil {
		b.OnChannelAdded(pChB)
	}

	return pChA, pChB
}

func (a *BridgeAdapter) RemoveChannel(id ids.ChannelID) error {
	a.mu.Lock()
	delete(a.peers, id)
	a.mu.Unlock()
	if ch, ok := a.dir.Get(id); ok {
		ch.Remove()
	}
	a.dir.Remove(id)
	return nil
}
