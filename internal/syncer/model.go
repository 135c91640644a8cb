// Package syncer implements the synchronizer's pure update core (spec
// §4.3), its command executor and send batcher (spec §4.4), grounded on
// the teacher's DistributedCollection.broadcastOperation /
// handleRemoteOperation / handleSyncRequest / handleSyncResponse. The
// teacher's methods mutate *DistributedCollection directly and call the
// network inline; here the same transitions are restructured into a total
// function over an immutable-by-convention Model that returns a Command
// describing the effect instead of performing it.
package syncer

import (
	"github.com/syncmesh/syncmesh/internal/channel"
	"github.com/syncmesh/syncmesh/internal/ephemeral"
	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/middleware"
	"github.com/syncmesh/syncmesh/internal/proto"
	"github.com/syncmesh/syncmesh/pkg/crdt"
)

// Awareness is what we know about a peer's (or our own channel's) copy of
// a document, per spec §3's documentAwareness/channelState.
type Awareness int

const (
	AwarenessUnknown Awareness = iota
	AwarenessHasDoc
	AwarenessNoDoc
)

// LoadingState is the per-(doc, channel) sync progress, §3's channelState.loading.
type LoadingState int

const (
	LoadingInitial LoadingState = iota
	LoadingRequesting
	LoadingFound
	LoadingNotFound
)

// ChannelState is the synchronizer's view of one channel: its lifecycle
// position plus, once Established, the peer at its far end. Separate from
// channel.Channel, which owns the actual send/stop functions — the model
// only needs enough to route and to decide permissions.
type ChannelState struct {
	ID          ids.ChannelID
	Kind        channel.Kind
	AdapterType ids.AdapterType
	State       channel.State
	PeerID      ids.PeerID
}

// ChannelDocState is one channel's relationship to one document (spec §3's
// document state's channelState map).
type ChannelDocState struct {
	Awareness    Awareness
	Loading      LoadingState
	WantsUpdates bool
}

// PeerState aggregates every channel established with one PeerID (spec §3).
type PeerState struct {
	Identity          proto.Identity
	Channels          map[ids.ChannelID]struct{}
	DocumentAwareness map[ids.DocID]Awareness
	Subscriptions     map[ids.DocID]struct{}
	LastSeenUnixMs    int64
}

func newPeerState(identity proto.Identity) *PeerState {
	return &PeerState{
		Identity:          identity,
		Channels:          make(map[ids.ChannelID]struct{}),
		DocumentAwareness: make(map[ids.DocID]Awareness),
		Subscriptions:     make(map[ids.DocID]struct{}),
	}
}

// DocState is everything the synchronizer tracks about one locally known
// document (spec §3). Doc is nil until a create-document command completes
// and reports back via MsgDocCreated — the model never allocates a
// Document itself.
type DocState struct {
	Doc          crdt.Document
	ChannelState map[ids.ChannelID]*ChannelDocState
}

func newDocState() *DocState {
	return &DocState{ChannelState: make(map[ids.ChannelID]*ChannelDocState)}
}

func (ds *DocState) channelState(id ids.ChannelID) *ChannelDocState {
	cs, ok := ds.ChannelState[id]
	if !ok {
		cs = &ChannelDocState{}
		ds.ChannelState[id] = cs
	}
	return cs
}

// Model is the synchronizer's entire mutable state (spec §3's channels,
// peers, documents). The Repo owns the only live Model; Update receives it
// by value semantics at the call site (the executor is solely responsible
// for committing the returned Model back), so nothing outside this package
// ever has a stale aliasing concern.
type Model struct {
	Self        proto.Identity
	Permissions *middleware.Permissions
	Ephemeral   *ephemeral.Store

	Channels map[ids.ChannelID]*ChannelState
	Peers    map[ids.PeerID]*PeerState
	Docs     map[ids.DocID]*DocState
}

// NewModel constructs an empty Model for a fresh Repo.
func NewModel(self proto.Identity, permissions *middleware.Permissions) Model {
	if permissions == nil {
		permissions = middleware.AllowAll()
	}
	return Model{
		Self:        self,
		Permissions: permissions,
		Ephemeral:   ephemeral.NewStore(),
		Channels:    make(map[ids.ChannelID]*ChannelState),
		Peers:       make(map[ids.PeerID]*PeerState),
		Docs:        make(map[ids.DocID]*DocState),
	}
}

func (m *Model) docState(docID ids.DocID) *DocState {
	ds, ok := m.Docs[docID]
	if !ok {
		ds = newDocState()
		m.Docs[docID] = ds
	}
	return ds
}

func (m *Model) peerState(peerID ids.PeerID, identity proto.Identity) *PeerState {
	ps, ok := m.Peers[peerID]
	if !ok {
		ps = newPeerState(identity)
		m.Peers[peerID] = ps
	}
	return ps
}

// subscribedPeers returns every established peer whose subscriptions
// include docID, for broadcast fan-out.
func (m *Model) subscribedPeers(docID ids.DocID) []ids.PeerID {
	var out []ids.PeerID
	for peerID, ps := range m.Peers {
		if _, ok := ps.Subscriptions[docID]; ok {
			out = append(out, peerID)
		}
	}
	return out
}

// channelsFor returns every currently-established ChannelID for a peer.
func (m *Model) channelsFor(peerID ids.PeerID) []ids.ChannelID {
	ps, ok := m.Peers[peerID]
	if !ok {
		return nil
	}
	out := make([]ids.ChannelID, 0, len(ps.Channels))
	for chID := range ps.Channels {
		out = append(out, chID)
	}
	return out
}

// policyContext builds the PolicyContext a Permissions check needs for a
// given channel and document.
func (m *Model) policyContext(chID ids.ChannelID, docID ids.DocID) middleware.PolicyContext {
	ch, ok := m.Channels[chID]
	if !ok {
		return middleware.PolicyContext{DocID: docID}
	}
	return middleware.PolicyContext{
		ChannelKind: ch.Kind,
		AdapterType: ch.AdapterType,
		PeerID:      ch.PeerID,
		DocID:       docID,
	}
}
