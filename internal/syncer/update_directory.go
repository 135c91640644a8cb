package syncer

import (
	"github.com/syncmesh/syncmesh/internal/channel"
	"github.com/syncmesh/syncmesh/internal/clock"
	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/proto"
	"github.com/syncmesh/syncmesh/pkg/crdt"
)

// handleDirectoryRequest replies with every locally known DocID the
// requester's permission allows us to list (spec §4.2 steps 1-2).
func handleDirectoryRequest(msg Message, m Model, ch *ChannelState) (Model, Command) {
	wanted := asDocIDSet(msg.Proto.RequestedDocIDs)

	docIDs := make([]ids.DocID, 0, len(m.Docs))
	for docID := range m.Docs {
		if wanted != nil {
			if _, ok := wanted[docID]; !ok {
				continue
			}
		}
		if !m.Permissions.MayList(m.policyContext(ch.ID, docID)) {
			continue
		}
		docIDs = append(docIDs, docID)
	}

	reply := proto.Message{Kind: proto.KindDirectoryResponse, DocIDs: docIDs}
	return m, Command{Kind: CmdSendMessage, ToChannelIDs: []ids.ChannelID{ch.ID}, Message: reply}
}

func asDocIDSet(docIDs []ids.DocID) map[ids.DocID]struct{} {
	if len(docIDs) == 0 {
		return nil
	}
	out := make(map[ids.DocID]struct{}, len(docIDs))
	for _, id := range docIDs {
		out[id] = struct{}{}
	}
	return out
}

// handleDirectoryResponse records awareness for every announced DocID and,
// for any of them we already hold locally, issues a sync-request to start
// or resume the subscription (spec §4.2 step 3).
func handleDirectoryResponse(msg Message, m Model, ch *ChannelState) (Model, Command) {
	return announceAwarenessAndMaybeSync(msg.Proto.DocIDs, m, ch, false)
}

// handleNewDoc applies the same awareness update as a directory-response,
// but storage-kind channels always issue a sync-request for a newly
// announced document, even one they don't hold yet — with an empty version
// (a full snapshot) when it isn't held, with the local version when it is
// (spec §4.2's "storage adapters react...").
func handleNewDoc(msg Message, m Model, ch *ChannelState) (Model, Command) {
	forceSync := ch.Kind == channel.KindStorage
	return announceAwarenessAndMaybeSync(msg.Proto.DocIDs, m, ch, forceSync)
}

func announceAwarenessAndMaybeSync(docIDs []ids.DocID, m Model, ch *ChannelState, forceSync bool) (Model, Command) {
	if ch.PeerID != "" {
		if ps, ok := m.Peers[ch.PeerID]; ok {
			for _, docID := range docIDs {
				ps.DocumentAwareness[docID] = AwarenessHasDoc
			}
		}
	}

	var cmds []Command
	for _, docID := range docIDs {
		ds, known := m.Docs[docID]
		cs := m.docState(docID).channelState(ch.ID)
		cs.Awareness = AwarenessHasDoc

		holdsDoc := known && ds.Doc != nil
		if !holdsDoc && !forceSync {
			continue
		}

		var version crdt.Version
		if holdsDoc {
			version = ds.Doc.Version()
		}
		req := proto.Message{Kind: proto.KindSyncRequest, DocID: docID, RequesterDocVersion: toWireVersion(version)}
		cs.Loading = LoadingRequesting
		cmds = append(cmds, Command{Kind: CmdSendMessage, ToChannelIDs: []ids.ChannelID{ch.ID}, Message: req})
	}
	return m, Batch(cmds...)
}

// updateRequestDirectory sends a directory-request on one channel, optionally
// filtered to msg.RequestedDocIDs. It is a Repo-driven action, not something
// a remote message triggers, so it's a no-op if the channel isn't
// Established yet (the Repo is free to fire it eagerly right after dialing
// and let it land as a no-op until the handshake completes).
func updateRequestDirectory(msg Message, m Model) (Model, Command) {
	ch, ok := m.Channels[msg.ChannelID]
	if !ok || ch.State != channel.StateEstablished {
		return m, None
	}
	req := proto.Message{Kind: proto.KindDirectoryRequest, RequestedDocIDs: msg.RequestedDocIDs}
	return m, Command{Kind: CmdSendMessage, ToChannelIDs: []ids.ChannelID{ch.ID}, Message: req}
}

// toWireVersion converts the opaque engine Version into the wire's concrete
// clock.VectorClock representation, per proto's DocVersion type. A nil or
// foreign Version becomes an empty (zero) clock, which the protocol treats
// identically to "fresh/no history" — exactly what a snapshot request needs.
func toWireVersion(v crdt.Version) clock.VectorClock {
	if vc, ok := v.(clock.VectorClock); ok {
		return vc
	}
	return clock.NewVectorClock()
}
