package syncer

import (
	"github.com/syncmesh/syncmesh/internal/ephemeral"
	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/proto"
	"github.com/syncmesh/syncmesh/pkg/crdt"
)

// handleSyncRequest answers a sync-request per spec §4.2 steps 4-6: compare
// versions to decide the transmission variant, subscribe the requester as
// an update recipient, optionally reciprocate if bidirectional, and (if we
// have any) hand the requester this document's current ephemeral state so
// a late joiner doesn't have to wait for the next heartbeat.
func handleSyncRequest(msg Message, m Model, ch *ChannelState) (Model, Command) {
	docID := msg.Proto.DocID
	ds, known := m.Docs[docID]
	cs := m.docState(docID).channelState(ch.ID)

	var cmds []Command

	if !known || ds.Doc == nil {
		reply := proto.Message{Kind: proto.KindSyncResponse, DocID: docID, Transmission: proto.Transmission{Kind: proto.TransmissionUnavailable}}
		cmds = append(cmds, Command{Kind: CmdSendMessage, ToChannelIDs: []ids.ChannelID{ch.ID}, Message: reply})
	} else {
		requesterVersion := crdt.Version(msg.Proto.RequesterDocVersion)
		relation := ds.Doc.Compare(requesterVersion)

		var transmission proto.Transmission
		switch relation {
		case crdt.Equal, crdt.Less:
			transmission = proto.Transmission{Kind: proto.TransmissionUpToDate, Version: toWireVersion(ds.Doc.Version())}
		default:
			mode := crdt.ExportUpdate
			kind := proto.TransmissionUpdate
			if msg.Proto.RequesterDocVersion.IsZero() {
				mode = crdt.ExportSnapshot
				kind = proto.TransmissionSnapshot
			}
			data, err := ds.Doc.Export(mode, requesterVersion)
			if err != nil {
				transmission = proto.Transmission{Kind: proto.TransmissionUnavailable}
			} else {
				transmission = proto.Transmission{Kind: kind, Data: data, Version: toWireVersion(ds.Doc.Version())}
			}
		}

		reply := proto.Message{Kind: proto.KindSyncResponse, DocID: docID, Transmission: transmission}
		cmds = append(cmds, Command{Kind: CmdSendMessage, ToChannelIDs: []ids.ChannelID{ch.ID}, Message: reply})

		if entries := m.Ephemeral.All(docID); len(entries) > 0 {
			cmds = append(cmds, Command{Kind: CmdSendMessage, ToChannelIDs: []ids.ChannelID{ch.ID}, Message: ephemeralMessage(docID, entries, 1)})
		}
	}

	cs.WantsUpdates = true
	if ch.PeerID != "" {
		ps := m.peerState(ch.PeerID, proto.Identity{})
		ps.Subscriptions[docID] = struct{}{}
	}

	if known && ds.Doc != nil && msg.Proto.Bidirectional {
		reciprocal := proto.Message{
			Kind:                proto.KindSyncRequest,
			DocID:               docID,
			RequesterDocVersion: toWireVersion(ds.Doc.Version()),
		}
		cmds = append(cmds, Command{Kind: CmdSendMessage, ToChannelIDs: []ids.ChannelID{ch.ID}, Message: reciprocal})
	}

	return m, Batch(cmds...)
}

// handleSyncResponse applies the transmission a sync-request answer
// carries: snapshot/update data is queued for CRDT import (the core never
// imports directly — that's an executor effect); upToDate/unavailable just
// update the ready-state loading for this channel.
func handleSyncResponse(msg Message, m Model, ch *ChannelState) (Model, Command) {
	return applyTransmission(msg.Proto.DocID, msg.Proto.Transmission, m, ch)
}

// handleUpdateMessage applies an ongoing push update the same way a
// sync-response's update transmission is applied.
func handleUpdateMessage(msg Message, m Model, ch *ChannelState) (Model, Command) {
	return applyTransmission(msg.Proto.DocID, msg.Proto.Transmission, m, ch)
}

func applyTransmission(docID ids.DocID, t proto.Transmission, m Model, ch *ChannelState) (Model, Command) {
	cs := m.docState(docID).channelState(ch.ID)

	switch t.Kind {
	case proto.TransmissionSnapshot, proto.TransmissionUpdate:
		cs.Loading = LoadingRequesting
		return m, Command{Kind: CmdImportDocument, DocID: docID, Data: t.Data, ChannelID: ch.ID}
	case proto.TransmissionUpToDate:
		cs.Loading = LoadingFound
		return m, readyStateCommand(m, docID)
	case proto.TransmissionUnavailable:
		cs.Loading = LoadingNotFound
		return m, readyStateCommand(m, docID)
	default:
		return m, None
	}
}

func readyStateCommand(m Model, docID ids.DocID) Command {
	ds, ok := m.Docs[docID]
	if !ok {
		return None
	}
	states := make([]ReadyState, 0, len(ds.ChannelState))
	for chID, cs := range ds.ChannelState {
		ch, ok := m.Channels[chID]
		if !ok {
			continue
		}
		states = append(states, ReadyState{
			DocID:       docID,
			ChannelID:   chID,
			ChannelKind: string(ch.Kind),
			AdapterType: ch.AdapterType,
			PeerID:      ch.PeerID,
			Loading:     cs.Loading,
		})
	}
	return Command{Kind: CmdEmitReadyStateChange, ReadyStates: states}
}

// ephemeralMessage wraps a document's current presence entries into the
// wire format for the late-joiner catch-up and heartbeat relay paths.
func ephemeralMessage(docID ids.DocID, entries []ephemeral.Entry, hops int) proto.Message {
	stores := make([]proto.EphemeralEntry, 0, len(entries))
	for _, e := range entries {
		stores = append(stores, proto.EphemeralEntry{PeerID: e.PeerID, Seq: e.Seq, Value: e.Value})
	}
	return proto.Message{Kind: proto.KindEphemeral, DocID: docID, HopsRemaining: hops, Stores: stores}
}

// handleDeleteRequest removes a locally held document and confirms.
func handleDeleteRequest(msg Message, m Model, ch *ChannelState) (Model, Command) {
	docID := msg.Proto.DocID
	status := proto.DeleteStatusIgnored
	if _, ok := m.Docs[docID]; ok {
		delete(m.Docs, docID)
		status = proto.DeleteStatusDeleted
	}
	reply := proto.Message{Kind: proto.KindDeleteResponse, DocID: docID, DeleteStatus: status}
	return m, Command{Kind: CmdSendMessage, ToChannelIDs: []ids.ChannelID{ch.ID}, Message: reply}
}
