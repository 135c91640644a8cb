package syncer

import (
	"github.com/syncmesh/syncmesh/internal/channel"
	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/proto"
)

// updateDocEnsure guarantees a DocState exists for docID, creating one via
// a create-document command if this is the first time it's been asked
// for (spec §4.9's "repo.get always returns immediately").
func updateDocEnsure(msg Message, m Model) (Model, Command) {
	if ds, ok := m.Docs[msg.DocID]; ok && ds.Doc != nil {
		return m, None
	}
	m.docState(msg.DocID)
	return m, Command{Kind: CmdCreateDocument, DocID: msg.DocID}
}

// updateDocCreated stores the freshly created Document and announces it to
// every established peer mayReveal permits (spec §4.2's document
// announcement).
func updateDocCreated(msg Message, m Model) (Model, Command) {
	ds := m.docState(msg.DocID)
	ds.Doc = msg.Doc

	var targets []ids.ChannelID
	for chID, ch := range m.Channels {
		if ch.State != channel.StateEstablished {
			continue
		}
		if !m.Permissions.MayReveal(m.policyContext(chID, msg.DocID)) {
			continue
		}
		targets = append(targets, chID)
	}
	if len(targets) == 0 {
		return m, None
	}
	announce := proto.Message{Kind: proto.KindNewDoc, DocIDs: []ids.DocID{msg.DocID}}
	return m, Command{Kind: CmdSendMessage, ToChannelIDs: targets, Message: announce}
}

// updateLocalDocChange fans a local commit out to every peer subscribed to
// this document, subject to mayReceiveUpdate (spec §4.6).
func updateLocalDocChange(msg Message, m Model) (Model, Command) {
	var targets []ids.ChannelID
	for _, peerID := range m.subscribedPeers(msg.DocID) {
		for _, chID := range m.channelsFor(peerID) {
			if !m.Permissions.MayReceiveUpdate(m.policyContext(chID, msg.DocID)) {
				continue
			}
			targets = append(targets, chID)
		}
	}
	if len(targets) == 0 {
		return m, None
	}
	update := proto.Message{
		Kind:         proto.KindUpdate,
		DocID:        msg.DocID,
		Transmission: proto.Transmission{Kind: proto.TransmissionUpdate, Data: msg.Data, Version: toWireVersion(msg.Version)},
	}
	return m, Command{Kind: CmdSendMessage, ToChannelIDs: targets, Message: update}
}

// updateDocImported records that an import triggered by msg.ChannelID
// completed, marking that channel's loading state Found and emitting a
// ready-state-changed command — the result the executor feeds back after
// performing the actual CRDT import (spec §4.3's "no I/O inside Update").
func updateDocImported(msg Message, m Model) (Model, Command) {
	ds, ok := m.Docs[msg.DocID]
	if !ok {
		return m, None
	}
	if cs, ok := ds.ChannelState[msg.ChannelID]; ok {
		cs.Loading = LoadingFound
	}
	return m, readyStateCommand(m, msg.DocID)
}

// updateDocDelete removes a document and tells every subscribed peer.
func updateDocDelete(msg Message, m Model) (Model, Command) {
	var targets []ids.ChannelID
	for _, peerID := range m.subscribedPeers(msg.DocID) {
		targets = append(targets, m.channelsFor(peerID)...)
	}
	delete(m.Docs, msg.DocID)
	for _, ps := range m.Peers {
		delete(ps.Subscriptions, msg.DocID)
	}
	if len(targets) == 0 {
		return m, None
	}
	req := proto.Message{Kind: proto.KindDeleteRequest, DocID: msg.DocID}
	return m, Command{Kind: CmdSendMessage, ToChannelIDs: targets, Message: req}
}
