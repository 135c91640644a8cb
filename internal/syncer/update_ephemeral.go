package syncer

import (
	"github.com/syncmesh/syncmesh/internal/ephemeral"
	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/proto"
)

// updateEphemeralLocalChange records a new local presence value and
// broadcasts it to every established, subscribed peer with hopsRemaining=1
// (spec §4.7 "Set self").
func updateEphemeralLocalChange(msg Message, m Model) (Model, Command) {
	entry := m.Ephemeral.SetSelf(msg.DocID, m.Self.PeerID, msg.EphemeralValue)

	var targets []ids.ChannelID
	for _, peerID := range m.subscribedPeers(msg.DocID) {
		targets = append(targets, m.channelsFor(peerID)...)
	}
	if len(targets) == 0 {
		return m, None
	}
	out := ephemeralMessage(msg.DocID, []ephemeral.Entry{entry}, 1)
	return m, Command{Kind: CmdSendMessage, ToChannelIDs: targets, Message: out}
}

// handleEphemeralReceive applies every (peerId, seq, value) triple in an
// inbound ephemeral message, relaying accepted entries onward while
// hopsRemaining permits (spec §4.7 "Receive ephemeral").
func handleEphemeralReceive(msg Message, m Model, ch *ChannelState) (Model, Command) {
	var accepted []ephemeral.Entry
	for _, s := range msg.Proto.Stores {
		entry := ephemeral.Entry{PeerID: s.PeerID, Seq: s.Seq, Value: s.Value}
		if m.Ephemeral.Receive(msg.Proto.DocID, entry) {
			accepted = append(accepted, entry)
		}
	}

	if len(accepted) == 0 || msg.Proto.HopsRemaining <= 0 {
		return m, None
	}

	var targets []ids.ChannelID
	for _, peerID := range m.subscribedPeers(msg.Proto.DocID) {
		if peerID == ch.PeerID {
			continue
		}
		targets = append(targets, m.channelsFor(peerID)...)
	}
	if len(targets) == 0 {
		return m, None
	}
	relay := ephemeralMessage(msg.Proto.DocID, accepted, msg.Proto.HopsRemaining-1)
	return m, Command{Kind: CmdSendMessage, ToChannelIDs: targets, Message: relay}
}

// updateHeartbeat builds one ephemeral batch per destination peer
// covering every document that peer shares with us, grouped to reduce
// O(docs × peers) sends to O(peers) (spec §4.7's periodic heartbeat).
func updateHeartbeat(msg Message, m Model) (Model, Command) {
	docsPerPeer := make(map[ids.PeerID][]ids.DocID)
	for peerID, ps := range m.Peers {
		if len(ps.Channels) == 0 {
			continue
		}
		for docID := range ps.Subscriptions {
			docsPerPeer[peerID] = append(docsPerPeer[peerID], docID)
		}
	}

	batches := m.Ephemeral.HeartbeatBatches(docsPerPeer)
	var cmds []Command
	for peerID, docs := range batches {
		targets := m.channelsFor(peerID)
		if len(targets) == 0 {
			continue
		}
		msgs := make([]proto.Message, 0, len(docs))
		for _, de := range docs {
			msgs = append(msgs, ephemeralMessage(de.DocID, de.Entries, 1))
		}
		cmds = append(cmds, Command{Kind: CmdSendMessage, ToChannelIDs: targets, Message: proto.Wrap(msgs)})
	}
	return m, Batch(cmds...)
}
