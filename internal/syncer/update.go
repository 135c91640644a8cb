package syncer

import (
	"github.com/syncmesh/syncmesh/internal/channel"
	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/proto"
)

// Update is the synchronizer's total, side-effect-free transition function
// (spec §4.3): given an incoming Message and the current Model, it returns
// the (possibly unchanged) Model plus a Command describing whatever effect
// the transition requires. It never performs I/O, starts timers, or
// touches an adapter directly — every such action is data, returned for
// the Executor to carry out.
func Update(msg Message, m Model) (Model, Command) {
	switch msg.Kind {
	case MsgChannelAdded:
		return updateChannelAdded(msg, m)
	case MsgChannelRemoved:
		return updateChannelRemoved(msg, m)
	case MsgChannelReceive:
		return updateChannelReceive(msg, m)
	case MsgDocEnsure:
		return updateDocEnsure(msg, m)
	case MsgDocCreated:
		return updateDocCreated(msg, m)
	case MsgLocalDocChange:
		return updateLocalDocChange(msg, m)
	case MsgDocImported:
		return updateDocImported(msg, m)
	case MsgDocDelete:
		return updateDocDelete(msg, m)
	case MsgHeartbeat:
		return updateHeartbeat(msg, m)
	case MsgEphemeralLocalChange:
		return updateEphemeralLocalChange(msg, m)
	case MsgRequestDirectory:
		return updateRequestDirectory(msg, m)
	default:
		return m, None
	}
}

// updateChannelAdded records a freshly created channel as Connected and
// dispatches our half of the establish handshake (spec §4.1 step 1).
func updateChannelAdded(msg Message, m Model) (Model, Command) {
	m.Channels[msg.ChannelID] = &ChannelState{
		ID:          msg.ChannelID,
		Kind:        msg.ChannelKind,
		AdapterType: msg.AdapterType,
		State:       channel.StateConnected,
	}

	establish := proto.Message{Kind: proto.KindEstablishRequest, Identity: m.Self}
	cmd := Command{Kind: CmdSendMessage, ToChannelIDs: []ids.ChannelID{msg.ChannelID}, Message: establish}
	return m, cmd
}

// updateChannelRemoved tears a channel out of the model and, if that was
// the peer's last remaining channel, deletes the peer state entirely —
// clearing its subscriptions and ephemeral entries (spec §3 invariant).
func updateChannelRemoved(msg Message, m Model) (Model, Command) {
	ch, ok := m.Channels[msg.ChannelID]
	if !ok {
		return m, None
	}
	delete(m.Channels, msg.ChannelID)

	for _, ds := range m.Docs {
		delete(ds.ChannelState, msg.ChannelID)
	}

	if ch.PeerID == "" {
		return m, None
	}
	ps, ok := m.Peers[ch.PeerID]
	if !ok {
		return m, None
	}
	delete(ps.Channels, msg.ChannelID)
	if len(ps.Channels) > 0 {
		return m, None
	}

	delete(m.Peers, ch.PeerID)
	m.Ephemeral.Clear(ch.PeerID)
	return m, None
}

// updateChannelReceive dispatches an inbound protocol message. Only
// establish messages are accepted on a Connected channel (spec §4.1 step 4);
// anything else arriving before establishment is dropped with a log command.
func updateChannelReceive(msg Message, m Model) (Model, Command) {
	ch, ok := m.Channels[msg.ChannelID]
	if !ok {
		return m, logCmd("channel-receive-message: unknown channel")
	}

	switch msg.Proto.Kind {
	case proto.KindEstablishRequest:
		return handleEstablishRequest(msg, m, ch)
	case proto.KindEstablishResponse:
		return handleEstablishResponse(msg, m, ch)
	case proto.KindBatch:
		return handleBatch(msg, m, ch)
	}

	if ch.State != channel.StateEstablished {
		return m, logCmd("dropped non-establish message on a connected-but-not-established channel")
	}

	switch msg.Proto.Kind {
	case proto.KindDirectoryRequest:
		return handleDirectoryRequest(msg, m, ch)
	case proto.KindDirectoryResponse:
		return handleDirectoryResponse(msg, m, ch)
	case proto.KindNewDoc:
		return handleNewDoc(msg, m, ch)
	case proto.KindSyncRequest:
		return handleSyncRequest(msg, m, ch)
	case proto.KindSyncResponse:
		return handleSyncResponse(msg, m, ch)
	case proto.KindUpdate:
		return handleUpdateMessage(msg, m, ch)
	case proto.KindEphemeral:
		return handleEphemeralReceive(msg, m, ch)
	case proto.KindDeleteRequest:
		return handleDeleteRequest(msg, m, ch)
	case proto.KindDeleteResponse:
		return m, None
	default:
		return m, logCmd("unrecognized protocol message kind")
	}
}

func handleBatch(msg Message, m Model, ch *ChannelState) (Model, Command) {
	cmds := make([]Command, 0, len(msg.Proto.Messages))
	for _, inner := range proto.Flatten(msg.Proto.Messages) {
		var cmd Command
		m, cmd = updateChannelReceive(Message{Kind: MsgChannelReceive, ChannelID: ch.ID, Proto: inner}, m)
		cmds = append(cmds, cmd)
	}
	return m, Batch(cmds...)
}

func handleEstablishRequest(msg Message, m Model, ch *ChannelState) (Model, Command) {
	if ch.State == channel.StateEstablished {
		// Idempotent: a duplicate establish-request from the same peer is a no-op.
		if ch.PeerID == msg.Proto.Identity.PeerID {
			return m, None
		}
		return m, logCmd("establish-request for an already-established channel with a different peer")
	}

	ch.State = channel.StateEstablished
	ch.PeerID = msg.Proto.Identity.PeerID
	m = addChannelToPeer(m, ch, msg.Proto.Identity)

	reply := proto.Message{Kind: proto.KindEstablishResponse, Identity: m.Self}
	return m, Command{Kind: CmdSendMessage, ToChannelIDs: []ids.ChannelID{ch.ID}, Message: reply}
}

func handleEstablishResponse(msg Message, m Model, ch *ChannelState) (Model, Command) {
	if ch.State == channel.StateEstablished {
		return m, None
	}
	ch.State = channel.StateEstablished
	ch.PeerID = msg.Proto.Identity.PeerID
	m = addChannelToPeer(m, ch, msg.Proto.Identity)
	return m, None
}

func addChannelToPeer(m Model, ch *ChannelState, identity proto.Identity) Model {
	ps := m.peerState(ch.PeerID, identity)
	ps.Channels[ch.ID] = struct{}{}
	return m
}

func logCmd(s string) Command {
	return Command{Kind: CmdLog, LogMessage: s}
}
