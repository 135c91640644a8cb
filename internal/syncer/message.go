package syncer

import (
	"github.com/syncmesh/syncmesh/internal/channel"
	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/proto"
	"github.com/syncmesh/syncmesh/pkg/crdt"
)

// MessageKind enumerates the full union of external events the update core
// handles (spec §4.3).
type MessageKind string

const (
	MsgChannelAdded         MessageKind = "channel-added"
	MsgChannelRemoved       MessageKind = "channel-removed"
	MsgChannelReceive       MessageKind = "channel-receive-message"
	MsgDocEnsure            MessageKind = "doc-ensure"
	MsgDocCreated           MessageKind = "doc-created"
	MsgLocalDocChange       MessageKind = "local-doc-change"
	MsgDocImported          MessageKind = "doc-imported"
	MsgDocDelete            MessageKind = "doc-delete"
	MsgHeartbeat            MessageKind = "heartbeat"
	MsgEphemeralLocalChange MessageKind = "ephemeral-local-change"

	// MsgRequestDirectory is the Repo-level trigger for spec §4.2 step 1:
	// "the initiator sends directory-request". It's a thin pass-through
	// (no model mutation beyond the established-channel check) so the Repo
	// can decide *when* to ask — right after a channel it dialed or
	// accepted reaches Established — without the pure core having to guess
	// which side is the initiator.
	MsgRequestDirectory MessageKind = "request-directory"
)

// Message is the tagged union dispatched into Update. Only the fields
// relevant to Kind are populated.
type Message struct {
	Kind MessageKind

	// channel-added / channel-removed
	ChannelID   ids.ChannelID
	ChannelKind channel.Kind
	AdapterType ids.AdapterType

	// channel-receive-message
	Proto proto.Message

	// doc-ensure / doc-created / doc-imported / doc-delete / local-doc-change
	DocID   ids.DocID
	Doc     crdt.Document
	Version crdt.Version
	Data    []byte

	// ephemeral-local-change
	EphemeralValue map[string]interface{}

	// request-directory (nil RequestedDocIDs means "all docs")
	RequestedDocIDs []ids.DocID

	// heartbeat carries nothing; it is a tick signal
}
