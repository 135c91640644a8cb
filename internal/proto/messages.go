// Package proto defines the wire-level protocol message union of the
// synchronizer (spec §6), grounded on the teacher's types.ProtocolMessage /
// MessageType enum but expanded from five message kinds to the full
// establish/directory/sync/ephemeral/batch set.
package proto

import (
	"github.com/syncmesh/syncmesh/internal/clock"
	"github.com/syncmesh/syncmesh/internal/ids"
)

// Kind enumerates protocol message types.
type Kind string

const (
	KindEstablishRequest  Kind = "establish-request"
	KindEstablishResponse Kind = "establish-response"
	KindDirectoryRequest  Kind = "directory-request"
	KindDirectoryResponse Kind = "directory-response"
	KindNewDoc            Kind = "new-doc"
	KindSyncRequest       Kind = "sync-request"
	KindSyncResponse      Kind = "sync-response"
	KindUpdate            Kind = "update"
	KindDeleteRequest     Kind = "delete-request"
	KindDeleteResponse    Kind = "delete-response"
	KindEphemeral         Kind = "ephemeral"
	KindBatch             Kind = "batch"
)

// Identity is the peer identity exchanged during establish.
type Identity struct {
	PeerID ids.PeerID
	Name   string
	Kind   PeerKind
}

// PeerKind distinguishes human operators from service accounts.
type PeerKind string

const (
	PeerKindUser    PeerKind = "user"
	PeerKindService PeerKind = "service"
)

// TransmissionKind tags which variant a sync-response/update carries.
type TransmissionKind int

const (
	TransmissionSnapshot TransmissionKind = iota
	TransmissionUpdate
	TransmissionUpToDate
	TransmissionUnavailable
)

// Transmission is the payload half of a sync-response or update message.
type Transmission struct {
	Kind    TransmissionKind
	Data    []byte
	Version clock.VectorClock
}

// DeleteStatus is the outcome reported in a delete-response.
type DeleteStatus string

const (
	DeleteStatusDeleted DeleteStatus = "deleted"
	DeleteStatusIgnored DeleteStatus = "ignored"
)

// EphemeralEntry is one peer's presence value carried in an ephemeral message.
type EphemeralEntry struct {
	PeerID ids.PeerID
	Seq    int64
	Value  map[string]interface{}
}

// Message is the tagged union of every protocol message. Only the fields
// relevant to Kind are populated; this mirrors the teacher's single
// ProtocolMessage struct with a polymorphic Payload, but typed per field
// instead of interface{} so the update core can switch on Kind without type
// assertions scattered through the codebase.
type Message struct {
	Kind Kind

	// establish-request / establish-response
	Identity Identity

	// directory-request (nil means "all docs")
	RequestedDocIDs []ids.DocID

	// directory-response / new-doc
	DocIDs []ids.DocID

	// sync-request
	DocID                ids.DocID
	RequesterDocVersion  clock.VectorClock
	Bidirectional        bool

	// sync-response / update
	Transmission Transmission

	// delete-request / delete-response
	DeleteStatus DeleteStatus

	// ephemeral
	HopsRemaining int
	Stores        []EphemeralEntry

	// batch
	Messages []Message
}

// Envelope is the addressed wrapper the executor hands to adapters: a
// message bound for one or more destination channels, optionally tagged
// with the channel it arrived from.
type Envelope struct {
	FromChannelID ids.ChannelID
	ToChannelIDs  []ids.ChannelID
	Message       Message
}

// Flatten expands nested batches into a single flat list of non-batch
// messages, preserving order. Batch envelopes never nest on the wire
// (Testable Property 4); Flatten is the enforcement point.
func Flatten(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Kind == KindBatch {
			out = append(out, Flatten(m.Messages)...)
			continue
		}
		out = append(out, m)
	}
	return out
}

// Wrap collapses a list of messages into exactly one outbound message: the
// message itself if there's one, a flattened batch if there are several,
// or the zero Message (Kind == "") if there are none — callers must check
// len(msgs) before relying on Wrap to decide whether to send at all.
func Wrap(msgs []Message) Message {
	flat := Flatten(msgs)
	switch len(flat) {
	case 0:
		return Message{}
	case 1:
		return flat[0]
	default:
		return Message{Kind: KindBatch, Messages: flat}
	}
}
