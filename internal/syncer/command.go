package syncer

import (
	"time"

	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/proto"
	"github.com/syncmesh/syncmesh/pkg/crdt"
)

// CommandKind enumerates the effect data Update can return (spec §4.3/4.4).
type CommandKind string

const (
	CmdNone                 CommandKind = ""
	CmdSendMessage          CommandKind = "send-message"
	CmdStartChannel         CommandKind = "start-channel"
	CmdStopChannel          CommandKind = "stop-channel"
	CmdSetTimeout           CommandKind = "set-timeout"
	CmdClearTimeout         CommandKind = "clear-timeout"
	CmdCreateDocument       CommandKind = "create-document"
	CmdImportDocument       CommandKind = "import-document"
	CmdEmitReadyStateChange CommandKind = "emit-ready-state-changed"
	CmdEmitEphemeralChange  CommandKind = "emit-ephemeral-change"
	CmdLog                  CommandKind = "log"
	CmdBatch                CommandKind = "batch"
)

// ReadyState is the application-observable per-(doc, channel) loading
// snapshot (spec §3).
type ReadyState struct {
	DocID       ids.DocID
	ChannelID   ids.ChannelID
	ChannelKind string
	AdapterType ids.AdapterType
	PeerID      ids.PeerID
	Loading     LoadingState
	Version     crdt.Version
}

// Command is the data a single Update call returns describing an effect to
// perform; it carries no behavior of its own. Commands that themselves
// produce further Messages (a completed CRDT import, a fired timeout) are
// fed back into the dispatch loop by the Executor, never recursively from
// within Update.
type Command struct {
	Kind CommandKind

	// send-message
	ToChannelIDs []ids.ChannelID
	Message      proto.Message

	// start-channel / stop-channel
	ChannelID ids.ChannelID

	// set-timeout / clear-timeout
	TimerName string
	TimerMsg  Message
	Duration  time.Duration

	// create-document / import-document
	DocID ids.DocID
	Data  []byte

	// emit-ready-state-changed
	ReadyStates []ReadyState

	// emit-ephemeral-change
	EphemeralDocID  ids.DocID
	EphemeralPeerID ids.PeerID
	EphemeralValue  map[string]interface{}

	// log
	LogMessage string

	// batch
	Commands []Command
}

// None is the no-op command Update returns when a message requires no effect.
var None = Command{Kind: CmdNone}

// Batch wraps zero-or-more commands into one, dropping to None/the single
// command when possible, matching the send batcher's "never nest" rule at
// the command level too.
func Batch(cmds ...Command) Command {
	flat := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Kind == CmdNone {
			continue
		}
		if c.Kind == CmdBatch {
			flat = append(flat, c.Commands...)
			continue
		}
		flat = append(flat, c)
	}
	switch len(flat) {
	case 0:
		return None
	case 1:
		return flat[0]
	default:
		return Command{Kind: CmdBatch, Commands: flat}
	}
}
