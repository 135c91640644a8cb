package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/syncmesh/syncmesh/internal/channel"
	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/logging"
	"github.com/syncmesh/syncmesh/internal/proto"
	"github.com/syncmesh/syncmesh/pkg/crdt"
	"go.uber.org/zap"
)

// Executor interprets the Commands Update returns: CRDT I/O, adapter
// sends (via the channel Directory and Batcher), timers, and the
// observability callbacks a Repo wires up. It owns the single live Model
// and runs its dispatch loop iteratively, never recursively (spec §4.3's
// dispatch-loop rule) — a Command that itself produces further Messages
// (a completed import, a fired timer) is pushed back onto the same queue
// instead of calling Update from inside Update's own call stack.
type Executor struct {
	mu    sync.Mutex
	model Model
	dir   *channel.Directory
	batch *Batcher
	engine crdt.Engine
	log   *logging.Logger

	queue  []Message
	timers map[string]*time.Timer

	OnReadyState      func([]ReadyState)
	OnEphemeralChange func(docID ids.DocID, peerID ids.PeerID, value map[string]interface{})
}

func NewExecutor(model Model, dir *channel.Directory, engine crdt.Engine, log *logging.Logger) *Executor {
	return &Executor{
		model:  model,
		dir:    dir,
		batch:  NewBatcher(dir),
		engine: engine,
		log:    log,
		timers: make(map[string]*time.Timer),
	}
}

// Model returns a snapshot of the current model for inspection (tests,
// ReadyStates queries). Safe to call concurrently with Dispatch.
func (e *Executor) Model() Model {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model
}

// Dispatch enqueues msg and drains the queue to completion. Safe to call
// from any goroutine — adapters deliver inbound messages this way, and a
// CRDT subscription callback fired by an application's doc.Change also
// calls back in through here.
func (e *Executor) Dispatch(msg Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = append(e.queue, msg)
	e.drainLocked()
}

func (e *Executor) drainLocked() {
	for len(e.queue) > 0 {
		msg := e.queue[0]
		e.queue = e.queue[1:]
		newModel, cmd := Update(msg, e.model)
		e.model = newModel
		e.executeLocked(cmd)
	}
	e.batch.Flush()
}

func (e *Executor) enqueueLocked(msg Message) {
	e.queue = append(e.queue, msg)
}

func (e *Executor) executeLocked(cmd Command) {
	switch cmd.Kind {
	case CmdNone:
		return
	case CmdBatch:
		for _, c := range cmd.Commands {
			e.executeLocked(c)
		}
	case CmdSendMessage:
		e.batch.Enqueue(cmd.ToChannelIDs, cmd.Message)
	case CmdStartChannel, CmdStopChannel:
		// Channel lifecycle is driven by the owning Adapter directly
		// (spec §4.1); these exist so Update's command vocabulary matches
		// spec §4.3 in full, for components that model a channel's
		// start/stop as data rather than an immediate adapter call.
	case CmdSetTimeout:
		e.setTimeoutLocked(cmd.TimerName, cmd.Duration, cmd.TimerMsg)
	case CmdClearTimeout:
		e.clearTimeoutLocked(cmd.TimerName)
	case CmdCreateDocument:
		e.createDocumentLocked(cmd.DocID)
	case CmdImportDocument:
		e.importDocumentLocked(cmd.DocID, cmd.ChannelID, cmd.Data)
	case CmdEmitReadyStateChange:
		if e.OnReadyState != nil {
			e.OnReadyState(cmd.ReadyStates)
		}
	case CmdEmitEphemeralChange:
		if e.OnEphemeralChange != nil {
			e.OnEphemeralChange(cmd.EphemeralDocID, cmd.EphemeralPeerID, cmd.EphemeralValue)
		}
	case CmdLog:
		if e.log != nil {
			e.log.Warn(cmd.LogMessage)
		}
	}
}

func (e *Executor) createDocumentLocked(docID ids.DocID) {
	doc, err := e.engine.NewDocument(context.Background())
	if err != nil {
		if e.log != nil {
			e.log.Error("failed to create document", zap.Error(err))
		}
		return
	}
	doc.Subscribe(func(change crdt.Change) {
		e.Dispatch(Message{Kind: MsgLocalDocChange, DocID: docID, Data: change.Update, Version: change.Version})
	})
	e.enqueueLocked(Message{Kind: MsgDocCreated, DocID: docID, Doc: doc})
}

func (e *Executor) importDocumentLocked(docID ids.DocID, chID ids.ChannelID, data []byte) {
	ds, ok := e.model.Docs[docID]
	if !ok || ds.Doc == nil {
		if e.log != nil {
			e.log.Warn("import-document for a document with no local instance")
		}
		return
	}
	if err := ds.Doc.Import(data); err != nil {
		if e.log != nil {
			e.log.Error("failed to import document", zap.Error(err))
		}
		return
	}
	e.enqueueLocked(Message{Kind: MsgDocImported, DocID: docID, ChannelID: chID, Version: ds.Doc.Version()})
}

func (e *Executor) setTimeoutLocked(name string, d time.Duration, msg Message) {
	e.clearTimeoutLocked(name)
	e.timers[name] = time.AfterFunc(d, func() { e.Dispatch(msg) })
}

func (e *Executor) clearTimeoutLocked(name string) {
	if t, ok := e.timers[name]; ok {
		t.Stop()
		delete(e.timers, name)
	}
}

// Shutdown stops every outstanding timer. It does not stop adapters or
// close channels — that's the Repo's responsibility.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name := range e.timers {
		e.clearTimeoutLocked(name)
	}
}
