package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/syncer"
	"github.com/syncmesh/syncmesh/pkg/crdt"
)

// Handle is an application's view of one document within a Repo (spec
// §4.9). It never holds the crdt.Document directly — every read goes
// through the Repo's executor snapshot so a Handle is always consistent
// with whatever the dispatch loop has most recently committed.
type Handle struct {
	repo  *Repo
	docID ids.DocID
}

// DocID returns the document this Handle addresses.
func (h *Handle) DocID() ids.DocID {
	return h.docID
}

// Snapshot returns the document's current application-facing contents, or
// false if the document hasn't been created locally yet (still loading).
func (h *Handle) Snapshot() (map[string]interface{}, bool) {
	doc, ok := h.doc()
	if !ok {
		return nil, false
	}
	return doc.Snapshot(), true
}

// Change applies a local mutation through the engine's MutableDocument
// escape hatch (pkg/crdt.MutableDocument), the one way a Handle is allowed
// to touch document state directly — everything else flows through the
// update core via messages. It returns an error if the document doesn't
// exist yet locally, or if the underlying engine doesn't support direct
// mutation (spec §1 treats the typed schema/accessor layer as an external
// collaborator; an engine without MutableDocument simply can't be changed
// this way).
func (h *Handle) Change(mutator func(doc crdt.MutableDocument)) error {
	doc, ok := h.doc()
	if !ok {
		return fmt.Errorf("repo: document %s not yet created locally", h.docID)
	}
	md, ok := doc.(crdt.MutableDocument)
	if !ok {
		return fmt.Errorf("repo: document %s's engine does not support direct mutation", h.docID)
	}
	mutator(md)
	return nil
}

func (h *Handle) doc() (crdt.Document, bool) {
	m := h.repo.exec.Model()
	ds, ok := m.Docs[h.docID]
	if !ok || ds.Doc == nil {
		return nil, false
	}
	return ds.Doc, true
}

// ReadyStates returns the current per-channel loading state for this
// document (spec §3's ready-state), rebuilt the same way the update
// core's readyStateCommand does from the live Model.
func (h *Handle) ReadyStates() []syncer.ReadyState {
	m := h.repo.exec.Model()
	ds, ok := m.Docs[h.docID]
	if !ok {
		return nil
	}
	states := make([]syncer.ReadyState, 0, len(ds.ChannelState))
	for chID, cs := range ds.ChannelState {
		ch, ok := m.Channels[chID]
		if !ok {
			continue
		}
		states = append(states, syncer.ReadyState{
			DocID:       h.docID,
			ChannelID:   chID,
			ChannelKind: string(ch.Kind),
			AdapterType: ch.AdapterType,
			PeerID:      ch.PeerID,
			Loading:     cs.Loading,
		})
	}
	return states
}

// WaitUntilReady polls ReadyStates every 20ms until predicate reports true
// or ctx is done. A typical predicate checks that every channel reached
// LoadingFound or LoadingNotFound, i.e. the initial sync round has
// resolved one way or the other on every channel.
func (h *Handle) WaitUntilReady(ctx context.Context, predicate func([]syncer.ReadyState) bool) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if predicate(h.ReadyStates()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Ephemeral returns the presence accessor scoped to this document (spec
// §4.7).
func (h *Handle) Ephemeral() *EphemeralAccessor {
	return &EphemeralAccessor{repo: h.repo, docID: h.docID}
}

// EphemeralAccessor is a document-scoped view over the Repo's shared
// ephemeral.Store, exposing the Set/Self/All/Get/Subscribe surface spec
// §4.7 describes without letting callers reach the store's other
// documents' state.
type EphemeralAccessor struct {
	repo  *Repo
	docID ids.DocID
}

// Set broadcasts a new local presence value for this document.
func (e *EphemeralAccessor) Set(value map[string]interface{}) {
	e.repo.exec.Dispatch(syncer.Message{Kind: syncer.MsgEphemeralLocalChange, DocID: e.docID, EphemeralValue: value})
}

// Self returns this Repo's own current presence entry for the document.
func (e *EphemeralAccessor) Self() (map[string]interface{}, bool) {
	return e.Get(e.repo.opts.Self.PeerID)
}

// Get returns peerID's current presence entry for the document.
func (e *EphemeralAccessor) Get(peerID ids.PeerID) (map[string]interface{}, bool) {
	m := e.repo.exec.Model()
	entry, ok := m.Ephemeral.Get(e.docID, peerID)
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// All returns every peer's current presence entry for the document, keyed
// by PeerID.
func (e *EphemeralAccessor) All() map[ids.PeerID]map[string]interface{} {
	m := e.repo.exec.Model()
	entries := m.Ephemeral.All(e.docID)
	out := make(map[ids.PeerID]map[string]interface{}, len(entries))
	for _, entry := range entries {
		out[entry.PeerID] = entry.Value
	}
	return out
}

// Subscribe registers fn to be called whenever any peer's presence entry
// for this document changes, including our own. Returns an unsubscribe
// func.
func (e *EphemeralAccessor) Subscribe(fn func(peerID ids.PeerID, value map[string]interface{})) (unsubscribe func()) {
	r := e.repo
	r.mu.Lock()
	r.ephSubs[e.docID] = append(r.ephSubs[e.docID], fn)
	idx := len(r.ephSubs[e.docID]) - 1
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.ephSubs[e.docID]
		if idx < len(subs) {
			subs[idx] = nil
		}
	}
}
