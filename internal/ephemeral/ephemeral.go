// Package ephemeral implements the presence store of spec §4.7: a
// per-document map of PeerID to transient value, with sequence-number
// deduplication and multi-hop heartbeat relay. Grounded on
// internal/clock's vector-clock compare idiom (monotonic per-writer
// counters, "newer wins, stale drops"), collapsed here to a scalar
// per-(doc, peer) sequence number since each writer owns only its own
// entry.
package ephemeral

import (
	"sync"

	"github.com/syncmesh/syncmesh/internal/ids"
)

// Entry is one peer's current presence value within a document.
type Entry struct {
	PeerID ids.PeerID
	Seq    int64
	Value  map[string]interface{}
}

// docState is the per-document presence table: current value plus the
// highest sequence number observed per writer, tracked separately so a
// writer's entry can be cleared (peer left) without losing the dedup
// watermark needed to reject a late-arriving stale message.
type docState struct {
	entries map[ids.PeerID]Entry
	lastSeq map[ids.PeerID]int64
}

// Store holds presence state for every document the local Repo knows
// about. One Store per Repo; callers scope operations by DocID.
type Store struct {
	mu   sync.Mutex
	docs map[ids.DocID]*docState
	// selfSeq is this process's own per-document sequence counter —
	// every writer, including us, owns exactly one counter per doc.
	selfSeq map[ids.DocID]int64
}

func NewStore() *Store {
	return &Store{
		docs:    make(map[ids.DocID]*docState),
		selfSeq: make(map[ids.DocID]int64),
	}
}

func (s *Store) stateFor(docID ids.DocID) *docState {
	ds, ok := s.docs[docID]
	if !ok {
		ds = &docState{entries: make(map[ids.PeerID]Entry), lastSeq: make(map[ids.PeerID]int64)}
		s.docs[docID] = ds
	}
	return ds
}

// SetSelf records a new local presence value for docID under selfID,
// bumping the local sequence counter, and returns the Entry to broadcast
// with hopsRemaining = 1 (spec §4.7's "Set self").
func (s *Store) SetSelf(docID ids.DocID, selfID ids.PeerID, value map[string]interface{}) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selfSeq[docID]++
	seq := s.selfSeq[docID]
	entry := Entry{PeerID: selfID, Seq: seq, Value: value}

	ds := s.stateFor(docID)
	ds.entries[selfID] = entry
	ds.lastSeq[selfID] = seq
	return entry
}

// Receive applies an incoming Entry for docID. accepted reports whether
// the entry was newer than the last one seen from that writer (and so was
// applied); stale, already-seen entries are dropped per spec §4.7.
func (s *Store) Receive(docID ids.DocID, entry Entry) (accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds := s.stateFor(docID)
	if entry.Seq <= ds.lastSeq[entry.PeerID] {
		return false
	}
	ds.entries[entry.PeerID] = entry
	ds.lastSeq[entry.PeerID] = entry.Seq
	return true
}

// All returns every current entry known for docID, the payload a
// heartbeat broadcasts and a late joiner receives on first subscription.
func (s *Store) All(docID ids.DocID) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.docs[docID]
	if !ok {
		return nil
	}
	out := make([]Entry, 0, len(ds.entries))
	for _, e := range ds.entries {
		out = append(out, e)
	}
	return out
}

// Get returns a single peer's current entry for docID, if any.
func (s *Store) Get(docID ids.DocID, peerID ids.PeerID) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.docs[docID]
	if !ok {
		return Entry{}, false
	}
	e, ok := ds.entries[peerID]
	return e, ok
}

// DocEntries is one document's full presence snapshot, the unit a
// heartbeat batches per destination peer.
type DocEntries struct {
	DocID   ids.DocID
	Entries []Entry
}

// HeartbeatBatches builds the per-destination-peer heartbeat payloads of
// spec §4.7: docsPerPeer maps each established, subscribed peer to the set
// of documents it shares with us, and the result groups every such
// document's full presence snapshot into one batch per peer — O(peers)
// sends instead of O(docs × peers). Documents with no presence entries yet
// are omitted from that peer's batch; a peer with nothing to send is
// omitted entirely.
func (s *Store) HeartbeatBatches(docsPerPeer map[ids.PeerID][]ids.DocID) map[ids.PeerID][]DocEntries {
	out := make(map[ids.PeerID][]DocEntries, len(docsPerPeer))
	for peer, docIDs := range docsPerPeer {
		batch := make([]DocEntries, 0, len(docIDs))
		for _, docID := range docIDs {
			entries := s.All(docID)
			if len(entries) == 0 {
				continue
			}
			batch = append(batch, DocEntries{DocID: docID, Entries: entries})
		}
		if len(batch) > 0 {
			out[peer] = batch
		}
	}
	return out
}

// Clear removes every entry a departing peer contributed across all
// documents, invoked when a PeerState's channel set becomes empty (spec
// invariant in §3: "peer state is deleted and its subscriptions/ephemeral
// entries are cleared"). It intentionally keeps lastSeq so a reconnecting
// peer's stale re-delivery still dedups correctly rather than resetting to
// sequence zero.
func (s *Store) Clear(peerID ids.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ds := range s.docs {
		delete(ds.entries, peerID)
	}
}
