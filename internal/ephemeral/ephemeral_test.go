package ephemeral

import (
	"testing"

	"github.com/syncmesh/syncmesh/internal/ids"
)

func TestSetSelfIncrementsSequence(t *testing.T) {
	s := NewStore()
	doc := ids.DocID("doc-1")
	self := ids.PeerID("self")

	e1 := s.SetSelf(doc, self, map[string]interface{}{"cursor": 1})
	e2 := s.SetSelf(doc, self, map[string]interface{}{"cursor": 2})

	if e1.Seq != 1 || e2.Seq != 2 {
		t.Fatalf("expected sequential seqs 1, 2, got %d, %d", e1.Seq, e2.Seq)
	}
	got, ok := s.Get(doc, self)
	if !ok || got.Seq != 2 {
		t.Fatalf("expected stored entry to reflect the latest set-self, got %+v ok=%v", got, ok)
	}
}

func TestReceiveAcceptsNewerDropsStale(t *testing.T) {
	s := NewStore()
	doc := ids.DocID("doc-1")
	peer := ids.PeerID("peer-a")

	if !s.Receive(doc, Entry{PeerID: peer, Seq: 5, Value: map[string]interface{}{"x": 1}}) {
		t.Fatal("expected the first entry to be accepted")
	}
	if s.Receive(doc, Entry{PeerID: peer, Seq: 5, Value: map[string]interface{}{"x": 2}}) {
		t.Fatal("expected a duplicate sequence number to be dropped")
	}
	if s.Receive(doc, Entry{PeerID: peer, Seq: 3, Value: map[string]interface{}{"x": 3}}) {
		t.Fatal("expected an out-of-order stale sequence number to be dropped")
	}
	if !s.Receive(doc, Entry{PeerID: peer, Seq: 6, Value: map[string]interface{}{"x": 4}}) {
		t.Fatal("expected a newer sequence number to be accepted")
	}

	got, ok := s.Get(doc, peer)
	if !ok || got.Seq != 6 {
		t.Fatalf("expected the latest accepted entry to be seq 6, got %+v", got)
	}
}

func TestAllReturnsEveryPeerEntry(t *testing.T) {
	s := NewStore()
	doc := ids.DocID("doc-1")
	s.Receive(doc, Entry{PeerID: "a", Seq: 1})
	s.Receive(doc, Entry{PeerID: "b", Seq: 1})

	all := s.All(doc)
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
}

func TestAllOnUnknownDocReturnsEmpty(t *testing.T) {
	s := NewStore()
	if got := s.All(ids.DocID("nope")); got != nil {
		t.Fatalf("expected nil for an unknown doc, got %+v", got)
	}
}

func TestClearRemovesPeerEntriesButKeepsDedupWatermark(t *testing.T) {
	s := NewStore()
	doc := ids.DocID("doc-1")
	peer := ids.PeerID("peer-a")
	s.Receive(doc, Entry{PeerID: peer, Seq: 5})

	s.Clear(peer)

	if _, ok := s.Get(doc, peer); ok {
		t.Fatal("expected the peer's entry to be cleared")
	}
	if s.Receive(doc, Entry{PeerID: peer, Seq: 5}) {
		t.Fatal("expected the dedup watermark to survive Clear and reject a replay")
	}
	if !s.Receive(doc, Entry{PeerID: peer, Seq: 6}) {
		t.Fatal("expected a genuinely newer sequence to still be accepted after Clear")
	}
}

func TestHeartbeatBatchesGroupsPerDestinationPeer(t *testing.T) {
	s := NewStore()
	docA := ids.DocID("doc-a")
	docB := ids.DocID("doc-b")

	s.Receive(docA, Entry{PeerID: "writer-1", Seq: 1})
	s.Receive(docB, Entry{PeerID: "writer-1", Seq: 1})

	docsPerPeer := map[ids.PeerID][]ids.DocID{
		"dest-1": {docA, docB},
		"dest-2": {docA},
	}

	batches := s.HeartbeatBatches(docsPerPeer)

	if len(batches["dest-1"]) != 2 {
		t.Fatalf("expected dest-1 to get both documents batched together, got %+v", batches["dest-1"])
	}
	if len(batches["dest-2"]) != 1 {
		t.Fatalf("expected dest-2 to get only doc-a, got %+v", batches["dest-2"])
	}
}

func TestHeartbeatBatchesOmitsEmptyDocsAndPeers(t *testing.T) {
	s := NewStore()
	docsPerPeer := map[ids.PeerID][]ids.DocID{
		"dest-1": {ids.DocID("doc-with-no-presence")},
	}
	batches := s.HeartbeatBatches(docsPerPeer)
	if _, ok := batches["dest-1"]; ok {
		t.Fatal("expected a peer with no non-empty documents to be omitted entirely")
	}
}
