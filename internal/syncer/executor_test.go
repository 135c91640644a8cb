package syncer

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/syncmesh/syncmesh/internal/channel"
	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/logging"
	"github.com/syncmesh/syncmesh/internal/middleware"
	"github.com/syncmesh/syncmesh/internal/proto"
	"github.com/syncmesh/syncmesh/pkg/crdt"
	"github.com/syncmesh/syncmesh/pkg/crdt/memdoc"
)

func newTestExecutor(t *testing.T, peerID string) (*Executor, *channel.Directory) {
	t.Helper()
	log := &logging.Logger{Logger: zap.NewNop()}
	dir := channel.NewDirectory(log)
	model := NewModel(proto.Identity{PeerID: ids.PeerID(peerID), Name: peerID}, middleware.AllowAll())
	engine := memdoc.NewEngine(peerID)
	return NewExecutor(model, dir, engine, log), dir
}

// TestExecutorCreateAndImportDocument exercises CmdCreateDocument end to
// end: the executor asks the memdoc engine for a real Document, and a
// follow-up doc-ensure against the same DocID is a no-op once it lands.
func TestExecutorCreateDocumentOnce(t *testing.T) {
	exec, _ := newTestExecutor(t, "self")

	exec.Dispatch(Message{Kind: MsgDocEnsure, DocID: "doc-a"})
	ds, ok := exec.Model().Docs["doc-a"]
	if !ok || ds.Doc == nil {
		t.Fatalf("expected doc-a to have a live Document after create-document executes, got %+v ok=%v", ds, ok)
	}

	exec.Dispatch(Message{Kind: MsgDocEnsure, DocID: "doc-a"})
	if exec.Model().Docs["doc-a"].Doc != ds.Doc {
		t.Fatal("expected a repeated doc-ensure to leave the existing Document untouched")
	}
}

// TestExecutorLocalChangeDoesNotRecurseIntoUpdate verifies that a CRDT
// subscription fired by doc.Set (simulating an application edit made
// outside any Dispatch call) re-enters through Executor.Dispatch and
// produces an outbound send to the subscribed peer rather than being
// dropped.
func TestExecutorLocalChangeDoesNotRecurseIntoUpdate(t *testing.T) {
	exec, dir := newTestExecutor(t, "self")

	var sent []proto.Message
	ch := dir.NewChannel(channel.KindNetwork, "test", func(m proto.Message) error {
		sent = append(sent, m)
		return nil
	}, func() {})

	exec.Dispatch(Message{Kind: MsgChannelAdded, ChannelID: ch.ID, ChannelKind: channel.KindNetwork})
	exec.Dispatch(Message{Kind: MsgChannelReceive, ChannelID: ch.ID, Proto: proto.Message{
		Kind:     proto.KindEstablishRequest,
		Identity: proto.Identity{PeerID: "peer-a"},
	}})
	exec.Dispatch(Message{Kind: MsgDocEnsure, DocID: "doc-a"})

	model := exec.Model()
	model.peerState("peer-a", proto.Identity{}).Subscriptions["doc-a"] = struct{}{}

	doc := exec.Model().Docs["doc-a"].Doc.(*memdoc.Document)
	before := len(sent)
	doc.Set("title", "hello")

	if len(sent) == before {
		t.Fatal("expected the local Set to result in at least one outbound send")
	}
}

// TestExecutorSetTimeoutFires confirms a CmdSetTimeout schedules a real
// timer that dispatches its message back through the queue.
func TestExecutorSetTimeoutFires(t *testing.T) {
	exec, _ := newTestExecutor(t, "self")
	defer exec.Shutdown()

	exec.executeLocked(Command{Kind: CmdSetTimeout, TimerName: "probe", Duration: 10 * time.Millisecond, TimerMsg: Message{Kind: MsgDocEnsure, DocID: "probe-doc"}})

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, ok := exec.Model().Docs["probe-doc"]; ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected the timer's doc-ensure message to be dispatched within 500ms")
}

// TestExecutorImportDocumentAppliesBytes drives CmdImportDocument with a
// real memdoc snapshot exported from a second document, confirming the
// imported fields land in the Document the executor holds.
func TestExecutorImportDocumentAppliesBytes(t *testing.T) {
	exec, _ := newTestExecutor(t, "self")
	exec.Dispatch(Message{Kind: MsgDocEnsure, DocID: "doc-a"})

	engine := memdoc.NewEngine("peer-b")
	remoteDoc, err := engine.NewDocument(context.Background())
	if err != nil {
		t.Fatalf("unexpected error creating remote document: %v", err)
	}
	remote := remoteDoc.(*memdoc.Document)
	remote.Set("title", "from peer-b")
	snapshot, err := remote.Export(crdt.ExportSnapshot, nil)
	if err != nil {
		t.Fatalf("unexpected error exporting snapshot: %v", err)
	}

	exec.importDocumentLocked("doc-a", 0, snapshot)

	local := exec.Model().Docs["doc-a"].Doc
	if got := local.Snapshot()["title"]; got != "from peer-b" {
		t.Fatalf("expected imported field title=%q, got %v", "from peer-b", got)
	}
}
