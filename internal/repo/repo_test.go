package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncmesh/syncmesh/internal/channel"
	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/middleware"
	"github.com/syncmesh/syncmesh/internal/proto"
	"github.com/syncmesh/syncmesh/internal/syncer"
	"github.com/syncmesh/syncmesh/pkg/crdt"
	"github.com/syncmesh/syncmesh/pkg/crdt/memdoc"
)

func newTestRepo(t *testing.T, name string, perms *middleware.Permissions) *Repo {
	t.Helper()
	engine := memdoc.NewEngine(name)
	r := New(engine, Options{
		Self:        proto.Identity{PeerID: ids.PeerID(name), Name: name, Kind: proto.PeerKindService},
		Permissions: perms,
	})
	t.Cleanup(func() { r.Shutdown(context.Background()) })
	return r
}

func waitFound(t *testing.T, ctx context.Context, h *Handle) error {
	t.Helper()
	return h.WaitUntilReady(ctx, func(states []syncer.ReadyState) bool {
		for _, s := range states {
			if s.Loading == syncer.LoadingFound {
				return true
			}
		}
		return false
	})
}

// TestTwoPeerSync exercises spec §4.2's end-to-end scenario: peer A creates
// a document and changes a field; peer B, which has never seen that
// DocID before, discovers it through the directory handshake and pulls a
// full snapshot once it calls Get.
func TestTwoPeerSync(t *testing.T) {
	repoA := newTestRepo(t, "peer-a", nil)
	repoB := newTestRepo(t, "peer-b", nil)

	ctx := context.Background()
	require.NoError(t, Bridge(ctx, repoA, repoB, channel.KindNetwork, channel.KindNetwork))

	docID := ids.DocID("doc-1")
	handleA := repoA.Get(docID)
	require.NoError(t, handleA.Change(func(doc crdt.MutableDocument) {
		doc.Set("title", "hello")
	}))

	handleB := repoB.Get(docID)
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, waitFound(t, waitCtx, handleB))

	snapshot, ok := handleB.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "hello", snapshot["title"])
}

// TestPermissionGateBlocksDiscovery confirms spec §4.6: when peer A's
// Permissions deny every network-channel mayList/mayReveal, peer B never
// learns the document exists, even though it calls Get on the same DocID.
func TestPermissionGateBlocksDiscovery(t *testing.T) {
	repoA := newTestRepo(t, "peer-a", middleware.DenyNetwork())
	repoB := newTestRepo(t, "peer-b", nil)

	ctx := context.Background()
	require.NoError(t, Bridge(ctx, repoA, repoB, channel.KindNetwork, channel.KindNetwork))

	docID := ids.DocID("doc-2")
	handleA := repoA.Get(docID)
	require.NoError(t, handleA.Change(func(doc crdt.MutableDocument) {
		doc.Set("title", "secret")
	}))

	handleB := repoB.Get(docID)
	waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	err := waitFound(t, waitCtx, handleB)
	assert.Error(t, err, "peer-b should never observe LoadingFound when peer-a denies network list/reveal")

	_, ok := handleB.Snapshot()
	assert.False(t, ok)
}

// TestEphemeralPresence exercises spec §4.7: a presence value set on one
// peer is observed by the other once both are subscribed to the same
// document (subscription happens as a side effect of the sync-request
// peer B issues when it calls Get).
func TestEphemeralPresence(t *testing.T) {
	repoA := newTestRepo(t, "peer-a", nil)
	repoB := newTestRepo(t, "peer-b", nil)

	ctx := context.Background()
	require.NoError(t, Bridge(ctx, repoA, repoB, channel.KindNetwork, channel.KindNetwork))

	docID := ids.DocID("doc-3")
	handleA := repoA.Get(docID)
	handleB := repoB.Get(docID)

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, waitFound(t, waitCtx, handleB))

	handleA.Ephemeral().Set(map[string]interface{}{"cursor": float64(7)})

	deadline := time.Now().Add(2 * time.Second)
	var seen map[string]interface{}
	for time.Now().Before(deadline) {
		all := handleB.Ephemeral().All()
		if v, ok := all[repoA.Self().PeerID]; ok {
			seen = v
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NotNil(t, seen, "peer-b never observed peer-a's ephemeral entry")
	assert.Equal(t, float64(7), seen["cursor"])
}

// TestChangeOnUnknownDocumentFails confirms Handle.Change reports an error
// rather than panicking when the Repo holds no local document for the
// handle's DocID. Get cannot produce that state itself (Executor.Dispatch
// drains fully before returning, so the document exists by the time Get
// returns), so the test builds a Handle for an unknown DocID directly.
func TestChangeOnUnknownDocumentFails(t *testing.T) {
	r := newTestRepo(t, "peer-a", nil)
	h := &Handle{repo: r, docID: ids.DocID("never-created")}
	err := h.Change(func(doc crdt.MutableDocument) {})
	assert.Error(t, err)
}

// TestResetReturnsToInitialModel confirms spec §5: Reset disconnects every
// adapter and clears channels/peers/documents, but leaves the Repo usable
// for a fresh round of AddAdapter/Get calls afterward.
func TestResetReturnsToInitialModel(t *testing.T) {
	repoA := newTestRepo(t, "peer-a", nil)
	repoB := newTestRepo(t, "peer-b", nil)

	ctx := context.Background()
	require.NoError(t, Bridge(ctx, repoA, repoB, channel.KindNetwork, channel.KindNetwork))

	docID := ids.DocID("doc-reset")
	handleA := repoA.Get(docID)
	require.NoError(t, handleA.Change(func(doc crdt.MutableDocument) {
		doc.Set("title", "hello")
	}))

	require.NoError(t, repoA.Reset(ctx))

	assert.Empty(t, repoA.exec.Model().Channels)
	assert.Empty(t, repoA.exec.Model().Peers)
	assert.Empty(t, repoA.exec.Model().Docs)
	assert.Empty(t, repoA.dir.All())

	// The Repo stays usable: a fresh Get still works against the reset model,
	// with a clean document rather than the pre-reset contents.
	h := repoA.Get(docID)
	snapshot, ok := h.Snapshot()
	require.True(t, ok)
	assert.NotContains(t, snapshot, "title")
}
