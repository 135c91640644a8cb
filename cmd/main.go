package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/syncmesh/syncmesh/internal/channel"
	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/logging"
	"github.com/syncmesh/syncmesh/internal/proto"
	"github.com/syncmesh/syncmesh/internal/repo"
	"github.com/syncmesh/syncmesh/internal/storageadapter"
	"github.com/syncmesh/syncmesh/internal/syncer"
	"github.com/syncmesh/syncmesh/internal/tracing"
	"github.com/syncmesh/syncmesh/pkg/crdt"
	"github.com/syncmesh/syncmesh/pkg/crdt/memdoc"
)

func main() {
	ctx := context.Background()

	appLog, err := logging.NewLogger("info", "console")
	if err != nil {
		log.Fatal(err)
	}

	tp, err := tracing.InitTracer("syncmesh", "http://localhost:14268/api/traces")
	if err != nil {
		log.Fatal(err)
	}
	defer tp.Shutdown(ctx)

	engineA := memdoc.NewEngine("peer-a")
	engineB := memdoc.NewEngine("peer-b")

	repoA := repo.New(engineA, repo.Options{
		Self: proto.Identity{PeerID: ids.NewPeerID(), Name: "peer-a", Kind: proto.PeerKindService},
		Log:  appLog,
	})
	repoB := repo.New(engineB, repo.Options{
		Self: proto.Identity{PeerID: ids.NewPeerID(), Name: "peer-b", Kind: proto.PeerKindService},
		Log:  appLog,
	})
	defer repoA.Shutdown(ctx)
	defer repoB.Shutdown(ctx)

	// Bridge the two repos in-process, standing in for a real network
	// transport (spec §4.1's channel establishment, minus a socket).
	if err := repo.Bridge(ctx, repoA, repoB, channel.KindNetwork, channel.KindNetwork); err != nil {
		log.Fatal(err)
	}

	// Give peer-a a file-backed storage channel too, so every local change
	// it makes is persisted as well as synced to peer-b (spec §4.8).
	store, err := storageadapter.NewFileBlobStore("./syncmesh-data", "")
	if err != nil {
		log.Fatal(err)
	}
	storageAdapter := storageadapter.New(repoA.Directory(), store, engineA, "peer-a-storage", repoA.Dispatch, appLog)
	storageAdapter.OnChannelAdded = repoA.OnChannelAdded
	if err := repoA.AddAdapter(ctx, storageAdapter); err != nil {
		log.Fatal(err)
	}

	docID := ids.DocID("shared-note")

	handleA := repoA.Get(docID)
	handleB := repoB.Get(docID)

	if err := handleA.Change(func(doc crdt.MutableDocument) {
		doc.Set("title", "hello from peer-a")
	}); err != nil {
		log.Fatal(err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := handleB.WaitUntilReady(waitCtx, func(states []syncer.ReadyState) bool {
		for _, s := range states {
			if s.Loading == syncer.LoadingFound {
				return true
			}
		}
		return false
	}); err != nil {
		fmt.Println("peer-b did not finish its initial sync in time:", err)
	}

	if snapshot, ok := handleB.Snapshot(); ok {
		fmt.Printf("peer-b sees: %v\n", snapshot)
	} else {
		fmt.Println("peer-b has not received the document yet")
	}

	handleA.Ephemeral().Set(map[string]interface{}{"cursor": 12})
	time.Sleep(50 * time.Millisecond)
	fmt.Printf("peer-b's view of peer-a's presence: %v\n", handleB.Ephemeral().All())
}
