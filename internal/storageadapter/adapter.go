package storageadapter

import (
	"context"
	"sync"
	"time"

	"github.com/syncmesh/syncmesh/internal/channel"
	"github.com/syncmesh/syncmesh/internal/clock"
	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/logging"
	"github.com/syncmesh/syncmesh/internal/proto"
	"github.com/syncmesh/syncmesh/internal/tracing"
	"github.com/syncmesh/syncmesh/pkg/crdt"
	"go.opentelemetry.io/otel/attribute"
)

// Adapter is a channel.Adapter whose one channel doesn't lead anywhere over
// the network: every message the executor sends to it is answered, from a
// separate goroutine, against a BlobStore (spec §4.8), using the exact same
// establish/directory/sync/delete protocol a remote peer would use, so the
// update core treats "persisted to disk" and "replicated to a peer" as the
// same kind of channel.
type Adapter struct {
	dir      *channel.Directory
	store    BlobStore
	engine   crdt.Engine
	log      *logging.Logger
	identity proto.Identity
	dispatch channel.DispatchFunc

	// OnChannelAdded, if set, is invoked once Start has registered this
	// adapter's channel, mirroring the hook TCPAdapter/BridgeAdapter expose.
	OnChannelAdded func(*channel.Channel)

	mu      sync.Mutex
	ch      *channel.Channel
	counter uint64

	saves sync.WaitGroup
}

// New constructs a storage Adapter backed by store. engine is used to
// rebuild a document from its persisted chunks when answering a
// sync-request — the adapter never touches application state, only bytes.
// dispatch is called, from a fresh goroutine, with every reply this
// adapter produces — exactly the role a network adapter's read loop plays,
// letting the owning Repo wire this adapter in with the same DispatchFunc
// it hands every other Adapter.
func New(dir *channel.Directory, store BlobStore, engine crdt.Engine, selfName string, dispatch channel.DispatchFunc, log *logging.Logger) *Adapter {
	return &Adapter{
		dir:      dir,
		store:    store,
		engine:   engine,
		log:      log,
		dispatch: dispatch,
		identity: proto.Identity{PeerID: ids.PeerID("storage:" + selfName), Name: selfName, Kind: proto.PeerKindService},
		// Seeded from wall-clock milliseconds (times 10000, leaving room for
		// a per-millisecond counter) so update keys written after a restart
		// sort after, and never overwrite, those of an earlier instance.
		counter: uint64(time.Now().UnixMilli()) * 10000,
	}
}

func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	ch := a.dir.NewChannel(channel.KindStorage, "file-storage", a.handleSend, func() {})
	a.ch = ch
	a.mu.Unlock()

	if a.OnChannelAdded != nil {
		a.OnChannelAdded(ch)
	}
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	ch := a.ch
	a.ch = nil
	a.mu.Unlock()
	if ch != nil {
		a.dir.Remove(ch.ID)
	}
	a.Flush(ctx)
	return nil
}

func (a *Adapter) RemoveChannel(id ids.ChannelID) error {
	a.dir.Remove(id)
	return nil
}

// Flush blocks until every Save triggered by a message handled so far has
// completed, so a caller can shut down (or take a consistency snapshot)
// without racing an in-flight write.
func (a *Adapter) Flush(ctx context.Context) error {
	a.saves.Wait()
	return nil
}

// handleSend is the channel's send function: the executor calls it, under
// its own lock, every time a command addresses this adapter's channel.
// Per spec §4.3's "never call back into the dispatch loop synchronously"
// rule, it only ever schedules work and returns immediately — the actual
// reply is delivered later, from a fresh goroutine, via dispatch(channelID, ...)
// exactly like a network adapter's read loop would.
func (a *Adapter) handleSend(msg proto.Message) error {
	a.saves.Add(1)
	go func() {
		defer a.saves.Done()
		a.process(msg)
	}()
	return nil
}

func (a *Adapter) reply(msg proto.Message) {
	a.mu.Lock()
	ch := a.ch
	a.mu.Unlock()
	if ch == nil {
		return
	}
	// A storage adapter has no real socket to read from, so it re-enters
	// the dispatch loop the same way TCPAdapter's readLoop or
	// BridgeAdapter's paired send does: by calling the shared DispatchFunc.
	a.dispatch(ch.ID, msg)
}

func (a *Adapter) process(msg proto.Message) {
	switch msg.Kind {
	case proto.KindEstablishRequest:
		a.reply(proto.Message{Kind: proto.KindEstablishResponse, Identity: a.identity})
	case proto.KindEstablishResponse:
		// storage never initiates establish, nothing to do on the reply half
	case proto.KindDirectoryRequest:
		a.handleDirectoryRequest(msg)
	case proto.KindSyncRequest:
		a.handleSyncRequest(msg)
	case proto.KindSyncResponse, proto.KindUpdate:
		a.handleIncomingData(msg)
	case proto.KindNewDoc:
		a.handleNewDoc(msg)
	case proto.KindDeleteRequest:
		a.handleDeleteRequest(msg)
	case proto.KindBatch:
		for _, inner := range proto.Flatten(msg.Messages) {
			a.process(inner)
		}
	}
}

// handleDirectoryRequest lists every document that has at least one blob
// in the store, filtered to msg.RequestedDocIDs when present. A storage
// adapter has no independent notion of "known documents" beyond what's
// been written to it, so this is necessarily a best-effort view built from
// disk contents rather than an in-memory index; for a BlobStore other than
// FileBlobStore the list is empty.
func (a *Adapter) handleDirectoryRequest(msg proto.Message) {
	docIDs, err := a.knownDocIDs()
	if err != nil {
		if a.log != nil {
			a.log.Category("storageadapter").Sugar().Warnf("failed to enumerate documents: %v", err)
		}
		a.reply(proto.Message{Kind: proto.KindDirectoryResponse})
		return
	}
	if len(msg.RequestedDocIDs) > 0 {
		wanted := make(map[ids.DocID]struct{}, len(msg.RequestedDocIDs))
		for _, id := range msg.RequestedDocIDs {
			wanted[id] = struct{}{}
		}
		filtered := docIDs[:0]
		for _, id := range docIDs {
			if _, ok := wanted[id]; ok {
				filtered = append(filtered, id)
			}
		}
		docIDs = filtered
	}
	a.reply(proto.Message{Kind: proto.KindDirectoryResponse, DocIDs: docIDs})
}

func (a *Adapter) handleSyncRequest(msg proto.Message) {
	_, span := tracing.StartSpan(context.Background(), "storageadapter.load",
		attribute.String("doc.id", string(msg.DocID)),
	)
	defer span.End()

	chunks, err := a.store.LoadRange(docPrefix(string(msg.DocID)))
	if err != nil {
		if a.log != nil {
			a.log.Category("storageadapter").Sugar().Warnf("failed to load %s: %v", msg.DocID, err)
		}
		a.reply(proto.Message{Kind: proto.KindSyncResponse, DocID: msg.DocID, Transmission: proto.Transmission{Kind: proto.TransmissionUnavailable}})
		return
	}
	if len(chunks) == 0 {
		a.reply(proto.Message{Kind: proto.KindSyncResponse, DocID: msg.DocID, Transmission: proto.Transmission{Kind: proto.TransmissionUnavailable}})
		a.reply(proto.Message{Kind: proto.KindSyncRequest, DocID: msg.DocID, RequesterDocVersion: clock.NewVectorClock()})
		return
	}

	doc, err := a.engine.NewDocument(context.Background())
	if err != nil {
		if a.log != nil {
			a.log.Category("storageadapter").Sugar().Warnf("failed to build document for %s: %v", msg.DocID, err)
		}
		a.reply(proto.Message{Kind: proto.KindSyncResponse, DocID: msg.DocID, Transmission: proto.Transmission{Kind: proto.TransmissionUnavailable}})
		return
	}
	for _, c := range chunks {
		if err := doc.Import(c.Data); err != nil && a.log != nil {
			a.log.Category("storageadapter").Sugar().Warnf("failed to import chunk %s: %v", c.Key, err)
		}
	}

	requesterVersion := crdt.Version(msg.RequesterDocVersion)
	relation := doc.Compare(requesterVersion)

	var transmission proto.Transmission
	switch relation {
	case crdt.Equal, crdt.Less:
		transmission = proto.Transmission{Kind: proto.TransmissionUpToDate, Version: toWireVersion(doc.Version())}
	default:
		mode := crdt.ExportUpdate
		kind := proto.TransmissionUpdate
		if msg.RequesterDocVersion.IsZero() {
			mode = crdt.ExportSnapshot
			kind = proto.TransmissionSnapshot
		}
		data, err := doc.Export(mode, requesterVersion)
		if err != nil {
			transmission = proto.Transmission{Kind: proto.TransmissionUnavailable}
		} else {
			transmission = proto.Transmission{Kind: kind, Data: data, Version: toWireVersion(doc.Version())}
		}
	}
	a.reply(proto.Message{Kind: proto.KindSyncResponse, DocID: msg.DocID, Transmission: transmission})

	// Reciprocate so the requester's future local changes land here too —
	// a storage adapter always wants every update, so it always asks back.
	a.reply(proto.Message{Kind: proto.KindSyncRequest, DocID: msg.DocID, RequesterDocVersion: toWireVersion(doc.Version())})
}

func (a *Adapter) handleIncomingData(msg proto.Message) {
	t := msg.Transmission
	if t.Kind != proto.TransmissionSnapshot && t.Kind != proto.TransmissionUpdate {
		return
	}
	a.saves.Add(1)
	defer a.saves.Done()

	key := updateKey(string(msg.DocID), a.nextSeq())

	_, span := tracing.StartSpan(context.Background(), "storageadapter.save",
		attribute.String("doc.id", string(msg.DocID)),
		attribute.String("blob.key", key),
	)
	defer span.End()

	if err := a.store.Save(key, t.Data); err != nil && a.log != nil {
		a.log.Category("storageadapter").Sugar().Warnf("failed to save %s: %v", key, err)
	}
}

// handleNewDoc reacts the way spec §4.2's storage-adapter carve-out
// describes: pull a full snapshot of every newly announced document, even
// one never seen before, rather than waiting to be asked.
func (a *Adapter) handleNewDoc(msg proto.Message) {
	for _, docID := range msg.DocIDs {
		a.reply(proto.Message{Kind: proto.KindSyncRequest, DocID: docID, RequesterDocVersion: clock.NewVectorClock()})
	}
}

func (a *Adapter) handleDeleteRequest(msg proto.Message) {
	status := proto.DeleteStatusDeleted
	if err := a.store.RemoveRange(docPrefix(string(msg.DocID))); err != nil {
		status = proto.DeleteStatusIgnored
	}
	a.reply(proto.Message{Kind: proto.KindDeleteResponse, DocID: msg.DocID, DeleteStatus: status})
}

func (a *Adapter) nextSeq() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counter++
	return a.counter
}

// knownDocIDs recovers the set of document IDs this adapter has persisted
// by walking the snapshot/update key namespace; it's a best-effort
// directory listing, grounded in the store's own key convention rather
// than a separately maintained index.
func (a *Adapter) knownDocIDs() ([]ids.DocID, error) {
	fs, ok := a.store.(*FileBlobStore)
	if !ok {
		return nil, nil
	}
	chunks, err := fs.LoadRange("")
	if err != nil {
		return nil, err
	}
	seen := make(map[ids.DocID]struct{})
	var out []ids.DocID
	for _, c := range chunks {
		docID := ids.DocID(c.Key)
		if i := indexOfSlash(c.Key); i >= 0 {
			docID = ids.DocID(c.Key[:i])
		}
		if _, ok := seen[docID]; ok {
			continue
		}
		seen[docID] = struct{}{}
		out = append(out, docID)
	}
	return out, nil
}

func indexOfSlash(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// toWireVersion mirrors internal/syncer's helper of the same name: the
// storage adapter rebuilds documents from raw chunks independently of the
// executor, so it keeps its own copy of this small helper rather than
// importing the syncer package.
func toWireVersion(v crdt.Version) clock.VectorClock {
	if vc, ok := v.(clock.VectorClock); ok {
		return vc
	}
	return clock.NewVectorClock()
}
