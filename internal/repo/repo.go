// Package repo is the synchronizer's public entry point (spec §4.9): it
// wires a channel Directory, the pure update core's Executor, the
// middleware pipeline, and any number of Adapters into one long-lived
// Repo, and hands out per-document Handles. Grounded on the teacher's
// pkg/knirvbase top-level Client type, which plays the identical role of
// "the one object an application constructs and holds for the process
// lifetime" in front of the teacher's collection/network/storage
// machinery.
package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/syncmesh/syncmesh/internal/channel"
	"github.com/syncmesh/syncmesh/internal/config"
	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/logging"
	"github.com/syncmesh/syncmesh/internal/middleware"
	"github.com/syncmesh/syncmesh/internal/monitoring"
	"github.com/syncmesh/syncmesh/internal/proto"
	"github.com/syncmesh/syncmesh/internal/syncer"
	"github.com/syncmesh/syncmesh/internal/tracing"
	"github.com/syncmesh/syncmesh/pkg/crdt"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
)

// Options configures a Repo. Permissions and Pipeline are constructed by
// the caller (e.g. from internal/auth or internal/security/pqc
// middlewares) rather than built here, so this package stays agnostic of
// which optional domain middlewares a deployment wants — see DESIGN.md.
type Options struct {
	Self              proto.Identity
	Permissions       *middleware.Permissions
	Pipeline          *middleware.Pipeline
	HeartbeatInterval time.Duration
	Metrics           *monitoring.Metrics
	Log               *logging.Logger
}

// OptionsFromConfig builds repo.Options from a loaded config.Options,
// translating the YAML permission-policy booleans into the Permissions
// hooks the update core consults (spec §6's configuration table).
func OptionsFromConfig(cfg config.Options, log *logging.Logger) Options {
	kind := proto.PeerKindService
	if cfg.Identity.Kind == "user" {
		kind = proto.PeerKindUser
	}
	perms := &middleware.Permissions{
		MayListFn:          func(middleware.PolicyContext) bool { return cfg.Permissions.MayListNetwork },
		MayRevealFn:        func(middleware.PolicyContext) bool { return cfg.Permissions.MayRevealNetwork },
		MayReceiveUpdateFn: func(middleware.PolicyContext) bool { return cfg.Permissions.MayReceiveUpdateNetwork },
	}
	return Options{
		Self:              proto.Identity{PeerID: ids.NewPeerID(), Name: cfg.Identity.Name, Kind: kind},
		Permissions:       perms,
		HeartbeatInterval: time.Duration(cfg.HeartbeatIntervalMs) * time.Millisecond,
		Log:               log,
	}
}

// Repo is one synchronizer instance: one identity, one set of adapters,
// any number of synchronized documents. Safe for concurrent use; every
// exported method may be called from any goroutine.
type Repo struct {
	opts   Options
	dir    *channel.Directory
	exec   *syncer.Executor
	engine crdt.Engine
	log    *logging.Logger

	mu       sync.Mutex
	adapters []channel.Adapter
	handles  map[ids.DocID]*Handle
	ephSubs  map[ids.DocID][]func(ids.PeerID, map[string]interface{})

	heartbeatStop chan struct{}
}

// New constructs a Repo around engine, the CRDT document engine documents
// are created through. It starts no adapters — call AddAdapter for each
// transport. If opts.HeartbeatInterval is positive, the heartbeat loop is
// started here.
func New(engine crdt.Engine, opts Options) *Repo {
	if opts.Self.PeerID == "" {
		opts.Self.PeerID = ids.NewPeerID()
	}
	log := opts.Log
	dir := channel.NewDirectory(log)
	model := syncer.NewModel(opts.Self, opts.Permissions)
	exec := syncer.NewExecutor(model, dir, engine, log)

	r := &Repo{
		opts:    opts,
		dir:     dir,
		exec:    exec,
		engine:  engine,
		log:     log,
		handles: make(map[ids.DocID]*Handle),
		ephSubs: make(map[ids.DocID][]func(ids.PeerID, map[string]interface{})),
	}
	exec.OnReadyState = r.onReadyState
	exec.OnEphemeralChange = r.onEphemeralChange

	if opts.HeartbeatInterval > 0 {
		r.startHeartbeat(opts.HeartbeatInterval)
	}
	return r
}

// Directory returns the channel Directory this Repo's executor routes
// through. Adapters that need to register channels directly (rather than
// channel.Pair, which does it for you) use this to call dir.NewChannel.
func (r *Repo) Directory() *channel.Directory {
	return r.dir
}

// AddAdapter starts adapter and retains it for Shutdown. Callers construct
// the adapter with this Repo's Dispatch as its DispatchFunc, and should set
// the adapter's OnChannelAdded hook to this Repo's OnChannelAdded before
// calling AddAdapter, so every channel the adapter creates — dialed,
// accepted, or paired — is announced to the update core.
func (r *Repo) AddAdapter(ctx context.Context, adapter channel.Adapter) error {
	if err := adapter.Start(ctx); err != nil {
		return fmt.Errorf("repo: failed to start adapter: %w", err)
	}
	r.mu.Lock()
	r.adapters = append(r.adapters, adapter)
	r.mu.Unlock()
	return nil
}

// Dispatch is this Repo's channel.DispatchFunc: every adapter calls it
// with every message it receives. It runs the middleware pipeline (if
// configured) before handing the message to the update core, and follows
// an establish message with a directory-request so the repo always learns
// what the far end holds right after the handshake completes (spec §4.2
// step 1).
func (r *Repo) Dispatch(chID ids.ChannelID, msg proto.Message) {
	_, span := tracing.StartSpan(context.Background(), "repo.dispatch",
		attribute.String("message.kind", string(msg.Kind)),
		attribute.Int64("channel.id", int64(chID)),
	)
	defer span.End()

	ch, ok := r.dir.Get(chID)
	if !ok {
		return
	}

	if r.opts.Pipeline != nil {
		// The channel's established peer lives in the update core's Model,
		// not on channel.Channel itself (spec §4.1's handshake records peer
		// identity in syncer.ChannelState) — read it from there so
		// middleware sees the authoritative value rather than always "".
		var peerID ids.PeerID
		if cs, ok := r.exec.Model().Channels[chID]; ok {
			peerID = cs.PeerID
		}
		mc := middleware.Context{
			ChannelID:   chID,
			PeerID:      peerID,
			AdapterType: ch.AdapterType,
			Message:     msg,
		}
		filtered, ok := r.opts.Pipeline.FilterBatch(context.Background(), mc)
		if !ok {
			if r.opts.Metrics != nil {
				r.opts.Metrics.MiddlewareDenials.Inc()
			}
			return
		}
		msg = filtered
	}

	r.exec.Dispatch(syncer.Message{Kind: syncer.MsgChannelReceive, ChannelID: chID, Proto: msg})

	if msg.Kind == proto.KindEstablishRequest || msg.Kind == proto.KindEstablishResponse {
		r.exec.Dispatch(syncer.Message{Kind: syncer.MsgRequestDirectory, ChannelID: chID})
	}
}

// OnChannelAdded is the hook TCPAdapter/BridgeAdapter/storageadapter.Adapter
// all expose; wire it to whichever adapter instance you pass to AddAdapter
// so the update core learns about every channel, including ones accepted
// asynchronously that AddAdapter's caller never directly observes.
func (r *Repo) OnChannelAdded(ch *channel.Channel) {
	r.exec.Dispatch(syncer.Message{
		Kind:        syncer.MsgChannelAdded,
		ChannelID:   ch.ID,
		ChannelKind: ch.Kind,
		AdapterType: ch.AdapterType,
	})
	if r.opts.Metrics != nil {
		r.opts.Metrics.ActiveChannels.Inc()
	}
}

// RemoveChannel tears a channel down: stops the adapter-level connection
// and tells the update core the channel is gone.
func (r *Repo) RemoveChannel(adapter channel.Adapter, chID ids.ChannelID) error {
	if err := adapter.RemoveChannel(chID); err != nil {
		return err
	}
	r.exec.Dispatch(syncer.Message{Kind: syncer.MsgChannelRemoved, ChannelID: chID})
	if r.opts.Metrics != nil {
		r.opts.Metrics.ActiveChannels.Dec()
		r.opts.Metrics.ChannelsRemoved.Inc()
	}
	return nil
}

// Get returns the Handle for docID, ensuring a local document exists —
// creating an empty one if this is the first time this Repo has heard of
// docID (spec §4.9's "ensure"/"holds the document" semantics that drive
// directory/sync responses in internal/syncer/update_directory.go).
func (r *Repo) Get(docID ids.DocID) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[docID]; ok {
		return h
	}

	r.exec.Dispatch(syncer.Message{Kind: syncer.MsgDocEnsure, DocID: docID})

	h := &Handle{repo: r, docID: docID}
	r.handles[docID] = h
	return h
}

// Delete removes docID from the local model and sends a delete-request on
// every channel of each peer subscribed to docID, per spec §4.2's delete
// propagation.
func (r *Repo) Delete(docID ids.DocID) {
	r.exec.Dispatch(syncer.Message{Kind: syncer.MsgDocDelete, DocID: docID})
}

// Self returns this Repo's advertised identity.
func (r *Repo) Self() proto.Identity {
	return r.opts.Self
}

func (r *Repo) onReadyState(states []syncer.ReadyState) {
	// ReadyStates are pulled on demand via Handle.ReadyStates rather than
	// pushed to subscribers; the callback's only job today is to exist so
	// the executor always has somewhere to report the command to. A
	// future event-subscription API on Handle would fan states out from
	// here instead of requiring callers to poll.
}

func (r *Repo) onEphemeralChange(docID ids.DocID, peerID ids.PeerID, value map[string]interface{}) {
	r.mu.Lock()
	subs := append([]func(ids.PeerID, map[string]interface{}){}, r.ephSubs[docID]...)
	r.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(peerID, value)
		}
	}
}

func (r *Repo) startHeartbeat(interval time.Duration) {
	r.heartbeatStop = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-r.heartbeatStop:
				return
			case <-ticker.C:
				r.exec.Dispatch(syncer.Message{Kind: syncer.MsgHeartbeat})
			}
		}
	}()
}

// Shutdown stops the heartbeat ticker, every registered adapter, and the
// executor's timers, in that order. The Repo is not usable afterward; for
// a Repo that keeps running with a clean slate, use Reset.
func (r *Repo) Shutdown(ctx context.Context) error {
	if r.heartbeatStop != nil {
		close(r.heartbeatStop)
		r.heartbeatStop = nil
	}

	r.mu.Lock()
	adapters := append([]channel.Adapter{}, r.adapters...)
	r.mu.Unlock()

	var err error
	for _, a := range adapters {
		err = multierr.Append(err, a.Stop(ctx))
	}
	r.exec.Shutdown()
	return err
}

// Reset cancels all timers, disconnects every adapter, and returns the
// Repo to an initial model with no channels, peers, or documents (spec
// §4.9/§5). Adapter stop errors are aggregated with multierr rather than
// stopping at the first failure, since every adapter must get a chance to
// release its resources regardless of whether an earlier one failed.
// The Repo itself remains usable: callers add adapters again via
// AddAdapter and resume with a fresh identity-scoped model.
func (r *Repo) Reset(ctx context.Context) error {
	if r.heartbeatStop != nil {
		close(r.heartbeatStop)
		r.heartbeatStop = nil
	}

	r.mu.Lock()
	adapters := r.adapters
	r.adapters = nil
	r.handles = make(map[ids.DocID]*Handle)
	r.ephSubs = make(map[ids.DocID][]func(ids.PeerID, map[string]interface{}))
	r.mu.Unlock()

	var err error
	for _, a := range adapters {
		err = multierr.Append(err, a.Stop(ctx))
	}
	r.exec.Shutdown()
	r.dir.Clear()

	model := syncer.NewModel(r.opts.Self, r.opts.Permissions)
	r.exec = syncer.NewExecutor(model, r.dir, r.engine, r.log)
	r.exec.OnReadyState = r.onReadyState
	r.exec.OnEphemeralChange = r.onEphemeralChange

	if r.opts.HeartbeatInterval > 0 {
		r.startHeartbeat(r.opts.HeartbeatInterval)
	}
	return err
}

// Bridge connects two Repos in-process with no real transport, for tests
// and single-process demos: it constructs one BridgeAdapter per side,
// wires each one's OnChannelAdded back to its owning Repo, registers both
// with AddAdapter, and pairs them.
func Bridge(ctx context.Context, a, b *Repo, kindA, kindB channel.Kind) error {
	adapterA := channel.NewBridgeAdapter(a.dir, kindA, a.Dispatch)
	adapterB := channel.NewBridgeAdapter(b.dir, kindB, b.Dispatch)
	adapterA.OnChannelAdded = a.OnChannelAdded
	adapterB.OnChannelAdded = b.OnChannelAdded

	if err := a.AddAdapter(ctx, adapterA); err != nil {
		return err
	}
	if err := b.AddAdapter(ctx, adapterB); err != nil {
		return err
	}

	channel.Pair(adapterA, adapterB)
	return nil
}
