// Package memdoc is a minimal in-memory CRDT document satisfying
// pkg/crdt.Document. It exists as test and example scaffolding for the
// synchronizer — the synchronizer itself never imports memdoc, only
// pkg/crdt's interfaces — and implements last-write-wins field merge with
// vector-clock tie-breaking, the same resolution rule a real CRDT engine's
// merge step would apply.
package memdoc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/syncmesh/syncmesh/internal/clock"
	"github.com/syncmesh/syncmesh/pkg/crdt"
)

// Engine is a crdt.Engine backed by Documents.
type Engine struct {
	peerID string
}

// NewEngine returns an Engine that stamps local commits with peerID.
func NewEngine(peerID string) *Engine {
	return &Engine{peerID: peerID}
}

func (e *Engine) NewDocument(ctx context.Context) (crdt.Document, error) {
	return &Document{
		peerID: e.peerID,
		fields: make(map[string]field),
		vector: clock.NewVectorClock(),
	}, nil
}

func (e *Engine) ParseVersion(data []byte) (crdt.Version, error) {
	var v clock.VectorClock
	if len(data) == 0 {
		return clock.NewVectorClock(), nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

type field struct {
	Value     interface{}     `json:"value"`
	Vector    clock.VectorClock `json:"vector"`
	Timestamp int64           `json:"timestamp"`
	Writer    string          `json:"writer"`
}

// wireUpdate is the payload carried by Export/Import: a set of field
// mutations plus the vector the writer had at commit time.
type wireUpdate struct {
	Fields map[string]field  `json:"fields"`
	Vector clock.VectorClock `json:"vector"`
}

// Document is a last-write-wins map CRDT keyed by top-level field name.
type Document struct {
	mu     sync.Mutex
	peerID string
	fields map[string]field
	vector clock.VectorClock
	subs   []func(crdt.Change)
}

// Set assigns a field locally, bumps the document's vector for this peer,
// and notifies subscribers with the resulting delta — the equivalent of a
// local commit in a real CRDT engine.
func (d *Document) Set(name string, value interface{}) {
	d.mu.Lock()
	d.vector = clock.Increment(d.vector, d.peerID)
	f := field{Value: value, Vector: clock.Clone(d.vector), Timestamp: time.Now().UnixMilli(), Writer: d.peerID}
	d.fields[name] = f
	update := wireUpdate{Fields: map[string]field{name: f}, Vector: clock.Clone(d.vector)}
	subs := append([]func(crdt.Change){}, d.subs...)
	vers := clock.Clone(d.vector)
	d.mu.Unlock()

	data, _ := json.Marshal(update)
	for _, fn := range subs {
		if fn != nil {
			fn(crdt.Change{Update: data, Version: vers})
		}
	}
}

func (d *Document) Import(data []byte) error {
	var u wireUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, incoming := range u.Fields {
		existing, ok := d.fields[name]
		if !ok {
			d.fields[name] = incoming
			continue
		}
		d.fields[name] = resolveField(existing, incoming)
	}
	d.vector = clock.Merge(d.vector, u.Vector)
	return nil
}

// resolveField applies LWW with a vector-clock-then-timestamp-then-writer-id
// tie break, mirroring how a real engine's merge step disambiguates
// concurrent writes to the same field.
func resolveField(local, remote field) field {
	switch clock.Compare(local.Vector, remote.Vector) {
	case clock.After:
		return local
	case clock.Before:
		return remote
	case clock.Equal:
		return local
	default: // Concurrent
		if local.Timestamp != remote.Timestamp {
			if local.Timestamp > remote.Timestamp {
				return local
			}
			return remote
		}
		if local.Writer >= remote.Writer {
			return local
		}
		return remote
	}
}

func (d *Document) Export(mode crdt.ExportMode, from crdt.Version) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fromVec, _ := from.(clock.VectorClock)
	out := make(map[string]field, len(d.fields))
	for name, f := range d.fields {
		if mode == crdt.ExportSnapshot {
			out[name] = f
			continue
		}
		// ExportUpdate: only include fields the recipient's vector doesn't
		// already dominate.
		perWriter := clock.VectorClock{f.Writer: f.Vector[f.Writer]}
		recipientPerWriter := clock.VectorClock{f.Writer: fromVec[f.Writer]}
		if clock.Compare(perWriter, recipientPerWriter) == clock.After || clock.Compare(perWriter, recipientPerWriter) == clock.Concurrent {
			out[name] = f
		}
	}
	return json.Marshal(wireUpdate{Fields: out, Vector: clock.Clone(d.vector)})
}

func (d *Document) Version() crdt.Version {
	d.mu.Lock()
	defer d.mu.Unlock()
	return clock.Clone(d.vector)
}

func (d *Document) Compare(other crdt.Version) crdt.Relation {
	d.mu.Lock()
	defer d.mu.Unlock()
	otherVec, _ := other.(clock.VectorClock)
	switch clock.Compare(d.vector, otherVec) {
	case clock.Equal:
		return crdt.Equal
	case clock.Before:
		return crdt.Less
	case clock.After:
		return crdt.Greater
	default:
		return crdt.Concurrent
	}
}

func (d *Document) Subscribe(fn func(crdt.Change)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, fn)
	idx := len(d.subs) - 1
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if idx < len(d.subs) {
			d.subs[idx] = nil
		}
	}
}

func (d *Document) Snapshot() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]interface{}, len(d.fields))
	for name, f := range d.fields {
		out[name] = f.Value
	}
	return out
}
