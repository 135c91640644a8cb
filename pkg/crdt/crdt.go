// Package crdt declares the contract the synchronizer consumes from the
// underlying CRDT document engine. The engine itself — operation ordering,
// merge, compaction — is opaque and lives outside this module; packages in
// internal/ depend only on these interfaces, never on a concrete engine.
package crdt

import "context"

// Relation is the result of comparing two version vectors.
type Relation int

const (
	Equal Relation = iota
	Less
	Greater
	Concurrent
)

// Version is an opaque, comparable snapshot of "how much history a peer has
// seen". Engines are free to encode it however they like; the synchronizer
// only ever compares, stores, and round-trips it through Export/Import.
type Version interface {
	// IsZero reports whether this version represents an empty/fresh document,
	// used to decide between a full snapshot export and an incremental one.
	IsZero() bool
}

// ExportMode selects what Export produces.
type ExportMode int

const (
	ExportSnapshot ExportMode = iota
	ExportUpdate
)

// Change is a single committed update, as delivered to subscribers.
type Change struct {
	Update  []byte
	Version Version
}

// Document is one CRDT-backed document instance.
type Document interface {
	// Import merges snapshot or update bytes into the document.
	Import(data []byte) error
	// Export serializes the document. For ExportUpdate, from is the version
	// the recipient already has; the result is the delta since that version.
	Export(mode ExportMode, from Version) ([]byte, error)
	// Version returns the current version vector.
	Version() Version
	// Compare reports the relation of this document's version to other.
	Compare(other Version) Relation
	// Subscribe registers fn to be called after every local commit, with the
	// exported update bytes and resulting version. Returns an unsubscribe func.
	Subscribe(fn func(Change)) (unsubscribe func())
	// Snapshot returns an application-facing view of document contents.
	Snapshot() map[string]interface{}
}

// Engine creates empty documents and parses serialized versions — the two
// operations that don't belong to any one Document instance.
type Engine interface {
	NewDocument(ctx context.Context) (Document, error)
	ParseVersion(data []byte) (Version, error)
}

// MutableDocument is the minimal escape hatch Handle.Change (spec §4.9)
// needs to apply a local mutation. The typed, schema-driven accessor layer
// that would normally sit in front of this is out of scope per spec §1
// (it's the "Schema/typing front-end" external collaborator); engines that
// want to support Handle.Change implement this in addition to Document.
// A tagged-variant engine (Text|Counter|List|Map|...) would offer richer,
// per-container setters instead of this single untyped Set.
type MutableDocument interface {
	Document
	// Set assigns a top-level field and commits, notifying subscribers
	// with the resulting delta.
	Set(field string, value interface{})
}
