// Package middleware implements the async inbound gate (spec §4.5) and the
// synchronous Permissions consulted inside the pure update core (spec
// §4.6). The two are deliberately separate types: Pipeline runs before a
// message ever reaches the core and may be slow/async; Permissions are
// pure predicates the core calls inline.
package middleware

import (
	"context"
	"fmt"

	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/proto"
)

// Context is what a Check receives: everything the spec's §4.5 "context
// object" can carry. Requires declares which of these fields a middleware
// actually needs so the pipeline can skip it when they're unavailable
// (e.g. a transmission-requiring check skipped for directory-request).
type Context struct {
	ChannelID   ids.ChannelID
	PeerID      ids.PeerID
	PeerName    string
	AdapterType ids.AdapterType
	DocID       ids.DocID
	Message     proto.Message
	Metadata    map[string]string
}

// Requirement names a piece of context a Check depends on.
type Requirement string

const (
	RequiresPeer         Requirement = "peer"
	RequiresDocument     Requirement = "document"
	RequiresTransmission Requirement = "transmission"
)

// Check is one middleware's access decision. A non-empty reason on deny is
// surfaced to logs, never to the remote peer.
type Check func(ctx context.Context, mc Context) (allow bool, reason string)

// Middleware is one named, ordered entry in the Pipeline.
type Middleware struct {
	Name     string
	Requires []Requirement
	Check    Check
}

// Pipeline runs an ordered list of Middleware against every inbound
// message before it reaches the update core. It is fail-closed: a Check
// that panics or whose required context is present but returns an error
// condition denies the message rather than letting it through.
type Pipeline struct {
	stages []Middleware
}

func NewPipeline(stages ...Middleware) *Pipeline {
	return &Pipeline{stages: stages}
}

// available reports whether mc satisfies every requirement a stage
// declares; an unmet requirement causes the stage to be skipped entirely
// (spec §4.5), not denied.
func available(reqs []Requirement, mc Context) bool {
	for _, r := range reqs {
		switch r {
		case RequiresPeer:
			if mc.PeerID == "" {
				return false
			}
		case RequiresDocument:
			if mc.DocID == "" {
				return false
			}
		case RequiresTransmission:
			if mc.Message.Kind != proto.KindSyncResponse && mc.Message.Kind != proto.KindUpdate {
				return false
			}
		}
	}
	return true
}

// Evaluate runs every stage against mc in order, short-circuiting on the
// first deny. Returns allow=true only if every applicable stage allowed.
func (p *Pipeline) Evaluate(ctx context.Context, mc Context) (allow bool, reason string) {
	for _, stage := range p.stages {
		if !available(stage.Requires, mc) {
			continue
		}
		if ok, r := p.runStage(ctx, stage, mc); !ok {
			return false, fmt.Sprintf("%s: %s", stage.Name, r)
		}
	}
	return true, ""
}

// runStage isolates a panicking Check so one broken middleware fails
// closed (denies) instead of crashing the dispatch loop.
func (p *Pipeline) runStage(ctx context.Context, stage Middleware, mc Context) (allow bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			allow = false
			reason = fmt.Sprintf("panic: %v", r)
		}
	}()
	return stage.Check(ctx, mc)
}

// FilterBatch applies Evaluate to each inner message of a batch (or to a
// single non-batch message) and re-assembles the survivors per spec §4.5:
// denied inner messages are dropped, the remainder becomes a single
// message if one survives, a batch if several, or is entirely absent if
// none survive.
func (p *Pipeline) FilterBatch(ctx context.Context, mc Context) (proto.Message, bool) {
	inner := []proto.Message{mc.Message}
	if mc.Message.Kind == proto.KindBatch {
		inner = proto.Flatten(mc.Message.Messages)
	}

	survivors := make([]proto.Message, 0, len(inner))
	for _, msg := range inner {
		innerCtx := mc
		innerCtx.Message = msg
		if allow, _ := p.Evaluate(ctx, innerCtx); allow {
			survivors = append(survivors, msg)
		}
	}

	if len(survivors) == 0 {
		return proto.Message{}, false
	}
	return proto.Wrap(survivors), true
}
