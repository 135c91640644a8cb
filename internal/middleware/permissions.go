package middleware

import (
	"github.com/syncmesh/syncmesh/internal/channel"
	"github.com/syncmesh/syncmesh/internal/ids"
)

// PolicyContext is the minimal context a Permissions hook needs, per
// spec §4.6: channel kind, adapter type, peer identity, and the document
// in question.
type PolicyContext struct {
	ChannelKind channel.Kind
	AdapterType ids.AdapterType
	PeerID      ids.PeerID
	PeerName    string
	DocID       ids.DocID
}

// Permissions is the three synchronous predicates the pure update core
// consults directly — never async, never I/O-bound. Unset hooks default
// to AllowAll's policy for network channels; storage channels always
// default-allow regardless of the configured hooks (Testable Property 7),
// enforced in the accessor methods below rather than left to caller
// discipline.
type Permissions struct {
	MayListFn          func(PolicyContext) bool
	MayRevealFn        func(PolicyContext) bool
	MayReceiveUpdateFn func(PolicyContext) bool
}

// AllowAll permits every operation for every channel — the default a Repo
// uses when no Permissions are configured.
func AllowAll() *Permissions {
	allow := func(PolicyContext) bool { return true }
	return &Permissions{MayListFn: allow, MayRevealFn: allow, MayReceiveUpdateFn: allow}
}

// DenyNetwork permits storage channels and denies every network channel —
// useful for tests exercising spec §8 Scenario 2's permission gate.
func DenyNetwork() *Permissions {
	return &Permissions{
		MayListFn:          func(pc PolicyContext) bool { return pc.ChannelKind == channel.KindStorage },
		MayRevealFn:        func(pc PolicyContext) bool { return pc.ChannelKind == channel.KindStorage },
		MayReceiveUpdateFn: func(pc PolicyContext) bool { return pc.ChannelKind == channel.KindStorage },
	}
}

// MayList controls directory responses (spec §4.2 step 2).
func (p *Permissions) MayList(pc PolicyContext) bool {
	if pc.ChannelKind == channel.KindStorage {
		return true
	}
	if p == nil || p.MayListFn == nil {
		return true
	}
	return p.MayListFn(pc)
}

// MayReveal controls unsolicited new-doc announcements (spec §4.2).
func (p *Permissions) MayReveal(pc PolicyContext) bool {
	if pc.ChannelKind == channel.KindStorage {
		return true
	}
	if p == nil || p.MayRevealFn == nil {
		return true
	}
	return p.MayRevealFn(pc)
}

// MayReceiveUpdate controls whether a local change is forwarded to this
// channel (spec §4.6) — storage must always be allowed to persist updates
// even when a network peer watching the same document is denied.
func (p *Permissions) MayReceiveUpdate(pc PolicyContext) bool {
	if pc.ChannelKind == channel.KindStorage {
		return true
	}
	if p == nil || p.MayReceiveUpdateFn == nil {
		return true
	}
	return p.MayReceiveUpdateFn(pc)
}
