package middleware

import (
	"testing"

	"github.com/syncmesh/syncmesh/internal/channel"
)

func TestAllowAllPermitsEverything(t *testing.T) {
	p := AllowAll()
	pc := PolicyContext{ChannelKind: channel.KindNetwork}
	if !p.MayList(pc) || !p.MayReveal(pc) || !p.MayReceiveUpdate(pc) {
		t.Fatal("expected AllowAll to permit every operation")
	}
}

func TestDenyNetworkStillAllowsStorage(t *testing.T) {
	p := DenyNetwork()
	network := PolicyContext{ChannelKind: channel.KindNetwork}
	storage := PolicyContext{ChannelKind: channel.KindStorage}

	if p.MayList(network) || p.MayReveal(network) || p.MayReceiveUpdate(network) {
		t.Fatal("expected DenyNetwork to deny every network operation")
	}
	if !p.MayList(storage) || !p.MayReveal(storage) || !p.MayReceiveUpdate(storage) {
		t.Fatal("expected DenyNetwork to still allow storage operations")
	}
}

func TestNilPermissionsDefaultsToAllow(t *testing.T) {
	var p *Permissions
	pc := PolicyContext{ChannelKind: channel.KindNetwork}
	if !p.MayList(pc) || !p.MayReveal(pc) || !p.MayReceiveUpdate(pc) {
		t.Fatal("expected a nil Permissions to default-allow")
	}
}

func TestStorageChannelsAlwaysAllowedRegardlessOfHooks(t *testing.T) {
	deny := &Permissions{
		MayListFn:          func(PolicyContext) bool { return false },
		MayRevealFn:        func(PolicyContext) bool { return false },
		MayReceiveUpdateFn: func(PolicyContext) bool { return false },
	}
	pc := PolicyContext{ChannelKind: channel.KindStorage}
	if !deny.MayList(pc) || !deny.MayReveal(pc) || !deny.MayReceiveUpdate(pc) {
		t.Fatal("expected storage channels to default-allow even when hooks deny everything")
	}
}
