package channel

import (
	"testing"

	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/proto"
)

func TestChannelLifecycle(t *testing.T) {
	var sent []proto.Message
	ch := New(1, KindNetwork, "test", func(msg proto.Message) error {
		sent = append(sent, msg)
		return nil
	}, func() {})

	if ch.State() != StateConnected {
		t.Fatalf("expected new channel to be Connected, got %s", ch.State())
	}
	if ch.IsEstablished() {
		t.Fatal("expected new channel not to be established")
	}

	if err := ch.Establish(ids.PeerID("peer-a")); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	if !ch.IsEstablished() {
		t.Fatal("expected channel to be established")
	}
	if ch.PeerID() != "peer-a" {
		t.Errorf("expected peerID 'peer-a', got %s", ch.PeerID())
	}

	// Duplicate establish from the same peer is a no-op.
	if err := ch.Establish(ids.PeerID("peer-a")); err != nil {
		t.Errorf("expected duplicate establish to be idempotent, got error: %v", err)
	}

	// Establish with a different peer on an already-established channel errors.
	if err := ch.Establish(ids.PeerID("peer-b")); err == nil {
		t.Error("expected establish with a different peer to error")
	}

	if err := ch.Send(proto.Message{Kind: proto.KindDirectoryRequest}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(sent))
	}

	ch.Remove()
	if ch.State() != StateRemoved {
		t.Fatalf("expected channel to be Removed, got %s", ch.State())
	}
	if err := ch.Send(proto.Message{}); err == nil {
		t.Error("expected Send on a removed channel to error")
	}

	// Remove is idempotent.
	ch.Remove()
}

func TestChannelDeliver(t *testing.T) {
	ch := New(1, KindNetwork, "test", func(proto.Message) error { return nil }, func() {})

	var received proto.Message
	ch.SetOnReceive(func(msg proto.Message) { received = msg })

	ch.Deliver(proto.Message{Kind: proto.KindEstablishRequest})
	if received.Kind != proto.KindEstablishRequest {
		t.Errorf("expected delivered message to reach OnReceive, got %+v", received)
	}
}

func TestDirectoryRouting(t *testing.T) {
	dir := NewDirectory(nil)

	var sentTo1, sentTo2 []proto.Message
	ch1 := dir.NewChannel(KindNetwork, "test", func(msg proto.Message) error {
		sentTo1 = append(sentTo1, msg)
		return nil
	}, func() {})
	ch2 := dir.NewChannel(KindNetwork, "test", func(msg proto.Message) error {
		sentTo2 = append(sentTo2, msg)
		return nil
	}, func() {})

	if ch1.ID == ch2.ID {
		t.Fatal("expected distinct channel IDs")
	}

	err := dir.Route(proto.Envelope{
		ToChannelIDs: []ids.ChannelID{ch1.ID, ch2.ID},
		Message:      proto.Message{Kind: proto.KindDirectoryRequest},
	})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if len(sentTo1) != 1 || len(sentTo2) != 1 {
		t.Errorf("expected both channels to receive one message, got %d and %d", len(sentTo1), len(sentTo2))
	}

	// Routing to an unknown channel is silently dropped, not an error.
	if err := dir.Route(proto.Envelope{ToChannelIDs: []ids.ChannelID{9999}}); err != nil {
		t.Errorf("expected routing to an unknown channel to be silently dropped, got %v", err)
	}

	dir.Remove(ch1.ID)
	if _, ok := dir.Get(ch1.ID); ok {
		t.Error("expected channel to be gone from the directory after Remove")
	}
}
