package middleware

import (
	"context"
	"testing"

	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/proto"
)

func allowStage(name string) Middleware {
	return Middleware{Name: name, Check: func(context.Context, Context) (bool, string) { return true, "" }}
}

func denyStage(name, reason string) Middleware {
	return Middleware{Name: name, Check: func(context.Context, Context) (bool, string) { return false, reason }}
}

func TestPipelineAllowsWhenEveryStageAllows(t *testing.T) {
	p := NewPipeline(allowStage("a"), allowStage("b"))
	allow, reason := p.Evaluate(context.Background(), Context{})
	if !allow || reason != "" {
		t.Fatalf("expected allow, got allow=%v reason=%q", allow, reason)
	}
}

func TestPipelineShortCircuitsOnFirstDeny(t *testing.T) {
	var ranB bool
	first := denyStage("first", "nope")
	second := Middleware{Name: "second", Check: func(context.Context, Context) (bool, string) {
		ranB = true
		return true, ""
	}}
	p := NewPipeline(first, second)
	allow, reason := p.Evaluate(context.Background(), Context{})
	if allow {
		t.Fatal("expected deny")
	}
	if reason != "first: nope" {
		t.Errorf("expected reason 'first: nope', got %q", reason)
	}
	if ranB {
		t.Error("expected pipeline to short-circuit before running the second stage")
	}
}

func TestPipelineSkipsStageWhenRequiredContextMissing(t *testing.T) {
	var ran bool
	stage := Middleware{
		Name:     "needs-peer",
		Requires: []Requirement{RequiresPeer},
		Check: func(context.Context, Context) (bool, string) {
			ran = true
			return false, "should never run"
		},
	}
	p := NewPipeline(stage)
	allow, _ := p.Evaluate(context.Background(), Context{})
	if !allow {
		t.Fatal("expected allow since the stage was skipped, not denied")
	}
	if ran {
		t.Error("expected the stage to be skipped entirely")
	}
}

func TestPipelineFailsClosedOnPanic(t *testing.T) {
	stage := Middleware{Name: "panics", Check: func(context.Context, Context) (bool, string) {
		panic("boom")
	}}
	p := NewPipeline(stage)
	allow, reason := p.Evaluate(context.Background(), Context{})
	if allow {
		t.Fatal("expected a panicking check to deny")
	}
	if reason == "" {
		t.Error("expected a non-empty reason describing the panic")
	}
}

func TestFilterBatchDropsDeniedInnerMessages(t *testing.T) {
	allowedPeer := ids.PeerID("allowed")
	deniedPeer := ids.PeerID("denied")
	stage := Middleware{
		Name:     "peer-allowlist",
		Requires: []Requirement{RequiresPeer},
		Check: func(_ context.Context, mc Context) (bool, string) {
			if mc.PeerID == deniedPeer {
				return false, "denied peer"
			}
			return true, ""
		},
	}
	p := NewPipeline(stage)

	batch := proto.Message{Kind: proto.KindBatch, Messages: []proto.Message{
		{Kind: proto.KindUpdate},
		{Kind: proto.KindUpdate},
	}}

	out, ok := p.FilterBatch(context.Background(), Context{PeerID: allowedPeer, Message: batch})
	if !ok {
		t.Fatal("expected survivors")
	}
	if out.Kind != proto.KindBatch || len(out.Messages) != 2 {
		t.Fatalf("expected both messages to survive as a batch, got %+v", out)
	}

	out, ok = p.FilterBatch(context.Background(), Context{PeerID: deniedPeer, Message: batch})
	if ok {
		t.Fatalf("expected no survivors, got %+v", out)
	}
}

func TestFilterBatchCollapsesSingleSurvivorOutOfBatch(t *testing.T) {
	p := NewPipeline()
	batch := proto.Message{Kind: proto.KindBatch, Messages: []proto.Message{{Kind: proto.KindUpdate}}}
	out, ok := p.FilterBatch(context.Background(), Context{Message: batch})
	if !ok {
		t.Fatal("expected a survivor")
	}
	if out.Kind != proto.KindUpdate {
		t.Errorf("expected a bare update message, got kind %q", out.Kind)
	}
}
