package middleware

import (
	"context"
	"testing"

	"github.com/syncmesh/syncmesh/internal/auth"
)

func TestBearerTokenMiddlewareAllowsNoToken(t *testing.T) {
	tm := auth.NewTokenManager("secret")
	stage := BearerTokenMiddleware(tm)
	allow, _ := stage.Check(context.Background(), Context{PeerID: "peer-1"})
	if !allow {
		t.Fatal("expected a request with no token metadata to be allowed")
	}
}

func TestBearerTokenMiddlewareAllowsValidToken(t *testing.T) {
	tm := auth.NewTokenManager("secret")
	token, err := tm.GenerateToken("user-1", "peer-1", []auth.Permission{auth.PermissionReadWrite})
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	stage := BearerTokenMiddleware(tm)
	allow, reason := stage.Check(context.Background(), Context{
		PeerID:   "peer-1",
		Metadata: map[string]string{auth.TokenMetadataKey: token},
	})
	if !allow {
		t.Fatalf("expected a valid token to be allowed, got reason %q", reason)
	}
}

func TestBearerTokenMiddlewareDeniesWrongPeer(t *testing.T) {
	tm := auth.NewTokenManager("secret")
	token, err := tm.GenerateToken("user-1", "peer-1", nil)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	stage := BearerTokenMiddleware(tm)
	allow, _ := stage.Check(context.Background(), Context{
		PeerID:   "peer-2",
		Metadata: map[string]string{auth.TokenMetadataKey: token},
	})
	if allow {
		t.Fatal("expected a token issued to a different peer to be denied")
	}
}

func TestBearerTokenMiddlewareSkippedWithoutPeerID(t *testing.T) {
	tm := auth.NewTokenManager("secret")
	stage := BearerTokenMiddleware(tm)
	p := NewPipeline(stage)
	allow, _ := p.Evaluate(context.Background(), Context{})
	if !allow {
		t.Fatal("expected the stage to be skipped entirely when PeerID is unavailable")
	}
}
