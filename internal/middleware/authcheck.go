package middleware

import (
	"context"

	"github.com/syncmesh/syncmesh/internal/auth"
)

// BearerTokenMiddleware wraps a TokenManager as a Check, pulling the bearer
// token out of the context's Metadata under auth.TokenMetadataKey. It
// declares RequiresPeer, so the pipeline runs it only for messages whose
// Context carries a PeerID and skips it when PeerID is empty (as for an
// establish-request on a channel whose peer is not yet known). Deployments that never
// populate that key stay permissive, matching TokenManager.CheckEstablish's
// own default.
func BearerTokenMiddleware(tm *auth.TokenManager) Middleware {
	return Middleware{
		Name:     "bearer-token",
		Requires: []Requirement{RequiresPeer},
		Check: func(_ context.Context, mc Context) (bool, string) {
			return tm.CheckEstablish(string(mc.PeerID), mc.Metadata)
		},
	}
}
