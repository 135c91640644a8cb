package middleware

import (
	"context"
	"encoding/base64"

	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/security/pqc"
)

// Metadata keys a PQC-signing establish-request carries, base64-encoded
// since middleware.Context.Metadata is string-valued.
const (
	MetadataPQCClaim     = "pqc_claim"
	MetadataPQCSignature = "pqc_signature"
)

// RemoteIdentityLookup resolves a peer's previously-advertised public keys,
// so the signature on a later establish attempt can be checked without
// re-exchanging them. A Repo backs this with whatever it persisted from the
// peer's first handshake.
type RemoteIdentityLookup func(peerID ids.PeerID) (*pqc.RemoteIdentity, bool)

// PQCSignatureMiddleware verifies the Dilithium signature an establishing
// peer attaches over its identity claim, when one is configured to be
// required. A peer with no known RemoteIdentity yet (first contact) is let
// through — the claim/signature pair establishes trust for subsequent
// handshakes, it can't be checked against anything on the first one.
func PQCSignatureMiddleware(lookup RemoteIdentityLookup, required bool) Middleware {
	return Middleware{
		Name:     "pqc-signature",
		Requires: []Requirement{RequiresPeer},
		Check: func(_ context.Context, mc Context) (bool, string) {
			remote, known := lookup(mc.PeerID)
			if !known {
				return true, ""
			}

			claimB64, hasClaim := mc.Metadata[MetadataPQCClaim]
			sigB64, hasSig := mc.Metadata[MetadataPQCSignature]
			if !hasClaim || !hasSig {
				if required {
					return false, "missing pqc claim/signature"
				}
				return true, ""
			}

			claim, err := base64.StdEncoding.DecodeString(claimB64)
			if err != nil {
				return false, "malformed pqc claim encoding"
			}
			sig, err := base64.StdEncoding.DecodeString(sigB64)
			if err != nil {
				return false, "malformed pqc signature encoding"
			}

			ok, err := remote.VerifyClaim(claim, sig)
			if err != nil {
				return false, "failed to verify pqc signature: " + err.Error()
			}
			if !ok {
				return false, "pqc signature does not match claim"
			}
			return true, ""
		},
	}
}
