package pqc

import "fmt"

// Identity bundles the two PQC key pairs a peer advertises during the
// establish handshake: a Dilithium signing key to authenticate its PeerID
// and identity claims, and a Kyber exchange key peers can use to seal
// payloads addressed to it.
type Identity struct {
	Signing  *SigningKeyPair
	Exchange *ExchangeKeyPair
}

// GenerateIdentity generates a fresh Identity for a new PeerID.
func GenerateIdentity() (*Identity, error) {
	signing, err := GenerateSigningKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing keys: %w", err)
	}
	exchange, err := GenerateExchangeKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate exchange keys: %w", err)
	}
	return &Identity{Signing: signing, Exchange: exchange}, nil
}

// SignClaim signs an establish-request's identity claim bytes.
func (id *Identity) SignClaim(claim []byte) []byte {
	return Sign(id.Signing.PrivateKey, claim)
}

// Seal encrypts a payload for this identity's advertised exchange key.
func (id *Identity) Seal(plaintext []byte) ([]byte, error) {
	return Seal(id.Exchange.PublicKey, plaintext)
}

// Open decrypts a payload sealed for this identity.
func (id *Identity) Open(sealed []byte) ([]byte, error) {
	return Open(id.Exchange.PrivateKey, sealed)
}

// RemoteIdentity holds a remote peer's advertised public keys, parsed out of
// an establish-request/response's identity metadata.
type RemoteIdentity struct {
	SigningPublicKey  []byte
	ExchangePublicKey []byte
}

// VerifyClaim checks a signature a remote peer attached to its identity
// claim against its advertised signing public key.
func (r *RemoteIdentity) VerifyClaim(claim, signature []byte) (bool, error) {
	pub, err := UnmarshalSigningPublicKey(r.SigningPublicKey)
	if err != nil {
		return false, fmt.Errorf("failed to parse remote signing key: %w", err)
	}
	return Verify(pub, claim, signature), nil
}

// SealFor encrypts a payload addressed to the remote peer.
func (r *RemoteIdentity) SealFor(plaintext []byte) ([]byte, error) {
	pub, err := UnmarshalExchangePublicKey(r.ExchangePublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse remote exchange key: %w", err)
	}
	return Seal(pub, plaintext)
}
