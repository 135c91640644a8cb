// Package pqc signs establish-request identity claims with a post-quantum
// signature scheme so a peer's PeerID can be authenticated independently of
// whatever transport carried it in, grounded on the teacher's
// internal/crypto/pqc (Dilithium-3 signing over circl, Kyber-768 KEM
// encryption).
package pqc

import (
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// SigningKeyPair is a Dilithium-3 key pair used to sign establish-request
// identity claims.
type SigningKeyPair struct {
	PublicKey  sign.PublicKey
	PrivateKey sign.PrivateKey
}

// GenerateSigningKeyPair generates a new Dilithium-3 key pair.
func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	scheme := mode3.Scheme()
	publicKey, privateKey, err := scheme.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key pair: %w", err)
	}
	return &SigningKeyPair{PublicKey: publicKey, PrivateKey: privateKey}, nil
}

// Sign signs an establish-request's identity payload.
func Sign(privateKey sign.PrivateKey, message []byte) []byte {
	return mode3.Scheme().Sign(privateKey, message, nil)
}

// Verify checks a signature produced by Sign.
func Verify(publicKey sign.PublicKey, message []byte, signature []byte) bool {
	return mode3.Scheme().Verify(publicKey, message, signature, nil)
}

func (kp *SigningKeyPair) MarshalPublicKey() ([]byte, error) {
	return kp.PublicKey.MarshalBinary()
}

func (kp *SigningKeyPair) MarshalPrivateKey() ([]byte, error) {
	return kp.PrivateKey.MarshalBinary()
}

// UnmarshalSigningPublicKey parses a peer's advertised public key, e.g. from
// an establish-request's identity metadata.
func UnmarshalSigningPublicKey(data []byte) (sign.PublicKey, error) {
	return mode3.Scheme().UnmarshalBinaryPublicKey(data)
}

func UnmarshalSigningPrivateKey(data []byte) (sign.PrivateKey, error) {
	return mode3.Scheme().UnmarshalBinaryPrivateKey(data)
}
