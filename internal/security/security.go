// Package security provides at-rest AES-GCM encryption for storage-adapter
// blobs (ephemeral payloads are not encrypted), grounded on the teacher's security.go
// (PBKDF2 key derivation + AES-GCM seal/open), renamed from "memory" to the
// generic "blob" the storage adapter contract (§4.8) actually persists.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// BlobEncryption derives keys and seals/opens storage-adapter blobs.
type BlobEncryption struct {
	iterations int
	keyLength  int
}

func NewBlobEncryption() *BlobEncryption {
	return &BlobEncryption{
		iterations: 100000,
		keyLength:  32,
	}
}

// DeriveKey derives an encryption key from a passphrase and salt.
func (m *BlobEncryption) DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key(
		[]byte(passphrase),
		salt,
		m.iterations,
		m.keyLength,
		sha256.New,
	)
}

// Encrypt seals blob data before it's handed to a storage adapter's Save.
func (m *BlobEncryption) Encrypt(data []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, data, nil)
	return ciphertext, nil
}

// Decrypt opens blob data loaded from a storage adapter's Load.
func (m *BlobEncryption) Decrypt(encrypted []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(encrypted) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := encrypted[:nonceSize], encrypted[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// GenerateSalt generates a random salt for key derivation.
func (m *BlobEncryption) GenerateSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// EncodeKey encodes a key to base64 for storage alongside a blob.
func (m *BlobEncryption) EncodeKey(key []byte) string {
	return base64.URLEncoding.EncodeToString(key)
}

// DecodeKey decodes a base64-encoded key.
func (m *BlobEncryption) DecodeKey(encoded string) ([]byte, error) {
	return base64.URLEncoding.DecodeString(encoded)
}
