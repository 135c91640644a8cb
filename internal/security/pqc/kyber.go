package pqc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/kyber/kyber768"
)

// ExchangeKeyPair is a Kyber-768 key pair used to encrypt an envelope's
// payload end-to-end between two channel peers, on top of whatever
// transport or storage-adapter-level encryption already applies.
type ExchangeKeyPair struct {
	PublicKey  kem.PublicKey
	PrivateKey kem.PrivateKey
}

// GenerateExchangeKeyPair generates a new Kyber-768 key pair.
func GenerateExchangeKeyPair() (*ExchangeKeyPair, error) {
	scheme := kyber768.Scheme()
	publicKey, privateKey, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate exchange key pair: %w", err)
	}
	return &ExchangeKeyPair{PublicKey: publicKey, PrivateKey: privateKey}, nil
}

// Seal encrypts plaintext for publicKey using Kyber-768 KEM + AES-256-GCM.
func Seal(publicKey kem.PublicKey, plaintext []byte) ([]byte, error) {
	scheme := kyber768.Scheme()

	ciphertext, sharedSecret, err := scheme.Encapsulate(publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encapsulate: %w", err)
	}

	encryptedData, err := aesSeal(sharedSecret, plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to seal payload: %w", err)
	}

	result := make([]byte, scheme.CiphertextSize()+len(encryptedData))
	copy(result[:scheme.CiphertextSize()], ciphertext)
	copy(result[scheme.CiphertextSize():], encryptedData)
	return result, nil
}

// Open decrypts a blob produced by Seal.
func Open(privateKey kem.PrivateKey, sealed []byte) ([]byte, error) {
	scheme := kyber768.Scheme()

	if len(sealed) < scheme.CiphertextSize() {
		return nil, errors.New("sealed payload too short")
	}

	kemCiphertext := sealed[:scheme.CiphertextSize()]
	encryptedData := sealed[scheme.CiphertextSize():]

	sharedSecret, err := scheme.Decapsulate(privateKey, kemCiphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decapsulate: %w", err)
	}

	return aesOpen(sharedSecret, encryptedData)
}

func (kp *ExchangeKeyPair) MarshalPublicKey() ([]byte, error) {
	return kp.PublicKey.MarshalBinary()
}

func (kp *ExchangeKeyPair) MarshalPrivateKey() ([]byte, error) {
	return kp.PrivateKey.MarshalBinary()
}

// UnmarshalExchangePublicKey parses a peer's advertised exchange public key.
func UnmarshalExchangePublicKey(data []byte) (kem.PublicKey, error) {
	return kyber768.Scheme().UnmarshalBinaryPublicKey(data)
}

func UnmarshalExchangePrivateKey(data []byte) (kem.PrivateKey, error) {
	return kyber768.Scheme().UnmarshalBinaryPrivateKey(data)
}

func aesSeal(key []byte, plaintext []byte) ([]byte, error) {
	aesKey := deriveAESKey(key)

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func aesOpen(key []byte, ciphertext []byte) ([]byte, error) {
	aesKey := deriveAESKey(key)

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func deriveAESKey(sharedSecret []byte) []byte {
	if len(sharedSecret) == 32 {
		return sharedSecret
	}
	hash := sha256.Sum256(sharedSecret)
	return hash[:]
}
