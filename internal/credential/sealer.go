// Package credential seals provider credentials for storage at rest.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/shared"
)

const keySize = 32

var (
	errKeySize   = errors.New("sealing key must be 32 bytes")
	errTruncated = errors.New("sealed data is truncated")
)

// Sealer encrypts credential bundles with AES-256-GCM. The nonce is stored
// in front of the ciphertext.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a sealer for a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != keySize {
		return nil, errKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal serializes and encrypts creds.
func (s *Sealer) Seal(creds *domain.Credentials) ([]byte, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return nil, shared.Store("credential.seal", err)
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, shared.Store("credential.seal", err)
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

// Open decrypts and deserializes a sealed bundle. A wrong key or tampered
// data fails with a store error.
func (s *Sealer) Open(sealed []byte) (*domain.Credentials, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, shared.Store("credential.open", errTruncated)
	}
	plain, err := s.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, shared.Store("credential.open", err)
	}
	var creds domain.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, shared.Store("credential.open", err)
	}
	return &creds, nil
}
