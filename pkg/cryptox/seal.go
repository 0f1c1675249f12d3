package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
)

var ErrSealedTooShort = errors.New("cryptox: sealed value too short")

// Sealer encrypts small secrets at rest with AES-256-GCM. The stored form is
// base64(nonce || ciphertext || tag).
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a 256-bit key from arbitrary key material.
func NewSealer(keyMaterial []byte) (*Sealer, error) {
	if len(keyMaterial) == 0 {
		return nil, errors.New("cryptox: empty master key")
	}
	key := sha256.Sum256(keyMaterial)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: new GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// LoadSealer reads the master key from path. An empty path generates an
// ephemeral key; anything sealed with it is unreadable after restart.
func LoadSealer(path string) (*Sealer, error) {
	if path == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("cryptox: generate master key: %w", err)
		}
		return NewSealer(key)
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return nil, fmt.Errorf("cryptox: read master key: %w", err)
	}
	return NewSealer(data)
}

// Seal encrypts plaintext. additional is authenticated but not encrypted; we
// bind ciphertexts to their owner so a value cannot be swapped between rows.
func (s *Sealer) Seal(plaintext, additional []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("cryptox: read nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, plaintext, additional)
	return base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string, additional []byte) ([]byte, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("cryptox: decode sealed value: %w", err)
	}
	n := s.aead.NonceSize()
	if len(raw) < n+s.aead.Overhead() {
		return nil, ErrSealedTooShort
	}
	plaintext, err := s.aead.Open(nil, raw[:n], raw[n:], additional)
	if err != nil {
		return nil, fmt.Errorf("cryptox: open sealed value: %w", err)
	}
	return plaintext, nil
}
