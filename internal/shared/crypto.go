package shared

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const keySize = 32

// ParseKey decodes a base64-encoded 32-byte secretbox key.
func ParseKey(encoded string) (*[keySize]byte, error) {
	if encoded == "" {
		return nil, fmt.Errorf("%w: encryption key not set", ErrMissingCredentials)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: encryption key is not valid base64", ErrInvalidConfig)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("%w: encryption key must be %d bytes, got %d", ErrInvalidConfig, keySize, len(raw))
	}

	var key [keySize]byte
	copy(key[:], raw)
	return &key, nil
}

// GenerateKey produces a new random base64-encoded secretbox key.
func GenerateKey() (string, error) {
	var key [keySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

// EncryptSecret seals plaintext with a random nonce and returns
// base64(nonce || ciphertext).
func EncryptSecret(key *[keySize]byte, plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptSecret reverses EncryptSecret.
func DecryptSecret(key *[keySize]byte, encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret: %w", err)
	}
	if len(raw) < 24 {
		return "", fmt.Errorf("encrypted secret too short")
	}

	var nonce [24]byte
	copy(nonce[:], raw[:24])

	plaintext, ok := secretbox.Open(nil, raw[24:], &nonce, key)
	if !ok {
		return "", fmt.Errorf("failed to decrypt secret: wrong key or corrupted data")
	}

	return string(plaintext), nil
}
