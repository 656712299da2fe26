package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	MinKeyLength = 32

	keyContext = "go-request-guard field encryption v1"
)

var (
	ErrKeyTooShort = fmt.Errorf("encryption key must be at least %d bytes", MinKeyLength)
	ErrMalformed   = errors.New("malformed encrypted field")
)

// Cipher encrypts individual string fields with AES-256-GCM. Every call uses
// a fresh nonce, so equal plaintexts produce different ciphertexts.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the field key from secret with HKDF-SHA256.
func New(secret []byte) (*Cipher, error) {
	if len(secret) < MinKeyLength {
		return nil, ErrKeyTooShort
	}

	key := make([]byte, 32)
	reader := hkdf.New(sha256.New, secret, nil, []byte(keyContext))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("deriving field key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt returns base64url(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any corrupt, truncated or foreign input yields
// ErrMalformed.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrMalformed
	}

	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize+c.aead.Overhead() {
		return "", ErrMalformed
	}

	plaintext, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", ErrMalformed
	}

	return string(plaintext), nil
}
