/**
 * @description
 * This package provides symmetric encryption for secrets the banking-service stores at
 * rest: the banking credentials of a directory and the cached upstream session keys.
 *
 * Ciphertexts are AES-256-GCM sealed boxes encoded as base64(nonce || ciphertext). The
 * 32-byte key is derived from the configured secret with HKDF-SHA256 so that two
 * purposes never share a key even if configured with the same secret.
 *
 * @dependencies
 * - golang.org/x/crypto/hkdf: Key derivation.
 */
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	PurposeCredentials = "banking-service/credentials"
	PurposeSession     = "banking-service/session"

	keySize = 32
)

var (
	// ErrDecryptionFailed is returned for any ciphertext that cannot be opened.
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrEmptySecret      = errors.New("encryption secret must not be empty")
)

// Cipher encrypts and decrypts values with a single derived key.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a key for purpose from secret.
func NewCipher(secret, purpose string) (*Cipher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce.
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize+c.aead.Overhead() {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func (c *Cipher) EncryptString(plaintext string) (string, error) {
	return c.Encrypt([]byte(plaintext))
}

func (c *Cipher) DecryptString(encoded string) (string, error) {
	plaintext, err := c.Decrypt(encoded)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
