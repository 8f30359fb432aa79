// Package crypto encrypts secrets held in the users table, currently the
// linked-account refresh token, with AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Encryptor transforms a secret to and from its stored text form.
type Encryptor interface {
	EncryptString(plaintext string) (string, error)
	DecryptString(stored string) (string, error)
}

// AESEncryptor stores nonce || ciphertext || tag as base64.
type AESEncryptor struct {
	aead cipher.AEAD
}

// NewAESEncryptor builds an encryptor from a base64-encoded 32-byte key
// (openssl rand -base64 32).
func NewAESEncryptor(base64Key string) (*AESEncryptor, error) {
	if base64Key == "" {
		return nil, errors.New("encryption key is empty")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key: must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &AESEncryptor{aead: aead}, nil
}

// EncryptString returns "" for "" so an unlinked token stays empty.
func (e *AESEncryptor) EncryptString(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *AESEncryptor) DecryptString(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("base64 decode failed: %w", err)
	}
	n := e.aead.NonceSize()
	if len(raw) < n {
		return "", fmt.Errorf("ciphertext too short: %d bytes", len(raw))
	}
	plain, err := e.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", errors.New("decryption failed: authentication or integrity check failed")
	}
	return string(plain), nil
}

// Plaintext is the no-op Encryptor used when no key is configured.
type Plaintext struct{}

func (Plaintext) EncryptString(s string) (string, error) { return s, nil }
func (Plaintext) DecryptString(s string) (string, error) { return s, nil }
