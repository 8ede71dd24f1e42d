package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

// Cipher seals and opens payloads with a key derived from one master key.
// It is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

type cipherConfig struct {
	purpose string
}

// Option configures a Cipher.
type Option func(*cipherConfig)

// WithPurpose sets the HKDF info string. Ciphers with different purposes
// cannot open each other's ciphertexts.
func WithPurpose(purpose string) Option {
	return func(c *cipherConfig) {
		if purpose != "" {
			c.purpose = purpose
		}
	}
}

// NewCipher validates the master key and prepares an AES-256-GCM cipher.
func NewCipher(masterKey []byte, opts ...Option) (*Cipher, error) {
	if err := validateKey(masterKey); err != nil {
		return nil, err
	}

	cfg := cipherConfig{purpose: DefaultPurpose}
	for _, opt := range opts {
		opt(&cfg)
	}

	key, err := deriveKey(masterKey, cfg.purpose)
	if err != nil {
		return nil, err
	}
	defer clearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt returns nonce + ciphertext + tag.
func (c *Cipher) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, associatedData), nil
}

// Decrypt opens a value produced by Encrypt with the same associated data.
func (c *Cipher) Decrypt(ciphertext, associatedData []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize+c.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, associatedData)
	if err != nil {
		return nil, errors.Join(ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// EncryptString encrypts a string and returns base64-encoded ciphertext.
func (c *Cipher) EncryptString(plaintext string, associatedData []byte) (string, error) {
	sealed, err := c.Encrypt([]byte(plaintext), associatedData)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func (c *Cipher) DecryptString(ciphertext string, associatedData []byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Join(ErrInvalidCiphertext, err)
	}

	plaintext, err := c.Decrypt(raw, associatedData)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
