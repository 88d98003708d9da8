package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the master key length every Algorithm requires.
const KeySize = 32

// Algorithm selects the AEAD used to seal a credentials file at rest.
type Algorithm int

const (
	AES256GCM Algorithm = iota
	XChaCha20Poly1305
)

// FileCipher seals and opens small configuration payloads (the
// credentials file) under a 32-byte master key supplied out of band.
// The sealed form is base64(nonce || ciphertext || tag), one fresh
// random nonce per Seal call.
type FileCipher struct {
	aead cipher.AEAD
}

// NewFileCipher builds a FileCipher for the given key and algorithm.
func NewFileCipher(key []byte, alg Algorithm) (*FileCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes", KeySize)
	}

	var aead cipher.AEAD
	var err error
	switch alg {
	case AES256GCM:
		var block cipher.Block
		block, err = aes.NewCipher(key)
		if err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case XChaCha20Poly1305:
		aead, err = chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("unknown seal algorithm %d", alg)
	}
	if err != nil {
		return nil, fmt.Errorf("init seal cipher: %w", err)
	}

	return &FileCipher{aead: aead}, nil
}

// Seal encrypts plaintext and returns the base64-encoded sealed form.
func (f *FileCipher) Seal(plaintext []byte) (string, error) {
	nonce, err := randomBytes(f.aead.NonceSize())
	if err != nil {
		return "", err
	}
	sealed := f.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a payload produced by Seal. It fails on any
// tampering, truncation, or key mismatch.
func (f *FileCipher) Open(sealed string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("decode sealed payload: %w", err)
	}

	ns := f.aead.NonceSize()
	if len(data) < ns {
		return nil, errors.New("sealed payload too short")
	}

	plaintext, err := f.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed payload: %w", err)
	}
	return plaintext, nil
}

// GenerateKey generates a random master key.
func GenerateKey() ([]byte, error) {
	return randomBytes(KeySize)
}

// DeriveKey derives a master key from a passphrase and salt, for
// deployments that hand the operator a passphrase instead of raw key
// material.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}
