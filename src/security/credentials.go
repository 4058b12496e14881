package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealedPrefix marks a credential value produced by Seal.
const SealedPrefix = "enc:"

var (
	ErrNoKey      = errors.New("credentials key is not configured")
	ErrBadKey     = fmt.Errorf("credentials key must be %d bytes", chacha20poly1305.KeySize)
	ErrBadSealed  = errors.New("sealed credential is malformed")
	ErrOpenFailed = errors.New("sealed credential could not be opened")
)

func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// Seal encrypts plaintext with XChaCha20-Poly1305 and returns
// "enc:" + base64(nonce || ciphertext).
func Seal(key []byte, plaintext string) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as is.
func Open(key []byte, value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}

	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil || len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrBadSealed
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrOpenFailed
	}
	return string(plain), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) == 0 {
		return nil, ErrNoKey
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrBadKey
	}
	return chacha20poly1305.NewX(key)
}

// OpenAll opens every sealed value in place. The key is only read when at
// least one value is sealed, so plaintext setups need no key.
func (c Config) OpenAll(values ...*string) error {
	var key []byte
	for _, v := range values {
		if v == nil || !IsSealed(*v) {
			continue
		}
		if key == nil {
			k, err := c.Key()
			if err != nil {
				return err
			}
			key = k
		}
		plain, err := Open(key, *v)
		if err != nil {
			return err
		}
		*v = plain
	}
	return nil
}
