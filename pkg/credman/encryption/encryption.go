// Package encryption seals secret values with XChaCha20-Poly1305. Each
// value is bound to the name it is stored under, so ciphertexts cannot be
// swapped between entries.
package encryption

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// version tags the layout version || nonce || sealed box.
const version byte = 1

var ErrMalformed = errors.New("malformed ciphertext")

// Seal encrypts value for the entry called name.
func Seal(name, value string, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(value)+aead.Overhead())
	out[0] = version
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(out, out[1:], []byte(value), []byte(name)), nil
}

// Open decrypts a value sealed for name.
func Open(name string, sealed, key []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < 1+aead.NonceSize()+aead.Overhead() || sealed[0] != version {
		return "", ErrMalformed
	}
	nonce := sealed[1 : 1+aead.NonceSize()]
	plain, err := aead.Open(nil, nonce, sealed[1+aead.NonceSize():], []byte(name))
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
