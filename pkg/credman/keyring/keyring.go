// Package keyring stores the key that encrypts queuedl's secrets file,
// using the operating system keyring with a file fallback.
package keyring

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/zalando/go-keyring"
)

const keySize = 32

// KeyStore persists a single symmetric key.
type KeyStore interface {
	SetKey() ([]byte, error)
	GetKey() ([]byte, error)
	DeleteKey() error
}

// Keyring keeps the key in the OS keyring under AppName/KeyField.
type Keyring struct {
	AppName  string
	KeyField string
}

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
	randRead      = rand.Read
)

func NewKeyring() *Keyring {
	return &Keyring{
		AppName:  "queuedl",
		KeyField: "secrets",
	}
}

// newKey returns a random key and its hex form, which is how both stores
// persist it.
func newKey() ([]byte, string, error) {
	key := make([]byte, keySize)
	if _, err := randRead(key); err != nil {
		return nil, "", fmt.Errorf("generate key: %w", err)
	}
	return key, hex.EncodeToString(key), nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid key format: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key length: expected %d, got %d", keySize, len(key))
	}
	return key, nil
}

// SetKey generates a fresh key and stores it in the keyring.
func (k *Keyring) SetKey() ([]byte, error) {
	key, encoded, err := newKey()
	if err != nil {
		return nil, err
	}
	if err := keyringSet(k.AppName, k.KeyField, encoded); err != nil {
		return nil, err
	}
	return key, nil
}

func (k *Keyring) GetKey() ([]byte, error) {
	s, err := keyringGet(k.AppName, k.KeyField)
	if err != nil {
		return nil, err
	}
	return decodeKey(s)
}

func (k *Keyring) DeleteKey() error {
	return keyringDelete(k.AppName, k.KeyField)
}

// LoadOrCreate returns the stored key, creating one if none exists. It
// prefers the OS keyring and falls back to a key file in configDir when
// the keyring is unavailable (e.g. headless servers without a secret
// service).
func LoadOrCreate(configDir string) ([]byte, error) {
	stores := []KeyStore{NewKeyring(), NewFileKeyStore(afero.NewOsFs(), configDir)}
	for _, s := range stores {
		if key, err := s.GetKey(); err == nil {
			return key, nil
		}
	}
	var lastErr error
	for _, s := range stores {
		key, err := s.SetKey()
		if err == nil {
			return key, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no usable key store: %w", lastErr)
}
