// Package credman keeps queuedl's credentials (bot token, session password,
// RPC secret) encrypted at rest.
package credman

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/warpdl/queuedl/pkg/credman/encryption"
	"github.com/warpdl/queuedl/pkg/credman/keyring"
)

// Well known secret names.
const (
	BotToken        = "bot_token"
	SessionPassword = "session_password"
	RPCSecret       = "rpc_secret"
)

const secretsFileName = "secrets.db"

var ErrSecretNotFound = errors.New("secret not found")

// SecretManager stores named secrets encrypted with a single key in a gob
// encoded file.
type SecretManager struct {
	mu       sync.Mutex
	filePath string
	key      []byte
	secrets  map[string][]byte
}

// Open loads (or creates) the secrets file in configDir using the key from
// the OS keyring or its file fallback.
func Open(configDir string) (*SecretManager, error) {
	key, err := keyring.LoadOrCreate(configDir)
	if err != nil {
		return nil, err
	}
	return NewSecretManager(filepath.Join(configDir, secretsFileName), key)
}

func NewSecretManager(filePath string, key []byte) (*SecretManager, error) {
	sm := &SecretManager{
		filePath: filePath,
		key:      key,
		secrets:  make(map[string][]byte),
	}
	if err := sm.load(); err != nil {
		return nil, err
	}
	return sm, nil
}

func (sm *SecretManager) load() error {
	data, err := os.ReadFile(sm.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&sm.secrets); err != nil {
		return fmt.Errorf("decode secrets: %w", err)
	}
	return nil
}

// save rewrites the file atomically. Caller holds sm.mu.
func (sm *SecretManager) save() error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sm.secrets); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(sm.filePath), 0o755); err != nil {
		return err
	}
	tmp := sm.filePath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, sm.filePath)
}

func (sm *SecretManager) Set(name, value string) error {
	enc, err := encryption.Seal(name, value, sm.key)
	if err != nil {
		return err
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.secrets[name] = enc
	return sm.save()
}

func (sm *SecretManager) Get(name string) (string, error) {
	sm.mu.Lock()
	enc, ok := sm.secrets[name]
	sm.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	plain, err := encryption.Open(name, enc, sm.key)
	if err != nil {
		return "", fmt.Errorf("decrypt %s: %w", name, err)
	}
	return plain, nil
}

func (sm *SecretManager) Delete(name string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.secrets[name]; !ok {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	delete(sm.secrets, name)
	return sm.save()
}

// Names returns the stored secret names in sorted order.
func (sm *SecretManager) Names() []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	names := make([]string, 0, len(sm.secrets))
	for n := range sm.secrets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
