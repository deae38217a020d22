package keyring

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	keyFileName = "secrets.key"
	keyFileMode = 0o600
)

// FileKeyStore keeps the key in a private file next to the secrets it
// protects. It is used when no OS keyring service is reachable.
type FileKeyStore struct {
	fs   afero.Fs
	path string
}

func NewFileKeyStore(fs afero.Fs, configDir string) *FileKeyStore {
	return &FileKeyStore{fs: fs, path: filepath.Join(configDir, keyFileName)}
}

// SetKey writes a fresh key. The file is staged under a temporary name
// and renamed into place so a reader never sees a partial key.
func (f *FileKeyStore) SetKey() ([]byte, error) {
	key, encoded, err := newKey()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(f.path)
	if err := f.fs.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	staged := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, staged, []byte(encoded), keyFileMode); err != nil {
		f.fs.Remove(staged)
		return nil, fmt.Errorf("write key file: %w", err)
	}
	// WriteFile leaves an existing file's mode alone
	if err := f.fs.Chmod(staged, keyFileMode); err != nil {
		f.fs.Remove(staged)
		return nil, fmt.Errorf("restrict key file: %w", err)
	}
	if err := f.fs.Rename(staged, f.path); err != nil {
		f.fs.Remove(staged)
		return nil, fmt.Errorf("install key file: %w", err)
	}
	return key, nil
}

func (f *FileKeyStore) GetKey() ([]byte, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		return nil, err
	}
	return decodeKey(string(data))
}

func (f *FileKeyStore) DeleteKey() error {
	return f.fs.Remove(f.path)
}
