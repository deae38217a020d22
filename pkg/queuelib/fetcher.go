package queuelib

import "context"

// ProgressFunc receives transfer progress. total is UnknownSize when the
// backend does not know the file size.
type ProgressFunc func(downloaded, total int64, percent float64)

// FileInfo describes a remote file as reported by a backend.
type FileInfo struct {
	FileRef    string `json:"file_ref"`
	UniqueID   string `json:"unique_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Size       int64  `json:"size"`
	RemotePath string `json:"remote_path,omitempty"`
}

// Fetcher performs the actual transfer of a file identified by an opaque
// file reference. Implementations must honor ctx cancellation: when
// context.Cause(ctx) is ErrCancelled the transfer should stop promptly and
// return an error. Progress callbacks may be invoked from the calling
// goroutine only.
type Fetcher interface {
	// Fetch transfers fileRef to destination. A nil error means success.
	Fetch(ctx context.Context, fileRef, destination string, onProgress ProgressFunc) error
	// GetInfo returns remote metadata for fileRef.
	GetInfo(ctx context.Context, fileRef string) (*FileInfo, error)
	// Name identifies the backend in logs and errors.
	Name() string
	// IsAuthenticated reports whether the backend holds a verified login.
	IsAuthenticated() bool
	Close() error
}

// PercentOf returns downloaded as a percentage of total, clamped to [0,100].
// It returns 0 when total is unknown.
func PercentOf(downloaded, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(downloaded) / float64(total) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
