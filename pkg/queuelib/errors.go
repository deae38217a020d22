package queuelib

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound     = errors.New("download not found")
	ErrJobActive       = errors.New("download is currently active")
	ErrNotRetryable    = errors.New("download is not in a retryable state")
	ErrNotCancellable  = errors.New("download already finished")
	ErrManagerRunning  = errors.New("manager already running")
	ErrManagerStopped  = errors.New("manager is not running")
	ErrEmptyFileRef    = errors.New("file reference cannot be empty")
	ErrInvalidStatus   = errors.New("invalid download status")
	ErrShutdown        = errors.New("manager shutting down")
	ErrInvalidProgress = errors.New("progress must be between 0 and 100")
)

// ErrCancelled is the cancellation cause attached to a job's context when
// the user cancels it. Fetchers return it (or any error wrapping it) when
// they observe the cancellation.
var ErrCancelled = errors.New("download cancelled")

// StoreError wraps a failure of the persistent state store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// FetchError represents a transfer failure reported by a Fetcher backend.
type FetchError struct {
	Backend string
	Op      string
	Err     error
}

// NewFetchError creates a FetchError for the given backend and operation.
func NewFetchError(backend, op string, err error) *FetchError {
	return &FetchError{Backend: backend, Op: op, Err: err}
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AuthError is returned when a backend cannot authenticate. It is fatal to
// daemon startup.
type AuthError struct {
	Backend string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Backend, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// FilesystemError is returned when the destination cannot be prepared or
// written, e.g. a missing directory that cannot be created or a full disk.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem: %s: %v", e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// IsCancelled reports whether err signals a user cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
