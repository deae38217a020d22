// Package daemon tracks the running queuedl daemon through a PID file in
// the configuration directory and stops it on request.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const PidFileName = "daemon.pid"

var (
	// ErrAlreadyRunning is returned by Acquire when a live daemon owns the
	// PID file.
	ErrAlreadyRunning = errors.New("daemon is already running")
	// ErrNotRunning is returned by Stop when no live daemon is recorded.
	ErrNotRunning = errors.New("daemon is not running")
)

// PidFile is the PID file owned by the current process.
type PidFile struct {
	path string
}

// PidPath returns the PID file location inside dir.
func PidPath(dir string) string {
	return filepath.Join(dir, PidFileName)
}

// Acquire records the current process as the daemon. A file left by a
// process that no longer exists is replaced.
func Acquire(dir string) (*PidFile, error) {
	path := PidPath(dir)
	if pid, err := ReadPid(dir); err == nil && pid != os.Getpid() && isProcessRunning(pid) {
		return nil, fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, pid)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return &PidFile{path: path}, nil
}

func (p *PidFile) Path() string {
	return p.path
}

// Release removes the file if it still names this process.
func (p *PidFile) Release() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ReadPid returns the PID recorded in dir.
func ReadPid(dir string) (int, error) {
	data, err := os.ReadFile(PidPath(dir))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid PID: %d", pid)
	}
	return pid, nil
}

// Running returns the PID of the live daemon recorded in dir.
func Running(dir string) (int, bool) {
	pid, err := ReadPid(dir)
	if err != nil || !isProcessRunning(pid) {
		return 0, false
	}
	return pid, true
}

// Stop asks the daemon recorded in dir to shut down and waits up to
// timeout before killing it.
func Stop(dir string, timeout time.Duration) (int, error) {
	pid, ok := Running(dir)
	if !ok {
		return 0, ErrNotRunning
	}
	return pid, stopProcess(pid, timeout)
}
