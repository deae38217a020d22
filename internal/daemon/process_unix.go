//go:build !windows

package daemon

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const pollInterval = 100 * time.Millisecond

// isProcessRunning checks pid with signal 0. EPERM still means the
// process exists.
func isProcessRunning(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func stopProcess(pid int, timeout time.Duration) error {
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM: %w", err)
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !isProcessRunning(pid) {
			return nil
		}
		time.Sleep(pollInterval)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("send SIGKILL: %w", err)
	}
	return nil
}
