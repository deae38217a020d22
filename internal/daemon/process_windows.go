//go:build windows

package daemon

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

func isProcessRunning(pid int) bool {
	handle, err := windows.OpenProcess(windows.SYNCHRONIZE, false, uint32(pid))
	if err != nil {
		return false
	}
	windows.CloseHandle(handle)
	return true
}

func stopProcess(pid int, timeout time.Duration) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process not found: %w", err)
	}
	if err := process.Signal(os.Interrupt); err != nil {
		return process.Kill()
	}
	done := make(chan struct{})
	go func() {
		process.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return process.Kill()
	}
}
