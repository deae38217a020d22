// Package logger provides the logging interface shared by the queuedl
// daemon, the download manager and the transfer backends.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Logger defines the interface for leveled logging across all queuedl components.
type Logger interface {
	// Info logs an informational message (e.g., "Worker 2 started").
	Info(format string, args ...interface{})

	// Warning logs a warning message (e.g., "Retrying abc (2/5)").
	Warning(format string, args ...interface{})

	// Error logs an error message (e.g., "Failed to persist progress").
	Error(format string, args ...interface{})

	// Close releases resources held by the logger.
	// Safe to call multiple times. Returns nil for loggers without resources.
	Close() error
}

// StandardLogger wraps the stdlib *log.Logger for console/file output.
type StandardLogger struct {
	logger *log.Logger
	closer io.Closer
	once   sync.Once
}

// NewStandardLogger creates a logger that wraps the given *log.Logger.
func NewStandardLogger(l *log.Logger) *StandardLogger {
	return &StandardLogger{logger: l}
}

// NewFileLogger opens (or creates) path in append mode and returns a
// logger writing to it. The file is closed by Close.
func NewFileLogger(path string) (*StandardLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &StandardLogger{
		logger: log.New(f, "", log.LstdFlags),
		closer: f,
	}, nil
}

// Info logs an informational message with [INFO] prefix.
func (s *StandardLogger) Info(format string, args ...interface{}) {
	s.logger.Printf("[INFO] "+format, args...)
}

// Warning logs a warning message with [WARNING] prefix.
func (s *StandardLogger) Warning(format string, args ...interface{}) {
	s.logger.Printf("[WARNING] "+format, args...)
}

// Error logs an error message with [ERROR] prefix.
func (s *StandardLogger) Error(format string, args ...interface{}) {
	s.logger.Printf("[ERROR] "+format, args...)
}

// Close closes the underlying file for file loggers.
func (s *StandardLogger) Close() error {
	var err error
	s.once.Do(func() {
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

// NopLogger is a logger that discards all messages.
type NopLogger struct{}

// NewNopLogger creates a logger that discards all messages.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

func (n *NopLogger) Info(format string, args ...interface{})    {}
func (n *NopLogger) Warning(format string, args ...interface{}) {}
func (n *NopLogger) Error(format string, args ...interface{})   {}
func (n *NopLogger) Close() error                               { return nil }

// Ensure implementations satisfy the Logger interface.
var (
	_ Logger = (*StandardLogger)(nil)
	_ Logger = (*NopLogger)(nil)
)

// MockLogger implements Logger for testing purposes.
// It records all log calls for verification in tests and is safe for
// concurrent use by worker goroutines.
type MockLogger struct {
	mu           sync.Mutex
	infoCalls    []string
	warningCalls []string
	errorCalls   []string
	closeCalled  bool
}

// NewMockLogger creates a new MockLogger for testing.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) Info(format string, args ...interface{}) {
	m.mu.Lock()
	m.infoCalls = append(m.infoCalls, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

func (m *MockLogger) Warning(format string, args ...interface{}) {
	m.mu.Lock()
	m.warningCalls = append(m.warningCalls, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

func (m *MockLogger) Error(format string, args ...interface{}) {
	m.mu.Lock()
	m.errorCalls = append(m.errorCalls, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

func (m *MockLogger) Close() error {
	m.mu.Lock()
	m.closeCalled = true
	m.mu.Unlock()
	return nil
}

// InfoCalls returns a copy of the recorded info messages.
func (m *MockLogger) InfoCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.infoCalls...)
}

// WarningCalls returns a copy of the recorded warning messages.
func (m *MockLogger) WarningCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.warningCalls...)
}

// ErrorCalls returns a copy of the recorded error messages.
func (m *MockLogger) ErrorCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errorCalls...)
}

// CloseCalled reports whether Close was called.
func (m *MockLogger) CloseCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalled
}

var _ Logger = (*MockLogger)(nil)
