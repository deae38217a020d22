package logger

import "errors"

// MultiLogger fans each message out to several loggers. The daemon pairs
// stderr with the configured log file through it.
type MultiLogger []Logger

// NewMultiLogger drops nil entries and keeps the rest in order.
func NewMultiLogger(loggers ...Logger) MultiLogger {
	m := make(MultiLogger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			m = append(m, l)
		}
	}
	return m
}

func (m MultiLogger) Info(format string, args ...interface{}) {
	for _, l := range m {
		l.Info(format, args...)
	}
}

func (m MultiLogger) Warning(format string, args ...interface{}) {
	for _, l := range m {
		l.Warning(format, args...)
	}
}

func (m MultiLogger) Error(format string, args ...interface{}) {
	for _, l := range m {
		l.Error(format, args...)
	}
}

// Close closes every logger and joins their errors.
func (m MultiLogger) Close() error {
	var errs []error
	for _, l := range m {
		errs = append(errs, l.Close())
	}
	return errors.Join(errs...)
}
