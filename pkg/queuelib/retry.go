package queuelib

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultMaxRetries = 5
	DefaultRetryDelay = 5 * time.Second
)

// RetryPolicy decides whether a failed attempt is re-queued and how long
// the worker waits before doing so. The delay is fixed.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		Delay:      DefaultRetryDelay,
	}
}

// ShouldRetry reports whether a job that has already been retried
// retryCount times gets another attempt after err. Cancellation is never
// retried.
func (p RetryPolicy) ShouldRetry(retryCount int, err error) bool {
	if IsCancelled(err) || errors.Is(err, ErrShutdown) {
		return false
	}
	return retryCount < p.MaxRetries
}

// Wait blocks for the retry delay or until ctx is done.
func (p RetryPolicy) Wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}
