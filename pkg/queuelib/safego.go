package queuelib

import (
	"fmt"
	"runtime/debug"

	"github.com/warpdl/queuedl/pkg/logger"
)

// safeGo runs fn in a goroutine with panic recovery.
// If done is non-nil, it's closed on completion (normal or panic).
// If onPanic is non-nil, it's called with the recovered value.
func safeGo(l logger.Logger, done chan struct{}, name string, onPanic func(r interface{}), fn func()) {
	go func() {
		if done != nil {
			defer close(done)
		}
		defer func() {
			if r := recover(); r != nil {
				l.Error("PANIC [%s]: %v\n%s", name, r, debug.Stack())
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}

// safeCall runs fn and converts a panic into an error.
func safeCall(l logger.Logger, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("PANIC [%s]: %v\n%s", name, r, debug.Stack())
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	return fn()
}
