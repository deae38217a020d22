package queuelib

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/warpdl/queuedl/pkg/logger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fetchFunc is invoked for each attempt; attempt starts at 1.
type fetchFunc func(ctx context.Context, fileRef, dest string, attempt int, onProgress ProgressFunc) error

type fakeFetcher struct {
	mu       sync.Mutex
	attempts map[string]int
	order    []string
	fn       fetchFunc
}

func newFakeFetcher(fn fetchFunc) *fakeFetcher {
	return &fakeFetcher{attempts: make(map[string]int), fn: fn}
}

func (f *fakeFetcher) Fetch(ctx context.Context, fileRef, dest string, onProgress ProgressFunc) error {
	f.mu.Lock()
	f.attempts[fileRef]++
	n := f.attempts[fileRef]
	f.order = append(f.order, fileRef)
	f.mu.Unlock()
	if f.fn == nil {
		onProgress(50, 100, 50)
		onProgress(100, 100, 100)
		return nil
	}
	return f.fn(ctx, fileRef, dest, n, onProgress)
}

func (f *fakeFetcher) GetInfo(ctx context.Context, fileRef string) (*FileInfo, error) {
	return &FileInfo{FileRef: fileRef, Size: 100}, nil
}

func (f *fakeFetcher) Name() string { return "fake" }
func (f *fakeFetcher) IsAuthenticated() bool { return true }
func (f *fakeFetcher) Close() error { return nil }

func (f *fakeFetcher) Attempts(fileRef string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[fileRef]
}

func (f *fakeFetcher) Order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

// blockUntilCancelled waits for ctx and returns its cause.
func blockUntilCancelled(ctx context.Context, _ string, _ string, _ int, onProgress ProgressFunc) error {
	onProgress(10, 100, 10)
	<-ctx.Done()
	return context.Cause(ctx)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (e *eventLog) record(ev Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *eventLog) count(typ EventType, fileRef string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.Type != typ {
			continue
		}
		if fileRef == "" || (ev.Job != nil && ev.Job.FileRef == fileRef) {
			n++
		}
	}
	return n
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "state", "queuedl.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestManager(t *testing.T, store *Store, f Fetcher, opts ManagerOpts) *Manager {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 5 * time.Millisecond
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = t.TempDir()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	m := NewManager(store, f, opts)
	t.Cleanup(func() {
		if m.Running() {
			m.Shutdown()
		}
	})
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func statusOf(t *testing.T, s *Store, fileRef string) Status {
	t.Helper()
	j, err := s.Get(fileRef)
	if err != nil {
		t.Fatalf("Get(%s): %v", fileRef, err)
	}
	return j.Status
}

func waitStatus(t *testing.T, s *Store, fileRef string, want Status) {
	t.Helper()
	waitFor(t, fileRef+" to become "+string(want), func() bool {
		j, err := s.Get(fileRef)
		return err == nil && j.Status == want
	})
}
