package queuelib

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/warpdl/queuedl/pkg/logger"
)

func TestManager_EndToEnd(t *testing.T) {
	store := newTestStore(t)
	f := newFakeFetcher(nil)
	m := newTestManager(t, store, f, ManagerOpts{Workers: 2})
	events := &eventLog{}
	m.OnEvent(events.record)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	id, err := m.Add("ref-1", "movie.mkv", "", Metadata{"chat_id": "1"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}
	waitStatus(t, store, "ref-1", StatusCompleted)

	j, _ := store.Get("ref-1")
	if j.Progress != 100 || j.DownloadedBytes != 100 || j.TotalBytes != 100 {
		t.Fatalf("expected full progress, got %+v", j)
	}
	if j.StartedAt == nil || j.CompletedAt == nil {
		t.Fatalf("expected timestamps, got %+v", j)
	}
	if j.TargetPath != filepath.Join(m.Opts().DownloadDir, "movie.mkv") {
		t.Fatalf("unexpected target path %s", j.TargetPath)
	}
	waitFor(t, "active set to drain", func() bool { return m.ActiveCount() == 0 })
	if m.Speed("ref-1") != 0 || m.speed.Len() != 0 {
		t.Fatal("expected speed tracking to be torn down")
	}
	waitFor(t, "completed event", func() bool { return events.count(EventDownloadCompleted, "ref-1") == 1 })
	for _, typ := range []EventType{EventDownloadAdded, EventDownloadStarted} {
		if events.count(typ, "ref-1") != 1 {
			t.Errorf("expected one %s event, got %d", typ, events.count(typ, "ref-1"))
		}
	}
}

func TestManager_AddValidation(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, store, newFakeFetcher(nil), ManagerOpts{})

	if _, err := m.Add("", "x", "", nil); !errors.Is(err, ErrEmptyFileRef) {
		t.Fatalf("expected ErrEmptyFileRef, got %v", err)
	}
	dir := t.TempDir()
	if _, err := m.Add("AgADBAADr6cxG", "", dir, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	j, _ := store.Get("AgADBAADr6cxG")
	if j.DisplayName != "file_AgADBAADr6" {
		t.Fatalf("unexpected default name %q", j.DisplayName)
	}
	if j.TargetPath != filepath.Join(dir, "file_AgADBAADr6") {
		t.Fatalf("unexpected target %q", j.TargetPath)
	}
	if m.QueueLen() != 1 {
		t.Fatalf("expected 1 queued, got %d", m.QueueLen())
	}
}

func TestManager_AddWhileActiveRejected(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, store, newFakeFetcher(blockUntilCancelled), ManagerOpts{Workers: 1})
	m.Start(context.Background())
	m.Add("r", "r", "", nil)
	waitFor(t, "r to be active", func() bool { return m.IsActive("r") })

	if _, err := m.Add("r", "r", "", nil); !errors.Is(err, ErrJobActive) {
		t.Fatalf("expected ErrJobActive, got %v", err)
	}
}

func TestManager_RetriesThenCompletes(t *testing.T) {
	store := newTestStore(t)
	f := newFakeFetcher(func(ctx context.Context, ref, dest string, attempt int, cb ProgressFunc) error {
		if attempt <= 2 {
			return errors.New("connection reset")
		}
		cb(10, 10, 100)
		return nil
	})
	m := newTestManager(t, store, f, ManagerOpts{Workers: 1, MaxRetries: 3})
	events := &eventLog{}
	m.OnEvent(events.record)
	m.Start(context.Background())
	m.Add("r", "r", "", nil)

	waitStatus(t, store, "r", StatusCompleted)
	j, _ := store.Get("r")
	if j.RetryCount != 2 {
		t.Fatalf("expected retryCount 2, got %d", j.RetryCount)
	}
	if f.Attempts("r") != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.Attempts("r"))
	}
	if events.count(EventDownloadRetrying, "r") != 2 {
		t.Fatalf("expected 2 retrying events, got %d", events.count(EventDownloadRetrying, "r"))
	}
}

func TestManager_FailsAfterMaxRetries(t *testing.T) {
	store := newTestStore(t)
	f := newFakeFetcher(func(context.Context, string, string, int, ProgressFunc) error {
		return errors.New("file is too big")
	})
	m := newTestManager(t, store, f, ManagerOpts{Workers: 2, MaxRetries: 2})
	events := &eventLog{}
	m.OnEvent(events.record)
	m.Start(context.Background())
	m.Add("r", "r", "", nil)

	waitStatus(t, store, "r", StatusFailed)
	j, _ := store.Get("r")
	if j.RetryCount != 2 {
		t.Fatalf("expected retryCount == maxRetries (2), got %d", j.RetryCount)
	}
	if j.ErrorMessage != "file is too big" {
		t.Fatalf("unexpected error message %q", j.ErrorMessage)
	}
	if j.CompletedAt == nil {
		t.Fatal("expected completedAt on failure")
	}
	if f.Attempts("r") != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.Attempts("r"))
	}
	waitFor(t, "failed event", func() bool { return events.count(EventDownloadFailed, "r") == 1 })
}

func TestManager_DoubleAddDoesNotReviveFailedJob(t *testing.T) {
	store := newTestStore(t)
	f := newFakeFetcher(func(context.Context, string, string, int, ProgressFunc) error {
		return errors.New("connection reset")
	})
	m := newTestManager(t, store, f, ManagerOpts{Workers: 1, MaxRetries: 1})
	events := &eventLog{}
	m.OnEvent(events.record)
	m.Add("r", "r", "", nil)
	m.Add("r", "r", "", nil)
	if m.QueueLen() != 1 {
		t.Fatalf("expected a single queued entry, got %d", m.QueueLen())
	}
	m.Start(context.Background())

	waitStatus(t, store, "r", StatusFailed)
	waitFor(t, "failed event", func() bool { return events.count(EventDownloadFailed, "r") == 1 })
	time.Sleep(50 * time.Millisecond)
	if got := f.Attempts("r"); got != 2 {
		t.Fatalf("expected 2 attempts with MaxRetries 1, got %d", got)
	}
	if got := events.count(EventDownloadFailed, "r"); got != 1 {
		t.Fatalf("expected 1 failed event, got %d", got)
	}
	if got := statusOf(t, store, "r"); got != StatusFailed {
		t.Fatalf("failed job moved to %s", got)
	}
}

func TestManager_ClaimSkipsTerminalJobs(t *testing.T) {
	store := newTestStore(t)
	f := newFakeFetcher(nil)
	m := newTestManager(t, store, f, ManagerOpts{Workers: 1})
	for _, st := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		ref := string(st)
		store.Upsert(&Job{FileRef: ref, DisplayName: ref, TargetPath: ref, TotalBytes: UnknownSize})
		store.UpdateStatus(ref, st, "")
		if aj, _ := m.claim(Descriptor{FileRef: ref}); aj != nil {
			t.Fatalf("claimed a %s job", st)
		}
		if got := statusOf(t, store, ref); got != st {
			t.Fatalf("%s job moved to %s", st, got)
		}
	}
	if f.Attempts("failed") != 0 {
		t.Fatal("terminal job was fetched")
	}
}

func TestManager_CancelQueuedThenRetryQueuesOnce(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, store, newFakeFetcher(nil), ManagerOpts{Workers: 1})
	m.Add("r", "r", "", nil)
	if err := m.Cancel("r"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := m.Retry("r"); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if m.QueueLen() != 1 {
		t.Fatalf("expected a single queued entry, got %d", m.QueueLen())
	}
}

func TestManager_FetcherPanicIsAFailure(t *testing.T) {
	store := newTestStore(t)
	f := newFakeFetcher(func(ctx context.Context, ref, dest string, attempt int, cb ProgressFunc) error {
		if ref == "r" {
			panic("backend bug")
		}
		return nil
	})
	m := newTestManager(t, store, f, ManagerOpts{Workers: 1, MaxRetries: -1})
	m.Start(context.Background())
	m.Add("r", "r", "", nil)

	waitStatus(t, store, "r", StatusFailed)
	// the worker survives and keeps serving the queue
	m.Add("next", "next", "", nil)
	waitStatus(t, store, "next", StatusCompleted)
}

func TestManager_PauseBlocksNewWork(t *testing.T) {
	store := newTestStore(t)
	f := newFakeFetcher(nil)
	m := newTestManager(t, store, f, ManagerOpts{Workers: 2})
	m.Pause()
	if !m.IsPaused() {
		t.Fatal("expected paused")
	}
	m.Start(context.Background())
	m.Add("a", "a", "", nil)
	m.Add("b", "b", "", nil)

	time.Sleep(100 * time.Millisecond)
	if got := len(f.Order()); got != 0 {
		t.Fatalf("expected no fetches while paused, got %d", got)
	}
	if statusOf(t, store, "a") != StatusPending || statusOf(t, store, "b") != StatusPending {
		t.Fatal("expected jobs to stay pending while paused")
	}

	m.Resume()
	waitStatus(t, store, "a", StatusCompleted)
	waitStatus(t, store, "b", StatusCompleted)
}

func TestManager_PauseDoesNotStopActiveTransfer(t *testing.T) {
	store := newTestStore(t)
	release := make(chan struct{})
	f := newFakeFetcher(func(ctx context.Context, ref, dest string, attempt int, cb ProgressFunc) error {
		<-release
		cb(1, 1, 100)
		return nil
	})
	m := newTestManager(t, store, f, ManagerOpts{Workers: 1})
	m.Start(context.Background())
	m.Add("r", "r", "", nil)
	waitFor(t, "r to start", func() bool { return m.IsActive("r") })

	m.Pause()
	close(release)
	waitStatus(t, store, "r", StatusCompleted)
}

func TestManager_CancelActive(t *testing.T) {
	store := newTestStore(t)
	f := newFakeFetcher(blockUntilCancelled)
	m := newTestManager(t, store, f, ManagerOpts{Workers: 1})
	events := &eventLog{}
	m.OnEvent(events.record)
	m.Start(context.Background())
	m.Add("r", "r", "", nil)
	waitFor(t, "r to start", func() bool { return m.IsActive("r") })

	if err := m.Cancel("r"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got := statusOf(t, store, "r"); got != StatusCancelled {
		t.Fatalf("expected cancelled right away, got %s", got)
	}
	waitFor(t, "cancel event", func() bool { return events.count(EventDownloadCancelled, "r") == 1 })
	waitFor(t, "active set to drain", func() bool { return m.ActiveCount() == 0 })
	time.Sleep(20 * time.Millisecond)
	if n := events.count(EventDownloadCancelled, "r"); n != 1 {
		t.Fatalf("expected exactly one cancel event, got %d", n)
	}
	if m.speed.Len() != 0 {
		t.Fatal("expected speed tracking to be dropped")
	}
	if f.Attempts("r") != 1 {
		t.Fatalf("cancelled job must not be retried, got %d attempts", f.Attempts("r"))
	}
}

func TestManager_CancelQueued(t *testing.T) {
	store := newTestStore(t)
	f := newFakeFetcher(nil)
	m := newTestManager(t, store, f, ManagerOpts{Workers: 1})
	events := &eventLog{}
	m.OnEvent(events.record)
	m.Pause()
	m.Start(context.Background())
	m.Add("r", "r", "", nil)

	if err := m.Cancel("r"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if events.count(EventDownloadCancelled, "r") != 1 {
		t.Fatal("expected cancel event for queued job")
	}
	m.Resume()
	m.Add("other", "other", "", nil)
	waitStatus(t, store, "other", StatusCompleted)
	if f.Attempts("r") != 0 {
		t.Fatal("cancelled job must not be fetched")
	}
	if got := statusOf(t, store, "r"); got != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got)
	}
}

func TestManager_CancelErrors(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, store, newFakeFetcher(nil), ManagerOpts{Workers: 1})
	m.Start(context.Background())
	m.Add("done", "done", "", nil)
	waitStatus(t, store, "done", StatusCompleted)

	if err := m.Cancel("done"); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}
	if err := m.Cancel("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestManager_CancelDuringBackoff(t *testing.T) {
	store := newTestStore(t)
	f := newFakeFetcher(func(context.Context, string, string, int, ProgressFunc) error {
		return errors.New("timeout")
	})
	m := newTestManager(t, store, f, ManagerOpts{Workers: 1, MaxRetries: 3, RetryDelay: time.Hour})
	m.Start(context.Background())
	m.Add("r", "r", "", nil)
	waitFor(t, "first attempt", func() bool { return f.Attempts("r") == 1 && m.IsActive("r") })

	if err := m.Cancel("r"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitFor(t, "worker to release r", func() bool { return !m.IsActive("r") })
	if got := statusOf(t, store, "r"); got != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got)
	}
}

func TestManager_RetryFailedAndCancelled(t *testing.T) {
	store := newTestStore(t)
	var fail sync.Map
	fail.Store("r", true)
	f := newFakeFetcher(func(ctx context.Context, ref, dest string, attempt int, cb ProgressFunc) error {
		if v, _ := fail.Load(ref); v == true {
			return errors.New("flaky")
		}
		cb(1, 1, 100)
		return nil
	})
	m := newTestManager(t, store, f, ManagerOpts{Workers: 1, MaxRetries: 1})
	m.Start(context.Background())
	m.Add("r", "r", "", nil)
	waitStatus(t, store, "r", StatusFailed)

	fail.Store("r", false)
	if err := m.Retry("r"); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	waitStatus(t, store, "r", StatusCompleted)
	j, _ := store.Get("r")
	if j.RetryCount != 1 {
		t.Fatalf("expected retry count preserved at 1, got %d", j.RetryCount)
	}

	if err := m.Retry("r"); !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable for completed job, got %v", err)
	}
	if err := m.Retry("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	m.Pause()
	m.Add("c", "c", "", nil)
	m.Cancel("c")
	store.IncrementRetry("c")
	if err := m.Retry("c"); err != nil {
		t.Fatalf("Retry cancelled: %v", err)
	}
	j, _ = store.Get("c")
	if j.Status != StatusPending || j.RetryCount != 0 {
		t.Fatalf("expected pending with reset count, got %+v", j)
	}
	m.Resume()
	waitStatus(t, store, "c", StatusCompleted)
}

func TestManager_RestartRecoversUnfinished(t *testing.T) {
	store := newTestStore(t)
	clock := newFakeClock()
	store.SetClock(clock.Now)

	rows := []struct {
		ref    string
		status Status
	}{
		{"pending", StatusPending},
		{"failed", StatusFailed},
		{"completed", StatusCompleted},
		{"interrupted", StatusDownloading},
		{"paused", StatusPaused},
		{"cancelled", StatusCancelled},
	}
	for _, r := range rows {
		store.Upsert(&Job{FileRef: r.ref, DisplayName: r.ref, TargetPath: r.ref, TotalBytes: UnknownSize})
		if r.status != StatusPending {
			store.UpdateStatus(r.ref, r.status, "")
		}
		clock.Advance(time.Second)
	}

	f := newFakeFetcher(nil)
	m := newTestManager(t, store, f, ManagerOpts{Workers: 1})
	m.Pause()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, ref := range []string{"failed", "interrupted", "paused"} {
		if got := statusOf(t, store, ref); got != StatusPending {
			t.Fatalf("expected %s job reset to pending, got %s", ref, got)
		}
	}
	m.Resume()

	for _, ref := range []string{"pending", "failed", "interrupted", "paused"} {
		waitStatus(t, store, ref, StatusCompleted)
	}
	want := []string{"pending", "failed", "interrupted", "paused"}
	got := f.Order()
	if len(got) != len(want) {
		t.Fatalf("expected fetch order %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected fetch order %v, got %v", want, got)
		}
	}
	if statusOf(t, store, "cancelled") != StatusCancelled || statusOf(t, store, "completed") != StatusCompleted {
		t.Fatal("finished jobs must not be touched")
	}
}

func TestManager_ShutdownReturnsActiveToPending(t *testing.T) {
	store := newTestStore(t)
	f := newFakeFetcher(blockUntilCancelled)
	m := newTestManager(t, store, f, ManagerOpts{Workers: 2})
	m.Start(context.Background())
	m.Add("r", "r", "", nil)
	waitFor(t, "r to start", func() bool { return m.IsActive("r") })

	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := statusOf(t, store, "r"); got != StatusPending {
		t.Fatalf("expected interrupted job pending, got %s", got)
	}
	if err := m.Shutdown(); !errors.Is(err, ErrManagerStopped) {
		t.Fatalf("expected ErrManagerStopped, got %v", err)
	}
	sessions, _ := store.Sessions()
	if len(sessions) != 1 || sessions[0].EndedAt == nil {
		t.Fatalf("expected ended session, got %+v", sessions)
	}

	// a fresh manager picks the job up again
	f2 := newFakeFetcher(nil)
	m2 := newTestManager(t, store, f2, ManagerOpts{Workers: 1})
	m2.Start(context.Background())
	waitStatus(t, store, "r", StatusCompleted)
}

func TestManager_ShutdownAbandonsStuckWorkers(t *testing.T) {
	store := newTestStore(t)
	release := make(chan struct{})
	f := newFakeFetcher(func(_ context.Context, _, _ string, _ int, cb ProgressFunc) error {
		cb(1, 100, 1)
		<-release
		return nil
	})
	ml := logger.NewMockLogger()
	m := newTestManager(t, store, f, ManagerOpts{Workers: 1, ShutdownTimeout: 50 * time.Millisecond, Logger: ml})
	m.Start(context.Background())
	m.Add("r", "r", "", nil)
	waitFor(t, "r to start", func() bool { return m.IsActive("r") })
	done := m.done
	t.Cleanup(func() {
		close(release)
		for _, d := range done {
			<-d
		}
	})

	start := time.Now()
	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Shutdown took %s with a 50ms timeout", elapsed)
	}
	found := false
	for _, w := range ml.WarningCalls() {
		if strings.Contains(w, "1 workers did not stop within 50ms") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected abandoned worker warning, got %v", ml.WarningCalls())
	}
}

func TestManager_StartTwice(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, store, newFakeFetcher(nil), ManagerOpts{})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrManagerRunning) {
		t.Fatalf("expected ErrManagerRunning, got %v", err)
	}
	if m.SessionID() == "" {
		t.Fatal("expected a session id")
	}
}

func TestManager_ProgressIsMonotonic(t *testing.T) {
	store := newTestStore(t)
	f := newFakeFetcher(func(ctx context.Context, ref, dest string, attempt int, cb ProgressFunc) error {
		cb(50, 100, 50)
		cb(30, 100, 30)
		cb(80, 100, 80)
		return nil
	})
	m := newTestManager(t, store, f, ManagerOpts{Workers: 1})
	var (
		mu   sync.Mutex
		seen []float64
	)
	m.OnProgress("r", func(downloaded, total int64, percent float64) {
		mu.Lock()
		seen = append(seen, percent)
		mu.Unlock()
	})
	m.Start(context.Background())
	m.Add("r", "r", "", nil)
	waitStatus(t, store, "r", StatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != 50 || seen[1] != 80 {
		t.Fatalf("expected [50 80], got %v", seen)
	}
	j, _ := store.Get("r")
	if j.Progress != 100 {
		t.Fatalf("expected 100%% on completion, got %f", j.Progress)
	}
}

func TestManager_RemoveAndClearFinished(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, store, newFakeFetcher(nil), ManagerOpts{Workers: 1})
	events := &eventLog{}
	m.OnEvent(events.record)
	m.Start(context.Background())
	m.Add("a", "a", "", nil)
	m.Add("b", "b", "", nil)
	waitStatus(t, store, "a", StatusCompleted)
	waitStatus(t, store, "b", StatusCompleted)

	m.OnProgress("a", func(int64, int64, float64) {})
	if err := m.Remove("a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := m.notifier.ProgressObservers(); got != 0 {
		t.Fatalf("expected Remove to drop the progress observer, %d left", got)
	}
	if events.count(EventDownloadRemoved, "a") != 1 {
		t.Fatal("expected removed event")
	}
	if err := m.Remove("a"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	m.Pause()
	m.Add("p", "p", "", nil)
	n, err := m.ClearFinished()
	if err != nil {
		t.Fatalf("ClearFinished: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 cleared, got %d", n)
	}
	list, _ := m.List()
	if len(list) != 1 || list[0].FileRef != "p" {
		t.Fatalf("expected only the pending job to remain, got %d", len(list))
	}
}

func TestManager_RemoveActiveCancels(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, store, newFakeFetcher(blockUntilCancelled), ManagerOpts{Workers: 1})
	m.Start(context.Background())
	m.Add("r", "r", "", nil)
	waitFor(t, "r to start", func() bool { return m.IsActive("r") })

	if err := m.Remove("r"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	waitFor(t, "worker to release r", func() bool { return !m.IsActive("r") })
	if _, err := store.Get("r"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected row to be gone, got %v", err)
	}
}

func TestManager_WorkerBound(t *testing.T) {
	store := newTestStore(t)
	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	f := newFakeFetcher(func(ctx context.Context, ref, dest string, attempt int, cb ProgressFunc) error {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		current--
		mu.Unlock()
		return nil
	})
	m := newTestManager(t, store, f, ManagerOpts{Workers: 2})
	m.Start(context.Background())
	refs := []string{"a", "b", "c", "d", "e", "f"}
	for _, r := range refs {
		m.Add(r, r, "", nil)
	}
	for _, r := range refs {
		waitStatus(t, store, r, StatusCompleted)
	}
	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Fatalf("expected at most 2 concurrent fetches, got %d", peak)
	}
}

func TestManager_Info(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, store, newFakeFetcher(nil), ManagerOpts{})
	info, err := m.Info(context.Background(), "r")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Size != 100 {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := m.Info(context.Background(), ""); !errors.Is(err, ErrEmptyFileRef) {
		t.Fatalf("expected ErrEmptyFileRef, got %v", err)
	}
}
