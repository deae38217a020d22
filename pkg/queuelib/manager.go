package queuelib

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/warpdl/queuedl/pkg/logger"
)

const (
	DefaultWorkers         = 3
	DefaultPollInterval    = time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultDownloadDir     = "downloads"
)

// ManagerOpts configures a Manager. Zero values select the defaults.
type ManagerOpts struct {
	// Workers is the number of concurrent transfers.
	Workers int
	// MaxRetries is the number of automatic retries after the first attempt.
	// A negative value disables retries.
	MaxRetries int
	// RetryDelay is the fixed wait before a failed job is re-queued.
	RetryDelay time.Duration
	// PollInterval bounds how long an idle worker blocks on the queue.
	PollInterval time.Duration
	// ShutdownTimeout bounds how long Shutdown waits for workers.
	ShutdownTimeout time.Duration
	// DownloadDir is the directory used when Add is given no destination.
	DownloadDir string
	Logger      logger.Logger
	// Clock overrides time.Now for the speed tracker.
	Clock func() time.Time
}

func (o *ManagerOpts) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	} else if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = DefaultShutdownTimeout
	}
	if o.DownloadDir == "" {
		o.DownloadDir = DefaultDownloadDir
	}
	if o.Logger == nil {
		o.Logger = logger.NewNopLogger()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// activeJob is the in-memory handle of a job owned by a worker.
type activeJob struct {
	desc      Descriptor
	ctx       context.Context
	cancel    context.CancelCauseFunc
	cancelled atomic.Bool

	mu         sync.Mutex
	maxPercent float64
	downloaded int64
	total      int64
	retryCount int
}

// Manager schedules download jobs over a bounded pool of workers.
type Manager struct {
	store    *Store
	fetcher  Fetcher
	opts     ManagerOpts
	l        logger.Logger
	queue    *JobQueue
	gate     *Gate
	speed    *SpeedTracker
	notifier *Notifier
	retry    RetryPolicy

	// mu guards active and every transition that must agree with it.
	mu     sync.Mutex
	active map[string]*activeJob

	running   atomic.Bool
	ctx       context.Context
	stop      context.CancelCauseFunc
	done      []chan struct{}
	sessionID string
}

// NewManager creates a Manager persisting to store and transferring with
// fetcher. Call Start to launch the workers.
func NewManager(store *Store, fetcher Fetcher, opts ManagerOpts) *Manager {
	opts.setDefaults()
	maxRetries := opts.MaxRetries
	return &Manager{
		store:    store,
		fetcher:  fetcher,
		opts:     opts,
		l:        opts.Logger,
		queue:    NewJobQueue(),
		gate:     NewGate(),
		speed:    NewSpeedTracker(opts.Clock),
		notifier: NewNotifier(opts.Logger),
		retry:    RetryPolicy{MaxRetries: maxRetries, Delay: opts.RetryDelay},
		active:   make(map[string]*activeJob),
	}
}

// Opts returns the effective options.
func (m *Manager) Opts() ManagerOpts {
	return m.opts
}

// SessionID returns the id of the current daemon session, empty before Start.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Start re-enqueues unfinished jobs from the store and launches the
// workers. Jobs left Pending, Paused, Failed or Downloading by a previous
// run are reset to Pending and queued again.
func (m *Manager) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrManagerRunning
	}
	m.ctx, m.stop = context.WithCancelCause(ctx)

	sid := uuid.NewString()
	if err := m.store.BeginSession(sid); err != nil {
		m.l.Warning("Failed to record session: %v", err)
	}
	m.mu.Lock()
	m.sessionID = sid
	m.mu.Unlock()

	n, err := m.requeueUnfinished()
	if err != nil {
		m.running.Store(false)
		m.stop(err)
		return err
	}
	m.l.Info("Loaded %d unfinished downloads", n)

	m.done = make([]chan struct{}, m.opts.Workers)
	for i := range m.done {
		done := make(chan struct{})
		m.done[i] = done
		id := i
		safeGo(m.l, done, fmt.Sprintf("worker-%d", id), nil, func() {
			m.work(id)
		})
	}
	m.l.Info("Started %d workers", m.opts.Workers)
	return nil
}

func (m *Manager) requeueUnfinished() (int, error) {
	jobs, err := m.store.ListByStatus(StatusPending, StatusPaused, StatusFailed, StatusDownloading)
	if err != nil {
		return 0, err
	}
	for _, j := range jobs {
		if j.Status != StatusPending {
			if err := m.store.UpdateStatus(j.FileRef, StatusPending, ""); err != nil {
				m.l.Warning("Failed to reset %s download %s: %v", j.Status, j.FileRef, err)
			}
		}
		m.queue.EnqueueUnique(j.Descriptor())
	}
	return len(jobs), nil
}

// Shutdown stops the workers. Active transfers are interrupted and their
// jobs returned to Pending so the next Start resumes them. Workers that do
// not exit within the shutdown timeout are abandoned with a warning.
func (m *Manager) Shutdown() error {
	if !m.running.CompareAndSwap(true, false) {
		return ErrManagerStopped
	}
	m.l.Info("Shutting down download manager")
	m.mu.Lock()
	for _, aj := range m.active {
		aj.cancel(ErrShutdown)
	}
	sid := m.sessionID
	m.mu.Unlock()
	m.stop(ErrShutdown)
	m.gate.Open()

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ShutdownTimeout)
	defer cancel()
	abandoned := 0
	for _, done := range m.done {
		select {
		case <-done:
		case <-ctx.Done():
			abandoned++
		}
	}
	if abandoned > 0 {
		m.l.Warning("%d workers did not stop within %s", abandoned, m.opts.ShutdownTimeout)
	}
	if err := m.store.EndSession(sid); err != nil {
		m.l.Warning("Failed to close session %s: %v", sid, err)
	}
	m.l.Info("Download manager stopped")
	return nil
}

// Running reports whether the workers have been started.
func (m *Manager) Running() bool {
	return m.running.Load()
}

// Add persists a Pending job for fileRef and enqueues it. An existing
// record for fileRef is reset in place keeping its id. destDir overrides
// the default download directory. displayName falls back to a name
// derived from fileRef.
func (m *Manager) Add(fileRef, displayName, destDir string, meta Metadata) (int64, error) {
	if fileRef == "" {
		return 0, ErrEmptyFileRef
	}
	if displayName == "" {
		displayName = DefaultDisplayName(fileRef)
	}
	if destDir == "" {
		destDir = m.opts.DownloadDir
	}
	job := &Job{
		FileRef:     fileRef,
		DisplayName: displayName,
		TargetPath:  filepath.Join(destDir, filepath.Base(displayName)),
		TotalBytes:  UnknownSize,
		Metadata:    meta,
	}

	m.mu.Lock()
	if _, busy := m.active[fileRef]; busy {
		m.mu.Unlock()
		return 0, ErrJobActive
	}
	id, err := m.store.Upsert(job)
	if err != nil {
		m.mu.Unlock()
		return 0, err
	}
	m.queue.EnqueueUnique(job.Descriptor())
	m.mu.Unlock()

	m.l.Info("Queued %s as %s", fileRef, job.TargetPath)
	m.notifier.Notify(Event{Type: EventDownloadAdded, Job: job})
	return id, nil
}

// DefaultDisplayName derives a file name from a file reference.
func DefaultDisplayName(fileRef string) string {
	const n = 10
	r := []rune(fileRef)
	if len(r) > n {
		r = r[:n]
	}
	return "file_" + string(r)
}

// Get returns the job for fileRef with its live speed.
func (m *Manager) Get(fileRef string) (*Snapshot, error) {
	j, err := m.store.Get(fileRef)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Job: j, Speed: m.speed.Speed(fileRef)}, nil
}

// List returns every job, newest first, with live speeds.
func (m *Manager) List() ([]*Snapshot, error) {
	jobs, err := m.store.ListAll()
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot, len(jobs))
	for i, j := range jobs {
		out[i] = &Snapshot{Job: j, Speed: m.speed.Speed(j.FileRef)}
	}
	return out, nil
}

// Pause stops workers from taking new jobs. Transfers in flight continue.
func (m *Manager) Pause() {
	if !m.gate.IsOpen() {
		return
	}
	m.gate.Close()
	m.l.Info("Downloads paused")
	m.notifier.Notify(Event{Type: EventDownloadsPaused})
}

// Resume lets workers take new jobs again.
func (m *Manager) Resume() {
	if m.gate.IsOpen() {
		return
	}
	m.gate.Open()
	m.l.Info("Downloads resumed")
	m.notifier.Notify(Event{Type: EventDownloadsResumed})
}

// IsPaused reports whether the gate is closed.
func (m *Manager) IsPaused() bool {
	return !m.gate.IsOpen()
}

// Cancel stops fileRef. An active transfer is signalled and its worker
// emits download_cancelled once it unwinds. A queued job is marked
// Cancelled immediately. Finished jobs return ErrNotCancellable.
func (m *Manager) Cancel(fileRef string) error {
	m.mu.Lock()
	if aj, ok := m.active[fileRef]; ok {
		aj.cancelled.Store(true)
		aj.cancel(ErrCancelled)
		if err := m.store.UpdateStatus(fileRef, StatusCancelled, ""); err != nil {
			m.l.Warning("Failed to mark %s cancelled: %v", fileRef, err)
		}
		m.mu.Unlock()
		m.speed.Forget(fileRef)
		m.l.Info("Cancelling active download %s", fileRef)
		return nil
	}
	job, err := m.store.Get(fileRef)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	switch job.Status {
	case StatusPending, StatusPaused, StatusDownloading:
	default:
		m.mu.Unlock()
		return ErrNotCancellable
	}
	if err := m.store.UpdateStatus(fileRef, StatusCancelled, ""); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	m.l.Info("Cancelled queued download %s", fileRef)
	job.Status = StatusCancelled
	m.notifier.Notify(Event{Type: EventDownloadCancelled, Job: job})
	return nil
}

// Retry re-queues a Failed or Cancelled job. Failed jobs keep their retry
// count; Cancelled jobs start over from zero.
func (m *Manager) Retry(fileRef string) error {
	m.mu.Lock()
	if _, busy := m.active[fileRef]; busy {
		m.mu.Unlock()
		return ErrJobActive
	}
	job, err := m.store.Get(fileRef)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	switch job.Status {
	case StatusFailed:
	case StatusCancelled:
		if err := m.store.ResetRetry(fileRef); err != nil {
			m.mu.Unlock()
			return err
		}
		job.RetryCount = 0
	default:
		m.mu.Unlock()
		return ErrNotRetryable
	}
	if err := m.store.UpdateStatus(fileRef, StatusPending, ""); err != nil {
		m.mu.Unlock()
		return err
	}
	job.Status = StatusPending
	job.ErrorMessage = ""
	m.queue.EnqueueUnique(job.Descriptor())
	m.mu.Unlock()

	m.l.Info("Re-queued %s", fileRef)
	m.notifier.Notify(Event{Type: EventDownloadRequeued, Job: job})
	return nil
}

// Remove deletes the record of fileRef, cancelling it first when active.
func (m *Manager) Remove(fileRef string) error {
	m.mu.Lock()
	if aj, ok := m.active[fileRef]; ok {
		aj.cancelled.Store(true)
		aj.cancel(ErrCancelled)
	}
	job, err := m.store.Get(fileRef)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if _, err := m.store.Delete(fileRef); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	m.speed.Forget(fileRef)
	m.notifier.SetProgressObserver(fileRef, nil)
	m.l.Info("Removed %s", fileRef)
	m.notifier.Notify(Event{Type: EventDownloadRemoved, Job: job})
	return nil
}

// ClearFinished deletes Completed and Cancelled records and returns how
// many were removed.
func (m *Manager) ClearFinished() (int64, error) {
	n, err := m.store.DeleteByStatus(StatusCompleted, StatusCancelled)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.l.Info("Cleared %d finished downloads", n)
	}
	return n, nil
}

// Speed returns the smoothed transfer rate of fileRef in bytes per second.
func (m *Manager) Speed(fileRef string) float64 {
	return m.speed.Speed(fileRef)
}

// ActiveCount returns the number of jobs currently owned by workers.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// IsActive reports whether fileRef is owned by a worker.
func (m *Manager) IsActive(fileRef string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[fileRef]
	return ok
}

// QueueLen returns the number of descriptors waiting for a worker.
func (m *Manager) QueueLen() int {
	return m.queue.Len()
}

// Counts returns the number of stored jobs per status.
func (m *Manager) Counts() (map[Status]int, error) {
	return m.store.CountByStatus()
}

// OnProgress registers the progress observer of fileRef. The last
// registration wins and a nil fn removes it.
func (m *Manager) OnProgress(fileRef string, fn ProgressFunc) {
	m.notifier.SetProgressObserver(fileRef, fn)
}

// OnEvent subscribes fn to lifecycle events.
func (m *Manager) OnEvent(fn EventFunc) (unsubscribe func()) {
	return m.notifier.Subscribe(fn)
}

// Info asks the backend for remote metadata of fileRef.
func (m *Manager) Info(ctx context.Context, fileRef string) (*FileInfo, error) {
	if fileRef == "" {
		return nil, ErrEmptyFileRef
	}
	return m.fetcher.GetInfo(ctx, fileRef)
}
