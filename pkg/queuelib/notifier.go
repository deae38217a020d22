package queuelib

import (
	"sync"
	"time"

	"github.com/warpdl/queuedl/pkg/logger"
)

// EventType names a job lifecycle notification.
type EventType string

const (
	EventDownloadAdded     EventType = "download_added"
	EventDownloadStarted   EventType = "download_started"
	EventDownloadCompleted EventType = "download_completed"
	EventDownloadFailed    EventType = "download_failed"
	EventDownloadCancelled EventType = "download_cancelled"
	EventDownloadRetrying  EventType = "download_retrying"
	EventDownloadRequeued  EventType = "download_requeued"
	EventDownloadRemoved   EventType = "download_removed"
	EventDownloadsPaused   EventType = "downloads_paused"
	EventDownloadsResumed  EventType = "downloads_resumed"
)

// Event is delivered to every status observer. Job is nil for events that
// do not concern a single download (pause and resume).
type Event struct {
	Type  EventType `json:"type"`
	Job   *Job      `json:"job,omitempty"`
	Error string    `json:"error,omitempty"`
	Time  time.Time `json:"time"`
}

// EventFunc observes lifecycle events.
type EventFunc func(Event)

// Notifier fans out progress and lifecycle notifications. A panicking
// observer is logged and never affects other observers or the caller.
type Notifier struct {
	l        logger.Logger
	progress *VMap[string, ProgressFunc]

	mu        sync.RWMutex
	observers map[uint64]EventFunc
	nextID    uint64
}

// NewNotifier creates an empty Notifier.
func NewNotifier(l logger.Logger) *Notifier {
	return &Notifier{
		l:         l,
		progress:  NewVMap[string, ProgressFunc](),
		observers: make(map[uint64]EventFunc),
	}
}

// SetProgressObserver registers fn for fileRef. The last registration wins.
// A nil fn removes the observer.
func (n *Notifier) SetProgressObserver(fileRef string, fn ProgressFunc) {
	if fn == nil {
		n.progress.Delete(fileRef)
		return
	}
	n.progress.Set(fileRef, fn)
}

// ProgressObservers returns the number of registered progress observers.
func (n *Notifier) ProgressObservers() int {
	return n.progress.Len()
}

// Progress delivers a progress update to the observer of fileRef, if any.
func (n *Notifier) Progress(fileRef string, downloaded, total int64, percent float64) {
	fn, ok := n.progress.Get(fileRef)
	if !ok {
		return
	}
	n.guard("progress observer", func() { fn(downloaded, total, percent) })
}

// Subscribe registers fn for lifecycle events and returns a function that
// removes it.
func (n *Notifier) Subscribe(fn EventFunc) (unsubscribe func()) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.observers[id] = fn
	n.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.observers, id)
			n.mu.Unlock()
		})
	}
}

// Notify sends ev to every subscribed observer.
func (n *Notifier) Notify(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	n.mu.RLock()
	fns := make([]EventFunc, 0, len(n.observers))
	for _, fn := range n.observers {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()
	for _, fn := range fns {
		n.guard("event observer", func() { fn(ev) })
	}
}

func (n *Notifier) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.l.Error("%s panicked: %v", name, r)
		}
	}()
	fn()
}
