package queuelib

import (
	"sync"
	"time"
)

const (
	// speedSampleInterval is the minimum time between two rate samples.
	speedSampleInterval = 500 * time.Millisecond
	// speedSmoothing is the weight of the newest sample in the moving average.
	speedSmoothing = 0.3
)

type speedSample struct {
	at    time.Time
	bytes int64
	rate  float64
}

// SpeedTracker keeps an exponentially smoothed transfer rate per job.
type SpeedTracker struct {
	mu      sync.Mutex
	samples map[string]*speedSample
	now     func() time.Time
}

// NewSpeedTracker creates a tracker using now as its clock. A nil now uses
// time.Now.
func NewSpeedTracker(now func() time.Time) *SpeedTracker {
	if now == nil {
		now = time.Now
	}
	return &SpeedTracker{
		samples: make(map[string]*speedSample),
		now:     now,
	}
}

// Update records that fileRef has downloaded bytes in total. The first
// call only seeds the sample. Later calls recompute the rate when more
// than half a second has passed since the previous sample.
func (t *SpeedTracker) Update(fileRef string, downloaded int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	s, ok := t.samples[fileRef]
	if !ok {
		t.samples[fileRef] = &speedSample{at: now, bytes: downloaded}
		return
	}
	elapsed := now.Sub(s.at)
	if elapsed <= speedSampleInterval {
		return
	}
	inst := float64(downloaded-s.bytes) / elapsed.Seconds()
	if inst < 0 {
		inst = 0
	}
	s.rate = (1-speedSmoothing)*s.rate + speedSmoothing*inst
	s.at = now
	s.bytes = downloaded
}

// Speed returns the smoothed rate in bytes per second, 0 if untracked.
func (t *SpeedTracker) Speed(fileRef string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.samples[fileRef]; ok {
		return s.rate
	}
	return 0
}

// Forget drops the sample for fileRef.
func (t *SpeedTracker) Forget(fileRef string) {
	t.mu.Lock()
	delete(t.samples, fileRef)
	t.mu.Unlock()
}

// Len returns the number of tracked jobs.
func (t *SpeedTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}
