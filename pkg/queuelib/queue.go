package queuelib

import (
	"sync"
	"time"
)

// JobQueue is an unbounded FIFO of descriptors safe for concurrent
// producers and consumers.
type JobQueue struct {
	mu    sync.Mutex
	items []Descriptor
	// ready is signalled (non-blocking) whenever an item is pushed.
	ready chan struct{}
}

// NewJobQueue creates an empty queue.
func NewJobQueue() *JobQueue {
	return &JobQueue{ready: make(chan struct{}, 1)}
}

// Enqueue appends d to the tail of the queue.
func (q *JobQueue) Enqueue(d Descriptor) {
	q.mu.Lock()
	q.items = append(q.items, d)
	q.mu.Unlock()
	q.signal()
}

// EnqueueUnique appends d unless a descriptor for the same file reference
// is already waiting. It reports whether d was added.
func (q *JobQueue) EnqueueUnique(d Descriptor) bool {
	q.mu.Lock()
	for _, it := range q.items {
		if it.FileRef == d.FileRef {
			q.mu.Unlock()
			return false
		}
	}
	q.items = append(q.items, d)
	q.mu.Unlock()
	q.signal()
	return true
}

// PushFront puts d back at the head of the queue. Workers use it to hand
// back a descriptor they dequeued while the gate was closing.
func (q *JobQueue) PushFront(d Descriptor) {
	q.mu.Lock()
	q.items = append([]Descriptor{d}, q.items...)
	q.mu.Unlock()
	q.signal()
}

func (q *JobQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *JobQueue) pop() (Descriptor, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Descriptor{}, false
	}
	d := q.items[0]
	q.items[0] = Descriptor{}
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// keep other waiters awake while work remains
		q.signal()
	}
	return d, true
}

// Dequeue removes and returns the head of the queue, waiting up to timeout
// for an item to arrive. It returns false on timeout.
func (q *JobQueue) Dequeue(timeout time.Duration) (Descriptor, bool) {
	if d, ok := q.pop(); ok {
		return d, true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.ready:
			if d, ok := q.pop(); ok {
				return d, true
			}
		case <-timer.C:
			return q.pop()
		}
	}
}

// Len returns the number of queued descriptors.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the queued descriptors in order.
func (q *JobQueue) Items() []Descriptor {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Descriptor(nil), q.items...)
}
