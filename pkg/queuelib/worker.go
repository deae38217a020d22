package queuelib

import (
	"context"
	"errors"
)

// work is the loop of one worker: wait for the gate, take a descriptor,
// run it, repeat until the manager stops.
func (m *Manager) work(id int) {
	for {
		if err := m.gate.Wait(m.ctx); err != nil {
			return
		}
		desc, ok := m.queue.Dequeue(m.opts.PollInterval)
		if !ok {
			if m.ctx.Err() != nil {
				return
			}
			continue
		}
		if m.ctx.Err() != nil {
			m.queue.PushFront(desc)
			return
		}
		if !m.gate.IsOpen() {
			// paused between Wait and Dequeue
			m.queue.PushFront(desc)
			continue
		}
		m.process(id, desc)
	}
}

// claim re-reads the job and registers it as active. It returns nil when
// the descriptor is stale: the row is gone, in a terminal status, or
// another worker owns the same file reference.
func (m *Manager) claim(desc Descriptor) (*activeJob, *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[desc.FileRef]; busy {
		return nil, nil
	}
	job, err := m.store.Get(desc.FileRef)
	switch {
	case errors.Is(err, ErrJobNotFound):
		return nil, nil
	case err != nil:
		m.l.Warning("Failed to reload %s, using queued copy: %v", desc.FileRef, err)
		job = &Job{
			ID:          desc.ID,
			FileRef:     desc.FileRef,
			DisplayName: desc.DisplayName,
			TargetPath:  desc.TargetPath,
			TotalBytes:  UnknownSize,
			RetryCount:  desc.RetryCount,
		}
	case job.Status.IsTerminal():
		return nil, nil
	}
	ctx, cancel := context.WithCancelCause(m.ctx)
	aj := &activeJob{
		desc:       job.Descriptor(),
		ctx:        ctx,
		cancel:     cancel,
		total:      job.TotalBytes,
		retryCount: job.RetryCount,
	}
	m.active[desc.FileRef] = aj
	if err := m.store.UpdateStatus(desc.FileRef, StatusDownloading, ""); err != nil {
		m.l.Warning("Failed to mark %s downloading: %v", desc.FileRef, err)
	}
	job.Status = StatusDownloading
	job.ErrorMessage = ""
	return aj, job
}

// release drops aj from the active set if it still owns its file reference.
func (m *Manager) release(aj *activeJob) {
	m.mu.Lock()
	if m.active[aj.desc.FileRef] == aj {
		delete(m.active, aj.desc.FileRef)
	}
	m.mu.Unlock()
	aj.cancel(nil)
}

func (m *Manager) process(worker int, desc Descriptor) {
	aj, job := m.claim(desc)
	if aj == nil {
		return
	}
	defer m.release(aj)

	ref := aj.desc.FileRef
	m.l.Info("Worker %d: downloading %s to %s", worker, ref, aj.desc.TargetPath)
	m.notifier.Notify(Event{Type: EventDownloadStarted, Job: job})

	err := safeCall(m.l, "fetch "+ref, func() error {
		return m.fetcher.Fetch(aj.ctx, ref, aj.desc.TargetPath, func(downloaded, total int64, percent float64) {
			m.onProgress(aj, downloaded, total, percent)
		})
	})

	switch {
	case aj.cancelled.Load():
		m.finishCancelled(aj)
	case err == nil:
		m.finishCompleted(aj)
	case m.ctx.Err() != nil:
		m.requeue(aj, false)
	default:
		m.handleFailure(aj, err)
	}
}

func (m *Manager) onProgress(aj *activeJob, downloaded, total int64, percent float64) {
	if aj.cancelled.Load() {
		return
	}
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	aj.mu.Lock()
	if percent < aj.maxPercent {
		aj.mu.Unlock()
		return
	}
	aj.maxPercent = percent
	aj.downloaded = downloaded
	if total >= 0 {
		aj.total = total
	}
	aj.mu.Unlock()

	ref := aj.desc.FileRef
	m.speed.Update(ref, downloaded)
	if err := m.store.UpdateProgress(ref, percent, downloaded, total); err != nil {
		m.l.Warning("Failed to persist progress of %s: %v", ref, err)
	}
	m.notifier.Progress(ref, downloaded, total, percent)
}

// snapshot reads the job back for event payloads, falling back to the
// descriptor when the row is unavailable.
func (m *Manager) snapshot(aj *activeJob, status Status) *Job {
	if j, err := m.store.Get(aj.desc.FileRef); err == nil {
		return j
	}
	aj.mu.Lock()
	defer aj.mu.Unlock()
	return &Job{
		ID:              aj.desc.ID,
		FileRef:         aj.desc.FileRef,
		DisplayName:     aj.desc.DisplayName,
		TargetPath:      aj.desc.TargetPath,
		TotalBytes:      aj.total,
		DownloadedBytes: aj.downloaded,
		Progress:        aj.maxPercent,
		Status:          status,
		RetryCount:      aj.retryCount,
	}
}

func (m *Manager) finishCompleted(aj *activeJob) {
	ref := aj.desc.FileRef
	aj.mu.Lock()
	total := aj.total
	if total < aj.downloaded {
		total = aj.downloaded
	}
	aj.mu.Unlock()
	if err := m.store.UpdateProgress(ref, 100, total, total); err != nil {
		m.l.Warning("Failed to persist final progress of %s: %v", ref, err)
	}
	if err := m.store.UpdateStatus(ref, StatusCompleted, ""); err != nil {
		m.l.Warning("Failed to mark %s completed: %v", ref, err)
	}
	m.speed.Forget(ref)
	m.l.Info("Completed %s", ref)
	m.notifier.Notify(Event{Type: EventDownloadCompleted, Job: m.snapshot(aj, StatusCompleted)})
}

func (m *Manager) finishCancelled(aj *activeJob) {
	ref := aj.desc.FileRef
	// Cancel normally persists the status itself
	if j, err := m.store.Get(ref); err == nil && j.Status != StatusCancelled {
		if err := m.store.UpdateStatus(ref, StatusCancelled, ""); err != nil {
			m.l.Warning("Failed to mark %s cancelled: %v", ref, err)
		}
	}
	m.speed.Forget(ref)
	m.l.Info("Cancelled %s", ref)
	m.notifier.Notify(Event{Type: EventDownloadCancelled, Job: m.snapshot(aj, StatusCancelled)})
}

func (m *Manager) handleFailure(aj *activeJob, cause error) {
	ref := aj.desc.FileRef
	m.speed.Forget(ref)
	aj.mu.Lock()
	count := aj.retryCount
	aj.mu.Unlock()

	if !m.retry.ShouldRetry(count, cause) {
		if err := m.store.UpdateStatus(ref, StatusFailed, cause.Error()); err != nil {
			m.l.Warning("Failed to mark %s failed: %v", ref, err)
		}
		m.l.Error("Download %s failed after %d retries: %v", ref, count, cause)
		m.notifier.Notify(Event{
			Type:  EventDownloadFailed,
			Job:   m.snapshot(aj, StatusFailed),
			Error: cause.Error(),
		})
		return
	}

	n, err := m.store.IncrementRetry(ref)
	if err != nil {
		m.l.Warning("Failed to persist retry count of %s: %v", ref, err)
		n = count + 1
	}
	aj.mu.Lock()
	aj.retryCount = n
	aj.mu.Unlock()
	m.l.Warning("Download %s failed, retrying (%d/%d) in %s: %v", ref, n, m.retry.MaxRetries, m.retry.Delay, cause)
	m.notifier.Notify(Event{
		Type:  EventDownloadRetrying,
		Job:   m.snapshot(aj, StatusDownloading),
		Error: cause.Error(),
	})

	if err := m.retry.Wait(aj.ctx); err != nil {
		if aj.cancelled.Load() {
			m.finishCancelled(aj)
			return
		}
		m.requeue(aj, false)
		return
	}
	m.requeue(aj, true)
}

// requeue returns aj to Pending and releases it. When enqueue is set the
// descriptor goes back on the queue, otherwise the next Start picks it up
// from the store.
func (m *Manager) requeue(aj *activeJob, enqueue bool) {
	ref := aj.desc.FileRef
	m.mu.Lock()
	if aj.cancelled.Load() {
		m.mu.Unlock()
		m.finishCancelled(aj)
		return
	}
	if m.active[ref] == aj {
		delete(m.active, ref)
	}
	m.speed.Forget(ref)
	if err := m.store.UpdateStatus(ref, StatusPending, ""); err != nil {
		m.l.Warning("Failed to return %s to pending: %v", ref, err)
	}
	aj.mu.Lock()
	desc := aj.desc
	desc.RetryCount = aj.retryCount
	aj.mu.Unlock()
	if enqueue && m.ctx.Err() == nil {
		m.queue.EnqueueUnique(desc)
	}
	m.mu.Unlock()
	if !enqueue {
		m.l.Info("Interrupted %s, will resume on next start", ref)
	}
}

