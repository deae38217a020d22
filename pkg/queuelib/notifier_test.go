package queuelib

import (
	"sync/atomic"
	"testing"

	"github.com/warpdl/queuedl/pkg/logger"
)

func TestNotifier_PanickingObserverIsIsolated(t *testing.T) {
	l := logger.NewMockLogger()
	n := NewNotifier(l)

	var calls atomic.Int32
	n.Subscribe(func(Event) { panic("observer bug") })
	n.Subscribe(func(Event) { calls.Add(1) })

	n.Notify(Event{Type: EventDownloadAdded, Job: &Job{FileRef: "r"}})

	if calls.Load() != 1 {
		t.Fatalf("expected healthy observer to run once, got %d", calls.Load())
	}
	if len(l.ErrorCalls()) != 1 {
		t.Fatalf("expected the panic to be logged, got %v", l.ErrorCalls())
	}
}

func TestNotifier_Unsubscribe(t *testing.T) {
	n := NewNotifier(logger.NewNopLogger())
	var calls atomic.Int32
	unsub := n.Subscribe(func(Event) { calls.Add(1) })
	n.Notify(Event{Type: EventDownloadsPaused})
	unsub()
	unsub()
	n.Notify(Event{Type: EventDownloadsResumed})
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestNotifier_ProgressLastRegistrationWins(t *testing.T) {
	n := NewNotifier(logger.NewNopLogger())
	var first, second atomic.Int32
	n.SetProgressObserver("r", func(int64, int64, float64) { first.Add(1) })
	n.SetProgressObserver("r", func(int64, int64, float64) { second.Add(1) })

	n.Progress("r", 1, 2, 50)
	n.Progress("other", 1, 2, 50)

	if first.Load() != 0 || second.Load() != 1 {
		t.Fatalf("expected only the last observer, got first=%d second=%d", first.Load(), second.Load())
	}
	if n.ProgressObservers() != 1 {
		t.Fatalf("expected 1 observer, got %d", n.ProgressObservers())
	}

	n.SetProgressObserver("r", nil)
	n.Progress("r", 2, 2, 100)
	if second.Load() != 1 {
		t.Fatal("expected removed observer not to be called")
	}
	if n.ProgressObservers() != 0 {
		t.Fatalf("expected no observers, got %d", n.ProgressObservers())
	}
}

func TestNotifier_PanickingProgressObserver(t *testing.T) {
	n := NewNotifier(logger.NewNopLogger())
	n.SetProgressObserver("r", func(int64, int64, float64) { panic("boom") })
	n.Progress("r", 1, 1, 100)
}
