package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/warpdl/queuedl/pkg/logger"
)

const maxSleepCap = 60 * time.Second

// Scheduler fires named tasks at their trigger time. Cron tasks are
// re-armed with their next occurrence after every firing.
type Scheduler struct {
	addChan    chan Task
	removeChan chan string
	lenChan    chan chan int
	ctx        context.Context
	done       chan struct{}
}

// New starts a Scheduler calling onTrigger for every task that fires. The
// goroutine exits when ctx is cancelled. onTrigger runs on the scheduler
// goroutine, so it should not block for long.
func New(ctx context.Context, onTrigger func(Task)) *Scheduler {
	s := &Scheduler{
		addChan:    make(chan Task, 64),
		removeChan: make(chan string, 64),
		lenChan:    make(chan chan int),
		ctx:        ctx,
		done:       make(chan struct{}),
	}
	go s.run(onTrigger)
	return s
}

// Add arms a task.
func (s *Scheduler) Add(t Task) {
	select {
	case s.addChan <- t:
	case <-s.ctx.Done():
	}
}

// AddCron arms a recurring task firing at every occurrence of expr.
func (s *Scheduler) AddCron(name, expr string) error {
	next, err := nextCronOccurrence(expr, time.Now())
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.Add(Task{Name: name, At: next, Cron: expr})
	return nil
}

// Remove disarms every task called name.
func (s *Scheduler) Remove(name string) {
	select {
	case s.removeChan <- name:
	case <-s.ctx.Done():
	}
}

// Len returns the number of armed tasks, or 0 once stopped.
func (s *Scheduler) Len() int {
	reply := make(chan int, 1)
	select {
	case s.lenChan <- reply:
		return <-reply
	case <-s.done:
		return 0
	}
}

// Done is closed when the scheduler goroutine has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) run(onTrigger func(Task)) {
	defer close(s.done)
	h := &taskHeap{}
	heap.Init(h)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if h.Len() == 0 {
			return nil
		}
		dur := time.Until((*h)[0].At)
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()
	for {
		select {
		case <-s.ctx.Done():
			return

		case t := <-s.addChan:
			pushTask(h, t)
			timerCh = resetTimer()

		case name := <-s.removeChan:
			removeTask(h, name)
			timerCh = resetTimer()

		case reply := <-s.lenChan:
			reply <- h.Len()

		case <-timerCh:
			now := time.Now()
			for h.Len() > 0 && !(*h)[0].At.After(now) {
				t := popTask(h)
				onTrigger(t)
				if t.Cron == "" {
					continue
				}
				if next, err := nextCronOccurrence(t.Cron, time.Now()); err == nil {
					pushTask(h, Task{Name: t.Name, At: next, Cron: t.Cron})
				}
			}
			timerCh = resetTimer()
		}
	}
}

// nextCronOccurrence returns the first tick of expr strictly after start.
func nextCronOccurrence(expr string, start time.Time) (time.Time, error) {
	return gronx.NextTickAfter(expr, start, false)
}

// Task names used by the daemon.
const (
	TaskClearFinished = "clear_finished"
	TaskPause         = "pause"
	TaskResume        = "resume"
)

// Queue is the part of the queue manager driven by housekeeping tasks.
type Queue interface {
	ClearFinished() (int64, error)
	Pause()
	Resume()
}

// Housekeeping holds the cron expressions of the daemon's periodic tasks.
// Empty expressions are not scheduled.
type Housekeeping struct {
	ClearFinished string
	Pause         string
	Resume        string
}

// Start arms the configured housekeeping tasks against q and returns the
// running Scheduler.
func Start(ctx context.Context, hk Housekeeping, q Queue, l logger.Logger) (*Scheduler, error) {
	if l == nil {
		l = logger.NewNopLogger()
	}
	tasks := []struct{ name, expr string }{
		{TaskClearFinished, hk.ClearFinished},
		{TaskPause, hk.Pause},
		{TaskResume, hk.Resume},
	}
	gx := gronx.New()
	for _, e := range tasks {
		if e.expr != "" && !gx.IsValid(e.expr) {
			return nil, fmt.Errorf("schedule %s: invalid cron expression %q", e.name, e.expr)
		}
	}
	s := New(ctx, func(t Task) { runTask(t, q, l) })
	for _, e := range tasks {
		if e.expr == "" {
			continue
		}
		if err := s.AddCron(e.name, e.expr); err != nil {
			return nil, err
		}
		l.Info("scheduler: %s armed with %q", e.name, e.expr)
	}
	return s, nil
}

func runTask(t Task, q Queue, l logger.Logger) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("scheduler: task %s panicked: %v", t.Name, r)
		}
	}()
	switch t.Name {
	case TaskClearFinished:
		n, err := q.ClearFinished()
		if err != nil {
			l.Error("scheduler: clear finished: %v", err)
			return
		}
		l.Info("scheduler: cleared %d finished downloads", n)
	case TaskPause:
		q.Pause()
		l.Info("scheduler: queue paused")
	case TaskResume:
		q.Resume()
		l.Info("scheduler: queue resumed")
	default:
		l.Warning("scheduler: unknown task %q", t.Name)
	}
}
