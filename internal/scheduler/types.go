package scheduler

import "time"

// Task is a pending trigger in the scheduler heap.
type Task struct {
	// Name identifies the task to the trigger callback and to Remove.
	Name string
	// At is the wall-clock time the task fires.
	At time.Time
	// Cron re-arms the task after it fires. Empty means one-shot.
	Cron string
}
