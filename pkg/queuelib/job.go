package queuelib

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a download job.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// UnknownSize marks a job whose total size has not been reported yet.
const UnknownSize int64 = -1

var allStatuses = []Status{
	StatusPending,
	StatusDownloading,
	StatusPaused,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

// Statuses returns every status in lifecycle order.
func Statuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, st := range allStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends a job's lifecycle until an explicit
// retry or re-add.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ParseStatus converts a string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// Metadata carries caller supplied context (e.g. originating chat and
// message ids). It is stored opaquely and never interpreted.
type Metadata map[string]string

// Job is the persisted record of one download.
type Job struct {
	ID              int64      `json:"id"`
	FileRef         string     `json:"file_ref"`
	DisplayName     string     `json:"display_name"`
	TargetPath      string     `json:"target_path"`
	TotalBytes      int64      `json:"total_bytes"`
	DownloadedBytes int64      `json:"downloaded_bytes"`
	Progress        float64    `json:"progress"`
	Status          Status     `json:"status"`
	RetryCount      int        `json:"retry_count"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Metadata        Metadata   `json:"metadata,omitempty"`
}

// SizeKnown reports whether the total size has been reported.
func (j *Job) SizeKnown() bool {
	return j.TotalBytes >= 0
}

// Descriptor returns the queue entry for j.
func (j *Job) Descriptor() Descriptor {
	return Descriptor{
		ID:          j.ID,
		FileRef:     j.FileRef,
		DisplayName: j.DisplayName,
		TargetPath:  j.TargetPath,
		RetryCount:  j.RetryCount,
	}
}

// Descriptor is the transient queue entry carried from the queue to a worker.
type Descriptor struct {
	ID          int64
	FileRef     string
	DisplayName string
	TargetPath  string
	RetryCount  int
}

// Snapshot is a job row together with its live transfer rate.
type Snapshot struct {
	*Job
	Speed float64 `json:"speed"`
}
