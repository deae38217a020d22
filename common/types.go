package common

import (
	"time"

	"github.com/warpdl/queuedl/pkg/queuelib"
)

type VersionResult struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildType string `json:"buildType,omitempty"`
}

type AddParams struct {
	FileRef     string            `json:"fileRef"`
	DisplayName string            `json:"displayName,omitempty"`
	Dir         string            `json:"dir,omitempty"`
	Metadata    queuelib.Metadata `json:"metadata,omitempty"`
}

type AddResult struct {
	ID      int64  `json:"id"`
	FileRef string `json:"fileRef"`
}

// RefParams addresses a single job.
type RefParams struct {
	FileRef string `json:"fileRef"`
}

// ListParams filters queue.list. An empty Status list returns every job.
type ListParams struct {
	Status []queuelib.Status `json:"status,omitempty"`
}

type ListResult struct {
	Downloads []*queuelib.Snapshot `json:"downloads"`
	Paused    bool                 `json:"paused"`
	Active    int                  `json:"active"`
	Queued    int                  `json:"queued"`
}

type StateResult struct {
	Paused bool `json:"paused"`
}

type ClearResult struct {
	Removed int64 `json:"removed"`
}

type EmptyResult struct{}

// EventNotification is the payload of every "event.<type>" push.
type EventNotification struct {
	Event queuelib.EventType `json:"event"`
	Job   *queuelib.Job      `json:"job,omitempty"`
	Error string             `json:"error,omitempty"`
	Time  time.Time          `json:"time"`
}

// ProgressNotification is the payload of "event.progress".
type ProgressNotification struct {
	FileRef    string  `json:"fileRef"`
	Downloaded int64   `json:"downloaded"`
	Total      int64   `json:"total"`
	Percent    float64 `json:"percent"`
	Speed      float64 `json:"speed"`
}
