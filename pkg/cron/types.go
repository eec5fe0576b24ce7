package cron

import (
	"context"
	"errors"
	"time"
)

// ErrSkipped is returned by a job that decided there was nothing to do.
var ErrSkipped = errors.New("job skipped")

// Job statuses.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
	// StatusOverlap marks a tick dropped because the previous run had not finished.
	StatusOverlap = "overlap"
)

// JobFunc is the work of a job. It must honor ctx.
type JobFunc func(ctx context.Context) error

// JobState tracks runtime state of a job
type JobState struct {
	NextRunAt         *time.Time    `json:"nextRunAt,omitempty"`
	RunningSince      *time.Time    `json:"runningSince,omitempty"`
	LastRunAt         *time.Time    `json:"lastRunAt,omitempty"`
	LastStatus        string        `json:"lastStatus,omitempty"`
	LastError         string        `json:"lastError,omitempty"`
	LastDuration      time.Duration `json:"lastDuration,omitempty"`
	ConsecutiveErrors int           `json:"consecutiveErrors,omitempty"`
	Runs              int           `json:"runs"`
}

// JobStatus is a snapshot of one job.
type JobStatus struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Schedule string   `json:"schedule"`
	State    JobState `json:"state"`
}
