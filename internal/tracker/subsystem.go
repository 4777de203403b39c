package tracker

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned by Query when the subsystem no longer knows
// the handle.
var ErrJobNotFound = errors.New("download job not found")

// Status is the download subsystem's own job state, mapped by the tracker
// onto the catalog download state.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusPaused
	StatusSucceeded
	StatusFailed
)

// Job is a point-in-time snapshot of a download job.
type Job struct {
	Status          Status
	BytesDownloaded int64
	TotalBytes      int64
	LocalPath       string
}

// EnqueueOptions carries the per-job requests the tracker makes of the
// subsystem.
type EnqueueOptions struct {
	// AllowMetered permits the transfer over limited connections.
	AllowMetered bool
	// Visible exposes the job in whatever generic downloads surface the
	// subsystem has. The tracker always enqueues hidden jobs.
	Visible bool
}

// Subsystem is the external download collaborator. It only offers a
// synchronous query-by-handle interface; the tracker is what turns that
// into an event stream.
type Subsystem interface {
	Enqueue(ctx context.Context, url, destination string, opts EnqueueOptions) (int64, error)
	Query(handle int64) (Job, error)
	Remove(handle int64) error
}
