package processing

import (
	"context"

	"github.com/augmedia/augplayer/internal/store"
	"github.com/augmedia/augplayer/internal/watch"
)

// JobState is the stage of a processing job.
type JobState string

const (
	JobQueued     JobState = "queued"
	JobProcessing JobState = "processing"
	JobDone       JobState = "done"
	JobFailed     JobState = "failed"
)

// JobStatus is reported to clients watching a job.
type JobStatus struct {
	State  JobState
	Error  string `json:",omitempty"`
	Frames int    `json:",omitempty"`
}

// Finished reports whether the job has reached a terminal state.
func (s JobStatus) Finished() bool {
	return s.State == JobDone || s.State == JobFailed
}

// Job is a unit of processing for one uploaded file.
type Job struct {
	file   store.MediaFile
	status *watch.Value[JobStatus]

	done chan struct{}
	err  error
}

func newJob(f store.MediaFile) *Job {
	return &Job{
		file:   f,
		status: watch.NewValue(JobStatus{State: JobQueued}),
		done:   make(chan struct{}),
	}
}

// ID returns the ID of the media file that the job processes.
func (j *Job) ID() string { return j.file.ID }

// File returns the media file that the job processes.
func (j *Job) File() store.MediaFile { return j.file }

// Status returns the current status of the job.
func (j *Job) Status() JobStatus { return j.status.Get() }

// WatchStatus sets up a handler function to continuously receive the status of
// the job as it is updated. See the watch package documentation for details.
func (j *Job) WatchStatus(handler func(JobStatus)) watch.Watch {
	return j.status.Watch(handler)
}

func (j *Job) finish(status JobStatus, err error) {
	j.err = err
	j.status.Set(status)
	close(j.done)
}

// Wait blocks until the job finishes or ctx is done, and returns the error
// that the job failed with, if any.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
