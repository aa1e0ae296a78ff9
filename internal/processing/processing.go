// Package processing runs metadata extraction for uploaded media on a bounded
// pool of workers.
//
// Uploads are submitted as jobs to a bounded queue. Each job extracts frame
// metadata from the stored file, persists it, and only then adds the file to
// the catalog, so the catalog never lists media without metadata. Jobs that
// fail remove the uploaded file.
package processing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/augmedia/augplayer/internal/log"
	"github.com/augmedia/augplayer/internal/metadata"
	"github.com/augmedia/augplayer/internal/store"
)

var (
	// ErrQueueFull is returned by Submit when no more jobs can be queued.
	ErrQueueFull = errors.New("processing queue is full")
	// ErrClosed is returned by Submit after Close, and is the failure of jobs
	// that were still queued when the Queue was closed.
	ErrClosed = errors.New("processing queue is closed")
)

// Extractor produces frame metadata for a media file on the local filesystem.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]metadata.Frame, error)
}

// Storage is the subset of the media store used by jobs.
type Storage interface {
	LocalPath(store.MediaFile) (string, error)
	SaveMetadata(id string, frames []metadata.Frame) error
	AddMediaFile(store.MediaFile) error
	Remove(id string) error
}

// Options configures a Queue.
type Options struct {
	// Workers is the number of jobs that run at the same time.
	Workers int
	// QueueSize is the number of jobs that may wait for a worker.
	QueueSize int
	// Timeout bounds the extraction of a single job. Zero means no limit.
	Timeout time.Duration
	// Retention is how long finished jobs remain available through Job.
	Retention time.Duration
}

// DefaultOptions are used for zero fields of the Options given to NewQueue.
var DefaultOptions = Options{
	Workers:   2,
	QueueSize: 16,
	Timeout:   10 * time.Minute,
	Retention: 10 * time.Minute,
}

// Queue accepts processing jobs and runs them on a worker pool.
type Queue struct {
	storage   Storage
	extractor Extractor
	opts      Options

	pending chan *Job
	workers *pool.Pool
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	jobs   map[string]*Job
	closed bool
}

// NewQueue starts the workers of a new Queue.
func NewQueue(storage Storage, extractor Extractor, opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions.Workers
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = DefaultOptions.QueueSize
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultOptions.Retention
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		storage:   storage,
		extractor: extractor,
		opts:      opts,
		pending:   make(chan *Job, opts.QueueSize),
		workers:   pool.New().WithMaxGoroutines(opts.Workers),
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]*Job),
	}
	for range opts.Workers {
		q.workers.Go(q.work)
	}
	return q
}

// Submit queues a job to process the uploaded file f. When the job cannot be
// queued, the upload is removed from storage.
func (q *Queue) Submit(f store.MediaFile) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.discard(f)
		return nil, ErrClosed
	}

	job := newJob(f)
	select {
	case q.pending <- job:
	default:
		q.discard(f)
		return nil, ErrQueueFull
	}

	q.jobs[job.ID()] = job
	log.Tprintf(q, "Queued job %s for %s", job.ID(), f.Filename)
	return job, nil
}

// Job returns a job submitted to this Queue that is either unfinished or
// finished within the retention period.
func (q *Queue) Job(id string) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	return job, ok
}

// Close stops accepting jobs, cancels running jobs, fails queued jobs, and
// waits for the workers to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.workers.Wait()

	for {
		select {
		case job := <-q.pending:
			q.abandon(job)
		default:
			return
		}
	}
}

func (q *Queue) abandon(job *Job) {
	q.discard(job.File())
	job.finish(JobStatus{State: JobFailed, Error: ErrClosed.Error()}, ErrClosed)
}

func (q *Queue) work() {
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.pending:
			if q.ctx.Err() != nil {
				q.abandon(job)
				return
			}
			q.run(job)
		}
	}
}

func (q *Queue) run(job *Job) {
	job.status.Set(JobStatus{State: JobProcessing})

	ctx := q.ctx
	if q.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.opts.Timeout)
		defer cancel()
	}

	frames, err := q.process(ctx, job.File())
	if err != nil {
		log.Tprintf(q, "Job %s failed: %v", job.ID(), err)
		q.discard(job.File())
		job.finish(JobStatus{State: JobFailed, Error: err.Error()}, err)
	} else {
		log.Tprintf(q, "Job %s done with %d frames", job.ID(), frames)
		job.finish(JobStatus{State: JobDone, Frames: frames}, nil)
	}

	time.AfterFunc(q.opts.Retention, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.jobs, job.ID())
	})
}

func (q *Queue) process(ctx context.Context, f store.MediaFile) (int, error) {
	path, err := q.storage.LocalPath(f)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}

	frames, err := q.extractor.Extract(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("extracting metadata: %w", err)
	}
	if err := q.storage.SaveMetadata(f.ID, frames); err != nil {
		return 0, err
	}
	if err := q.storage.AddMediaFile(f); err != nil {
		return 0, err
	}
	return len(frames), nil
}

func (q *Queue) discard(f store.MediaFile) {
	if err := q.storage.Remove(f.ID); err != nil {
		log.Tprintf(q, "Failed to remove %s: %v", f.ID, err)
	}
}
