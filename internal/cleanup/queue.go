// Package cleanup deletes orphaned cover images in the background.
//
// Request handlers enqueue the reference of an image that is no longer
// referenced by any book; a small worker pool deletes it. Enqueue never
// blocks a request: when the queue is full the job is dropped and logged,
// leaving a stray file rather than a slow response.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Common errors returned by Enqueue.
var (
	ErrQueueClosed = errors.New("cleanup queue is closed")
	ErrQueueFull   = errors.New("cleanup queue is full")
)

// Deleter removes a stored image by reference.
type Deleter interface {
	Delete(ref string) error
}

// Reasons recorded with each job, for the logs.
const (
	ReasonReplaced    = "replaced"
	ReasonBookDeleted = "book_deleted"
	ReasonWriteFailed = "write_failed"
)

// Job is one image to delete.
type Job struct {
	Ref    string
	Reason string
}

const drainTimeout = 10 * time.Second

// Config sizes the queue and worker pool.
type Config struct {
	Workers   int
	QueueSize int
}

// DefaultConfig returns the defaults used when config values are unset.
func DefaultConfig() Config {
	return Config{Workers: 2, QueueSize: 256}
}

// Queue is a bounded job queue drained by a worker pool.
type Queue struct {
	deleter Deleter
	logger  *slog.Logger
	workers int

	jobs chan Job

	mu     sync.RWMutex // Guards closed against concurrent Enqueue/Stop
	closed bool

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewQueue creates a queue. Call Start to launch the workers.
func NewQueue(deleter Deleter, cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	def := DefaultConfig()
	if cfg.Workers <= 0 {
		logger.Warn("invalid cleanup worker count, using default", "specified", cfg.Workers, "default", def.Workers)
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}

	return &Queue{
		deleter: deleter,
		logger:  logger,
		workers: cfg.Workers,
		jobs:    make(chan Job, cfg.QueueSize),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		for i := range q.workers {
			q.wg.Add(1)
			go q.work(i)
		}
		q.logger.Info("cleanup workers started", "workers", q.workers, "queue_cap", cap(q.jobs))
	})
}

// Enqueue schedules ref for deletion without blocking. Empty refs are
// ignored. A full or closed queue drops the job with a warning and returns
// the reason.
func (q *Queue) Enqueue(ref, reason string) error {
	if ref == "" {
		return nil
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.Warn("cleanup job dropped: queue closed", "ref", ref, "reason", reason)
		return ErrQueueClosed
	}

	select {
	case q.jobs <- Job{Ref: ref, Reason: reason}:
		q.logger.Debug("cleanup job enqueued", "ref", ref, "reason", reason, "queue_len", len(q.jobs))
		return nil
	default:
		q.logger.Warn("cleanup job dropped: queue full", "ref", ref, "reason", reason, "queue_cap", cap(q.jobs))
		return fmt.Errorf("%w: capacity %d reached", ErrQueueFull, cap(q.jobs))
	}
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Stop closes the queue and waits for the workers to drain it. If ctx
// expires first, Stop returns ctx.Err() and the remaining jobs are
// abandoned.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	// Workers that never started would leave the queue undrained.
	q.Start()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("cleanup workers stopped")
		return nil
	case <-ctx.Done():
		q.logger.Warn("cleanup workers did not drain before deadline", "remaining", len(q.jobs))
		return ctx.Err()
	}
}

// Shutdown implements do.Shutdowner, draining for at most drainTimeout.
func (q *Queue) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	return q.Stop(ctx)
}

func (q *Queue) work(id int) {
	defer q.wg.Done()

	for job := range q.jobs {
		if err := q.deleter.Delete(job.Ref); err != nil {
			q.logger.Error("failed to delete image",
				"worker", id,
				"ref", job.Ref,
				"reason", job.Reason,
				"error", err,
			)
			continue
		}
		q.logger.Debug("image deleted", "worker", id, "ref", job.Ref, "reason", job.Reason)
	}
}
