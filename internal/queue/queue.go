package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultPollInterval is how long the worker sleeps when no jobs are queued.
	DefaultPollInterval = time.Second

	// DefaultErrorBackoff is how long the worker backs off after a
	// dispatch-level failure before re-polling.
	DefaultErrorBackoff = 5 * time.Second

	// DefaultCleanupMaxAge is the retention horizon for completed jobs.
	DefaultCleanupMaxAge = 24 * time.Hour
)

// Runner executes the processing pipeline for one job. Implementations
// report granular progress through report; the queue persists every update.
type Runner interface {
	Run(ctx context.Context, job *Job, report func(Progress)) (*Result, error)
}

// Queue owns the job lifecycle: submission, observation, cleanup, and the
// single background worker that drains queued jobs in FIFO order.
//
// Exactly one job is ever processing at a time: Run is the only dispatcher
// and it processes each job to a terminal state before picking the next.
// An in-flight job cannot be cancelled; a hang in a collaborator (OCR
// engine, content store) stalls the whole queue. Both are accepted
// limitations of the single-worker design.
type Queue struct {
	store        *Store
	runner       Runner
	logger       *slog.Logger
	pollInterval time.Duration
	errorBackoff time.Duration
	now          func() time.Time
}

// Config configures a new Queue.
type Config struct {
	Store        *Store
	Runner       Runner
	Logger       *slog.Logger
	PollInterval time.Duration
	ErrorBackoff time.Duration
}

// New creates a new Queue.
func New(cfg Config) *Queue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}

	return &Queue{
		store:        cfg.Store,
		runner:       cfg.Runner,
		logger:       logger.With("component", "queue"),
		pollInterval: cfg.PollInterval,
		errorBackoff: cfg.ErrorBackoff,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Submit appends a new job in state queued and returns its id. It does not
// block for processing; the only failure mode is the durable write itself.
// Safe for concurrent use.
func (q *Queue) Submit(payload Payload) (string, error) {
	job := &Job{
		ID:        uuid.New().String(),
		Type:      TypePDFProcessing,
		Status:    StatusQueued,
		Payload:   payload,
		CreatedAt: q.now(),
	}

	if err := q.store.Put(job); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.logger.Info("job queued", "job_id", job.ID, "file", payload.FileName, "size", payload.FileSize)
	return job.ID, nil
}

// Get returns a read-only snapshot of the job with the given id.
func (q *Queue) Get(id string) (*Job, bool) {
	return q.store.Get(id)
}

// List returns read-only snapshots of all jobs, oldest first.
func (q *Queue) List() []*Job {
	return q.store.List()
}

// Cleanup deletes completed jobs older than maxAge and returns the number
// removed. Failed jobs are kept for diagnosis regardless of age; that
// asymmetry is policy, not an oversight.
func (q *Queue) Cleanup(maxAge time.Duration) int {
	removed := q.store.DeleteCompletedBefore(q.now().Add(-maxAge))
	if removed > 0 {
		q.logger.Info("cleaned up old completed jobs", "count", removed)
	}
	return removed
}

// Run is the worker loop. It polls for queued jobs and processes exactly
// one at a time until ctx is cancelled. The loop itself never fails: a
// job's errors are captured into the job record, and a dispatch-level
// panic is logged followed by a backoff.
func (q *Queue) Run(ctx context.Context) {
	q.logger.Info("job queue worker started")

	for {
		if ctx.Err() != nil {
			q.logger.Info("job queue worker stopping")
			return
		}

		job, ok := q.store.NextQueued()
		if !ok {
			q.sleep(ctx, q.pollInterval)
			continue
		}

		if err := q.dispatch(ctx, job); err != nil {
			q.logger.Error("job dispatch error", "job_id", job.ID, "error", err)
			q.sleep(ctx, q.errorBackoff)
		}
	}
}

// RunCleanupSweep periodically removes completed jobs older than maxAge.
// Call in a goroutine alongside Run.
func (q *Queue) RunCleanupSweep(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Cleanup(maxAge)
		}
	}
}

// dispatch runs one job to a terminal state. The returned error covers
// only dispatch-level faults (a panic out of the runner); pipeline errors
// end up on the job record instead.
func (q *Queue) dispatch(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during job processing: %v", r)
			q.fail(job.ID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	startedAt := q.now()
	if uerr := q.store.Update(job.ID, func(j *Job) {
		j.Status = StatusProcessing
		j.StartedAt = &startedAt
		j.Progress = &Progress{Stage: "initializing", Percentage: 0, Message: "Starting document processing..."}
	}); uerr != nil {
		return fmt.Errorf("failed to mark job processing: %w", uerr)
	}

	q.logger.Info("job processing", "job_id", job.ID, "file", job.Payload.FileName)

	report := func(p Progress) {
		_ = q.store.Update(job.ID, func(j *Job) {
			j.Progress = &p
		})
	}

	result, runErr := q.runner.Run(ctx, job, report)
	if runErr != nil {
		q.logger.Error("job failed", "job_id", job.ID, "error", runErr)
		q.fail(job.ID, runErr.Error())
		return nil
	}

	completedAt := q.now()
	_ = q.store.Update(job.ID, func(j *Job) {
		j.Status = StatusCompleted
		j.CompletedAt = &completedAt
		j.Result = result
		j.Progress = &Progress{Stage: "completed", Percentage: 100, Message: "Document processing completed successfully"}
	})

	q.logger.Info("job completed", "job_id", job.ID, "document_id", result.DocumentID)
	return nil
}

// fail transitions a job to the failed terminal state with the given
// error message captured verbatim.
func (q *Queue) fail(id, msg string) {
	completedAt := q.now()
	_ = q.store.Update(id, func(j *Job) {
		j.Status = StatusFailed
		j.CompletedAt = &completedAt
		j.Result = &Result{Error: msg}
		j.Progress = &Progress{Stage: "failed", Percentage: 100, Message: "Document processing failed"}
	})
}

// sleep waits for d or until ctx is cancelled.
func (q *Queue) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
