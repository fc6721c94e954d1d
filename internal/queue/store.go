package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a job id is not present in the store.
var ErrNotFound = errors.New("job not found")

// queueFile is the on-disk shape of the store: the whole job table,
// rewritten on every mutation. Acceptable at low job volumes; a known
// scalability ceiling kept for crash-recovery parity.
type queueFile struct {
	Jobs []*Job `json:"jobs"`
}

// Store is the durable job table. All mutations happen under one mutex
// and are mirrored to disk before the lock is released. A flush failure
// is logged; the in-memory table stays authoritative for the lifetime of
// the process.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	jobs   map[string]*Job
}

// NewStore opens the store at path, loading any jobs persisted by a
// previous process before the worker starts polling.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:   path,
		logger: logger.With("component", "queue_store"),
		jobs:   make(map[string]*Job),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

// load reads the queue file into memory. A missing file is a fresh store.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read queue file: %w", err)
	}

	var qf queueFile
	if err := json.Unmarshal(data, &qf); err != nil {
		return fmt.Errorf("failed to parse queue file: %w", err)
	}

	for _, job := range qf.Jobs {
		s.jobs[job.ID] = job
	}

	s.logger.Info("loaded jobs from disk", "count", len(s.jobs), "path", s.path)
	return nil
}

// flushLocked rewrites the whole table to disk. Caller holds s.mu.
func (s *Store) flushLocked() error {
	qf := queueFile{Jobs: make([]*Job, 0, len(s.jobs))}
	for _, job := range s.jobs {
		qf.Jobs = append(qf.Jobs, job)
	}
	sort.Slice(qf.Jobs, func(i, j int) bool {
		return qf.Jobs[i].CreatedAt.Before(qf.Jobs[j].CreatedAt)
	})

	data, err := json.MarshalIndent(qf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize queue: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write queue file: %w", err)
	}
	return nil
}

// Put inserts a new job and persists the table. The write error is
// returned so Submit can fail synchronously when the disk is unusable.
func (s *Store) Put(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job.Clone()
	return s.flushLocked()
}

// Update applies mutate to the stored job under the lock and persists the
// table. Flush failures are logged, not returned: the in-memory state is
// authoritative and a crash before the next successful flush loses only
// this update.
func (s *Store) Update(id string, mutate func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}

	mutate(job)

	if err := s.flushLocked(); err != nil {
		s.logger.Warn("failed to persist job update", "job_id", id, "error", err)
	}
	return nil
}

// Get returns a snapshot of the job with the given id.
func (s *Store) Get(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// List returns snapshots of all jobs, oldest first.
func (s *Store) List() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// NextQueued returns a snapshot of the oldest queued job, FIFO by
// submission time.
func (s *Store) NextQueued() (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *Job
	for _, job := range s.jobs {
		if job.Status != StatusQueued {
			continue
		}
		if next == nil || job.CreatedAt.Before(next.CreatedAt) {
			next = job
		}
	}
	if next == nil {
		return nil, false
	}
	return next.Clone(), true
}

// DeleteCompletedBefore removes completed jobs whose completion time is
// older than cutoff. Failed jobs are deliberately retained for diagnosis.
func (s *Store) DeleteCompletedBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.Status != StatusCompleted {
			continue
		}
		if job.CompletedAt == nil || !job.CompletedAt.Before(cutoff) {
			continue
		}
		delete(s.jobs, id)
		removed++
	}

	if removed > 0 {
		if err := s.flushLocked(); err != nil {
			s.logger.Warn("failed to persist cleanup", "error", err)
		}
	}
	return removed
}

// Count returns the number of jobs in the store.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
