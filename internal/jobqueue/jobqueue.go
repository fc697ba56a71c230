// Package jobqueue fronts the job system that schedules discovery
// work. The discovery core only submits jobs and drains them; queue
// persistence and retry of deferred jobs belong to the system behind
// this interface.
package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pilyon3/netdisco/internal/domain"
)

// Queue is the contract the discovery core holds against the job
// system.
type Queue interface {
	// Submit enqueues a job, assigning it an ID. It returns false
	// when the queue suppressed the job as a duplicate of live work
	// for the same target or dedup key.
	Submit(ctx context.Context, job *domain.Job) (bool, error)

	// Next hands out the oldest queued job, marking it running. A nil
	// job means the queue is empty.
	Next(ctx context.Context) (*domain.Job, error)

	// Complete records a job's final status and log line.
	Complete(ctx context.Context, jobID string, status domain.JobStatus, logLine string) error

	// Jobs lists every job the queue knows about, oldest first.
	Jobs(ctx context.Context) ([]domain.Job, error)
}

// finishedRetained bounds how many finished jobs the in-process queue
// keeps for inspection. Older finished jobs are pruned as new ones
// complete, so a long-running daemon does not accumulate history
// without limit.
const finishedRetained = 100

// MemoryQueue is an in-process Queue. Duplicate suppression considers
// only live (queued or running) jobs: finished work never blocks a
// re-discovery.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []*domain.Job
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Submit enqueues a job unless a live duplicate exists.
func (q *MemoryQueue) Submit(_ context.Context, job *domain.Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, existing := range q.jobs {
		if existing.Status != domain.JobQueued && existing.Status != domain.JobRunning {
			continue
		}
		if existing.Action != job.Action {
			continue
		}
		if existing.Target == job.Target {
			return false, nil
		}
		if job.DedupKey != "" && existing.DedupKey == job.DedupKey {
			return false, nil
		}
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = domain.JobQueued
	if job.Submitted.IsZero() {
		job.Submitted = time.Now()
	}
	q.jobs = append(q.jobs, job)
	return true, nil
}

// Next hands out the oldest queued job.
func (q *MemoryQueue) Next(_ context.Context) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.Status == domain.JobQueued {
			now := time.Now()
			job.Status = domain.JobRunning
			job.Started = &now
			return job, nil
		}
	}
	return nil, nil
}

// Complete records a final status for a job.
func (q *MemoryQueue) Complete(_ context.Context, jobID string, status domain.JobStatus, logLine string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.ID != jobID {
			continue
		}
		now := time.Now()
		job.Status = status
		job.Log = logLine
		job.Finished = &now
		q.pruneFinished()
		return nil
	}
	return nil
}

// pruneFinished drops the oldest finished jobs beyond the retention
// cap. Live jobs are never pruned. Caller holds q.mu.
func (q *MemoryQueue) pruneFinished() {
	finished := 0
	for _, job := range q.jobs {
		if job.Finished != nil {
			finished++
		}
	}
	if finished <= finishedRetained {
		return
	}
	drop := finished - finishedRetained
	kept := q.jobs[:0]
	for _, job := range q.jobs {
		if drop > 0 && job.Finished != nil {
			drop--
			continue
		}
		kept = append(kept, job)
	}
	q.jobs = kept
}

// Jobs lists all known jobs, oldest first.
func (q *MemoryQueue) Jobs(_ context.Context) ([]domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, *job)
	}
	return out, nil
}
