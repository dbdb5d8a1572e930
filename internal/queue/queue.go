package queue

import (
	"context"
	"sync"
	"time"
)

// Job is one user-submitted audio item to be transcribed end-to-end.
// Uniqueness key is (OwnerID, JobID).
type Job struct {
	OwnerID         int64
	JobID           string
	SourcePath      string
	SubmittedAt     time.Time
	BusinessContext string
}

// Queue is an unbounded FIFO with a single consumer. Submit never blocks
// beyond the enqueue cost and never rejects on capacity; duplicate policy
// lives with the caller (DuplicateGuard), not here.
type Queue struct {
	mu     sync.Mutex
	jobs   []Job
	signal chan struct{}
}

func New() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

func (q *Queue) Submit(job Job) {
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Next blocks the single consumer until a job is available, returning
// jobs strictly in submission order.
func (q *Queue) Next(ctx context.Context) (Job, error) {
	for {
		q.mu.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs = q.jobs[1:]
			q.mu.Unlock()
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-q.signal:
		}
	}
}

func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
