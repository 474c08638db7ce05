package queue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process Queue with the same retry and dead-letter
// semantics as the Redis one. Used in tests and single-node setups.
type MemoryQueue struct {
	jobs chan *Job

	mu   sync.Mutex
	dead []*Job
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{jobs: make(chan *Job, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-q.jobs:
			if err := h(ctx, job); err != nil {
				job.Attempt++
				if job.Attempt < job.MaxAttempts {
					select {
					case q.jobs <- job:
					case <-ctx.Done():
						return ctx.Err()
					}
				} else {
					q.mu.Lock()
					q.dead = append(q.dead, job)
					q.mu.Unlock()
				}
			}
		}
	}
}

// Dead returns jobs that exhausted their attempts.
func (q *MemoryQueue) Dead() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, len(q.dead))
	copy(out, q.dead)
	return out
}
