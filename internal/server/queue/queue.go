// Package queue provides a minimal durable job queue. The Redis
// implementation uses a list per queue with blocking pops; failed jobs are
// re-enqueued until their attempt budget runs out and then parked on a dead
// list for inspection.
package queue

import (
	"context"
	"encoding/json"
)

// Job is a unit of background work. Payload carries the handler-specific
// body as raw JSON so consumers decode only the jobs they recognize.
type Job struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
}

// Handler processes one job. A non-nil error marks the attempt as failed and
// lets the queue decide whether to retry.
type Handler func(ctx context.Context, job *Job) error

// Queue is the contract between producers and the worker pool. Retry policy
// lives here: handlers never retry themselves.
type Queue interface {
	// Enqueue submits a job for processing.
	Enqueue(ctx context.Context, job *Job) error

	// Consume blocks processing jobs with h until ctx is cancelled.
	Consume(ctx context.Context, h Handler) error
}
