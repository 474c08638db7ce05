package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tglinker/internal/logging"
	"github.com/redis/go-redis/v9"
)

// popTimeout bounds each blocking pop so Consume can notice ctx cancellation.
const popTimeout = 5 * time.Second

// RedisQueue is a Redis-list-backed Queue. Jobs are pushed with LPUSH and
// popped with BRPOP; exhausted jobs land on "<name>:dead".
type RedisQueue struct {
	client *redis.Client
	name   string
	logger logging.Logger
}

// NewRedisQueue builds a queue over an existing client.
func NewRedisQueue(client *redis.Client, name string, logger logging.Logger) *RedisQueue {
	return &RedisQueue{
		client: client,
		name:   name,
		logger: logger.With("module", "queue", "queue", name),
	}
}

func (q *RedisQueue) deadName() string {
	return q.name + ":dead"
}

func (q *RedisQueue) push(ctx context.Context, key string, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// Enqueue submits a job to the main list.
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	return q.push(ctx, q.name, job)
}

// Consume pops jobs until ctx is cancelled. A failing job is re-enqueued
// with its attempt counter bumped while budget remains, then parked on the
// dead list.
func (q *RedisQueue) Consume(ctx context.Context, h Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := q.client.BRPop(ctx, popTimeout, q.name).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.Error(ctx, "queue pop failed", "error", err.Error())
			time.Sleep(time.Second)
			continue
		}
		// BRPop returns [key, value].
		if len(res) < 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			q.logger.Error(ctx, "dropping undecodable job", "error", err.Error())
			continue
		}

		q.dispatch(ctx, &job, h)
	}
}

func (q *RedisQueue) dispatch(ctx context.Context, job *Job, h Handler) {
	err := h(ctx, job)
	if err == nil {
		return
	}

	job.Attempt++
	if job.Attempt < job.MaxAttempts {
		q.logger.Warn(ctx, "job failed, retrying",
			"job_id", job.ID, "job", job.Name, "attempt", job.Attempt, "error", err.Error())
		if pushErr := q.push(ctx, q.name, job); pushErr != nil {
			q.logger.Error(ctx, "retry enqueue failed", "job_id", job.ID, "error", pushErr.Error())
		}
		return
	}

	q.logger.Error(ctx, "job exhausted attempts, moving to dead list",
		"job_id", job.ID, "job", job.Name, "attempt", job.Attempt, "error", err.Error())
	if pushErr := q.push(ctx, q.deadName(), job); pushErr != nil {
		q.logger.Error(ctx, "dead list push failed", "job_id", job.ID, "error", pushErr.Error())
	}
}
