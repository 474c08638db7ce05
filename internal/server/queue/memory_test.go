package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueDeliversJob(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Job, 1)
	go func() {
		_ = q.Consume(ctx, func(ctx context.Context, job *Job) error {
			got <- job
			return nil
		})
	}()

	job := &Job{ID: "1", Name: "test", Payload: json.RawMessage(`{"x":1}`), MaxAttempts: 3}
	require.NoError(t, q.Enqueue(ctx, job))

	select {
	case j := <-got:
		assert.Equal(t, "1", j.ID)
		assert.Equal(t, "test", j.Name)
	case <-time.After(time.Second):
		t.Fatal("job was not delivered")
	}
}

func TestMemoryQueueRetriesUntilBudget(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		_ = q.Consume(ctx, func(ctx context.Context, job *Job) error {
			if calls.Add(1) == 3 {
				close(done)
			}
			return errors.New("boom")
		})
	}()

	require.NoError(t, q.Enqueue(ctx, &Job{ID: "1", Name: "test", MaxAttempts: 3}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}

	assert.Eventually(t, func() bool {
		dead := q.Dead()
		return len(dead) == 1 && dead[0].Attempt == 3
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryQueueSuccessfulJobNotRetried(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	go func() {
		_ = q.Consume(ctx, func(ctx context.Context, job *Job) error {
			calls.Add(1)
			return nil
		})
	}()

	require.NoError(t, q.Enqueue(ctx, &Job{ID: "1", Name: "test", MaxAttempts: 3}))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, q.Dead())
}
