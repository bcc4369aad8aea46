package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue() *Queue {
	return New(zerolog.New(os.Stdout).Level(zerolog.Disabled))
}

type testPayload struct {
	Value string `json:"value"`
}

func TestEnqueueExecutesHandler(t *testing.T) {
	q := newTestQueue()
	defer q.Close()

	done := make(chan Job, 1)
	q.RegisterLane("test", LaneConfig{Concurrency: 1}, func(ctx context.Context, job Job) error {
		done <- job
		return nil
	})

	id, err := q.Enqueue("test", testPayload{Value: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case job := <-done:
		assert.Equal(t, id, job.ID)
		assert.Equal(t, 1, job.Attempt)

		var payload testPayload
		require.NoError(t, json.Unmarshal(job.Payload, &payload))
		assert.Equal(t, "hello", payload.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
}

func TestEnqueueUnknownLane(t *testing.T) {
	q := newTestQueue()
	defer q.Close()

	_, err := q.Enqueue("nope", testPayload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown lane")
}

func TestConcurrencyLimit(t *testing.T) {
	q := newTestQueue()
	defer q.Close()

	var running, peak int32
	var mu sync.Mutex
	release := make(chan struct{})

	q.RegisterLane("limited", LaneConfig{Concurrency: 2}, func(ctx context.Context, job Job) error {
		now := atomic.AddInt32(&running, 1)
		mu.Lock()
		if now > peak {
			peak = now
		}
		mu.Unlock()
		<-release
		atomic.AddInt32(&running, -1)
		return nil
	})

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue("limited", testPayload{})
		require.NoError(t, err)
	}

	// Give the first two a moment to start
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&running))

	close(release)
	assert.True(t, q.WaitIdle(2*time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int32(2))
}

func TestRetryWithBackoff(t *testing.T) {
	q := newTestQueue()
	defer q.Close()

	var attempts []int
	var mu sync.Mutex
	done := make(chan struct{})

	q.RegisterLane("flaky", LaneConfig{
		Concurrency:  1,
		MaxAttempts:  3,
		RetryBackoff: 10 * time.Millisecond,
	}, func(ctx context.Context, job Job) error {
		mu.Lock()
		attempts = append(attempts, job.Attempt)
		n := len(attempts)
		mu.Unlock()
		if n < 3 {
			return errors.New("transient failure")
		}
		close(done)
		return nil
	})

	_, err := q.Enqueue("flaky", testPayload{})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job never succeeded")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestRetryBudgetExhausted(t *testing.T) {
	q := newTestQueue()
	defer q.Close()

	var count int32
	q.RegisterLane("doomed", LaneConfig{
		Concurrency:  1,
		MaxAttempts:  2,
		RetryBackoff: 5 * time.Millisecond,
	}, func(ctx context.Context, job Job) error {
		atomic.AddInt32(&count, 1)
		return errors.New("always fails")
	})

	_, err := q.Enqueue("doomed", testPayload{})
	require.NoError(t, err)

	require.True(t, q.WaitIdle(2*time.Second))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&count))
}

func TestDeferralDoesNotConsumeRetryBudget(t *testing.T) {
	q := newTestQueue()
	defer q.Close()

	var attempts []int
	var mu sync.Mutex
	var deferred int32
	done := make(chan struct{})

	q.RegisterLane("quiet", LaneConfig{
		Concurrency: 1,
		MaxAttempts: 3,
	}, func(ctx context.Context, job Job) error {
		mu.Lock()
		attempts = append(attempts, job.Attempt)
		mu.Unlock()

		// Defer twice, then deliver
		if atomic.AddInt32(&deferred, 1) <= 2 {
			return Defer(10 * time.Millisecond)
		}
		close(done)
		return nil
	})

	_, err := q.Enqueue("quiet", testPayload{})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job never delivered")
	}

	// Every run saw attempt 1: requeues are not retries
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 1, 1}, attempts)
}

func TestEnqueueAfterDelaysExecution(t *testing.T) {
	q := newTestQueue()
	defer q.Close()

	ran := make(chan time.Time, 1)
	q.RegisterLane("delayed", LaneConfig{Concurrency: 1}, func(ctx context.Context, job Job) error {
		ran <- time.Now()
		return nil
	})

	start := time.Now()
	_, err := q.EnqueueAfter("delayed", testPayload{}, 100*time.Millisecond)
	require.NoError(t, err)

	select {
	case at := <-ran:
		assert.GreaterOrEqual(t, at.Sub(start), 90*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed job never ran")
	}
}

func TestCloseStopsPendingTimers(t *testing.T) {
	q := newTestQueue()

	var count int32
	q.RegisterLane("late", LaneConfig{Concurrency: 1}, func(ctx context.Context, job Job) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	_, err := q.EnqueueAfter("late", testPayload{}, time.Hour)
	require.NoError(t, err)

	require.NoError(t, q.Close())
	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}

func TestCloseWhileTimersFire(t *testing.T) {
	// Timers firing at the same instant as Close must either complete
	// inside Close's wait or be dropped, never enqueue afterwards.
	for i := 0; i < 50; i++ {
		q := newTestQueue()

		var count int32
		q.RegisterLane("late", LaneConfig{Concurrency: 2}, func(ctx context.Context, job Job) error {
			atomic.AddInt32(&count, 1)
			return nil
		})

		for j := 0; j < 8; j++ {
			_, err := q.EnqueueAfter("late", testPayload{}, time.Millisecond)
			require.NoError(t, err)
		}

		time.Sleep(time.Millisecond)
		require.NoError(t, q.Close())

		ran := atomic.LoadInt32(&count)
		time.Sleep(5 * time.Millisecond)
		assert.Equal(t, ran, atomic.LoadInt32(&count), "job ran after Close returned")
	}
}

func TestEnqueueAfterOnClosedQueue(t *testing.T) {
	q := newTestQueue()

	var count int32
	q.RegisterLane("late", LaneConfig{Concurrency: 1}, func(ctx context.Context, job Job) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	require.NoError(t, q.Close())

	_, err := q.EnqueueAfter("late", testPayload{}, time.Millisecond)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}
