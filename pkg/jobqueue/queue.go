package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/lvls/supportbot/internal/observability"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 5 * time.Second
)

// Handler executes one job. Returning a Deferral error re-enqueues the
// job without consuming its retry budget; any other error triggers a
// backoff retry until the attempt budget runs out.
type Handler func(ctx context.Context, job Job) error

// Job is one unit of background work.
type Job struct {
	ID      string          `json:"id"`
	Lane    string          `json:"lane"`
	Payload json.RawMessage `json:"payload"`
	Attempt int             `json:"attempt"`
}

// Deferral asks the queue to re-enqueue the job after Delay. It is a
// requeue, not a retry: the job's attempt counter stays unchanged.
type Deferral struct {
	Delay time.Duration
}

func (d Deferral) Error() string {
	return fmt.Sprintf("job deferred for %s", d.Delay)
}

// Defer builds a Deferral error.
func Defer(delay time.Duration) error {
	return Deferral{Delay: delay}
}

type laneState struct {
	concurrency  int
	maxAttempts  int
	retryBackoff time.Duration
	handler      Handler
	queue        []*Job
	running      int
	mu           sync.Mutex
}

// LaneConfig configures one lane.
type LaneConfig struct {
	Concurrency  int
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Queue provides lane-based job execution.
type Queue struct {
	lanes  map[string]*laneState
	mu     sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	timers  map[*time.Timer]struct{}
	closed  bool
	timerMu sync.Mutex
}

// New creates an empty queue. Lanes must be registered before use.
func New(logger zerolog.Logger) *Queue {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		lanes:  make(map[string]*laneState),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		timers: make(map[*time.Timer]struct{}),
	}
}

// RegisterLane binds a handler and concurrency limit to a lane name.
func (q *Queue) RegisterLane(lane string, cfg LaneConfig, handler Handler) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.lanes[lane] = &laneState{
		concurrency:  concurrency,
		maxAttempts:  maxAttempts,
		retryBackoff: backoff,
		handler:      handler,
		queue:        make([]*Job, 0),
	}
	q.logger.Debug().Str("lane", lane).Int("concurrency", concurrency).Msg("Lane registered")
}

// Enqueue adds a job to a lane and returns its handle.
func (q *Queue) Enqueue(lane string, payload interface{}) (string, error) {
	return q.EnqueueAfter(lane, payload, 0)
}

// EnqueueAfter adds a job that becomes runnable after delay.
func (q *Queue) EnqueueAfter(lane string, payload interface{}, delay time.Duration) (string, error) {
	q.mu.RLock()
	_, exists := q.lanes[lane]
	q.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("unknown lane: %s", lane)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}

	job := &Job{
		ID:      id,
		Lane:    lane,
		Payload: raw,
		Attempt: 1,
	}

	q.scheduleJob(job, delay)
	return id, nil
}

// scheduleJob places a job on its lane, after delay when positive.
func (q *Queue) scheduleJob(job *Job, delay time.Duration) {
	if delay <= 0 {
		q.pushJob(job)
		return
	}

	q.timerMu.Lock()
	if q.closed {
		q.timerMu.Unlock()
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		// Join the WaitGroup under the same lock Close uses to flip
		// closed, so Close either sees this callback or prevents it.
		q.timerMu.Lock()
		delete(q.timers, timer)
		if q.closed {
			q.timerMu.Unlock()
			return
		}
		q.wg.Add(1)
		q.timerMu.Unlock()
		defer q.wg.Done()

		q.pushJob(job)
	})
	q.timers[timer] = struct{}{}
	q.timerMu.Unlock()

	q.logger.Debug().
		Str("lane", job.Lane).
		Str("jobId", job.ID).
		Dur("delay", delay).
		Msg("Job scheduled")
}

func (q *Queue) pushJob(job *Job) {
	q.mu.RLock()
	ls := q.lanes[job.Lane]
	q.mu.RUnlock()
	if ls == nil {
		return
	}

	ls.mu.Lock()
	ls.queue = append(ls.queue, job)
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	q.logger.Debug().
		Str("lane", job.Lane).
		Str("jobId", job.ID).
		Int("queueSize", queueSize).
		Msg("Job enqueued")

	observability.RecordQueueEnqueue(job.Lane, queueSize)

	q.processLane(job.Lane)
}

// processLane starts queued jobs while the lane has capacity.
func (q *Queue) processLane(lane string) {
	q.mu.RLock()
	ls := q.lanes[lane]
	q.mu.RUnlock()
	if ls == nil {
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	for ls.running < ls.concurrency && len(ls.queue) > 0 {
		job := ls.queue[0]
		ls.queue = ls.queue[1:]
		ls.running++

		q.wg.Add(1)
		go q.executeJob(ls, job)
	}
}

func (q *Queue) executeJob(ls *laneState, job *Job) {
	defer q.wg.Done()

	runCtx, cancel := context.WithCancel(q.ctx)
	defer cancel()

	start := time.Now()
	err := ls.handler(runCtx, *job)
	duration := time.Since(start)

	ls.mu.Lock()
	ls.running--
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	switch {
	case err == nil:
		q.logger.Debug().
			Str("lane", job.Lane).
			Str("jobId", job.ID).
			Dur("duration", duration).
			Msg("Job completed")
		observability.RecordQueueCompletion(job.Lane, duration, true, queueSize)

	case isDeferral(err):
		var deferral Deferral
		errors.As(err, &deferral)
		q.logger.Info().
			Str("lane", job.Lane).
			Str("jobId", job.ID).
			Dur("delay", deferral.Delay).
			Msg("Job deferred")
		observability.RecordQueueCompletion(job.Lane, duration, true, queueSize)
		// Same attempt count: deferral never consumes the retry budget
		requeued := *job
		q.scheduleJob(&requeued, deferral.Delay)

	case job.Attempt < ls.maxAttempts:
		backoff := ls.retryBackoff * time.Duration(1<<(job.Attempt-1))
		q.logger.Warn().
			Str("lane", job.Lane).
			Str("jobId", job.ID).
			Int("attempt", job.Attempt).
			Dur("backoff", backoff).
			Err(err).
			Msg("Job failed, retrying")
		observability.RecordJobRetry(job.Lane)
		retry := *job
		retry.Attempt++
		q.scheduleJob(&retry, backoff)

	default:
		q.logger.Error().
			Str("lane", job.Lane).
			Str("jobId", job.ID).
			Int("attempt", job.Attempt).
			Err(err).
			Msg("Job failed permanently")
		observability.RecordQueueCompletion(job.Lane, duration, false, queueSize)
	}

	q.processLane(job.Lane)
}

func isDeferral(err error) bool {
	var d Deferral
	return errors.As(err, &d)
}

// QueueSize returns the number of queued jobs for a lane.
func (q *Queue) QueueSize(lane string) int {
	q.mu.RLock()
	ls := q.lanes[lane]
	q.mu.RUnlock()
	if ls == nil {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.queue)
}

// RunningCount returns the number of executing jobs for a lane.
func (q *Queue) RunningCount(lane string) int {
	q.mu.RLock()
	ls := q.lanes[lane]
	q.mu.RUnlock()
	if ls == nil {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.running
}

// WaitIdle blocks until every lane is drained or the timeout elapses.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		idle := true
		q.mu.RLock()
		for _, ls := range q.lanes {
			ls.mu.Lock()
			if ls.running > 0 || len(ls.queue) > 0 {
				idle = false
			}
			ls.mu.Unlock()
		}
		q.mu.RUnlock()

		if idle {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		<-ticker.C
	}
}

// Close stops delayed timers, cancels running jobs, and waits for them.
func (q *Queue) Close() error {
	q.cancel()

	q.timerMu.Lock()
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
	}
	q.timers = make(map[*time.Timer]struct{})
	q.timerMu.Unlock()

	q.wg.Wait()
	return nil
}
