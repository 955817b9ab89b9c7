// Package worker runs background jobs off the request path: the initial
// sync after a share is accepted, and anything else that must not block a
// page render.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

const laneBuffer = 100

// ErrStopped is returned by Enqueue once the queue has been stopped.
var ErrStopped = errors.New("worker queue stopped")

// Job is one unit of background work. Jobs with the same Key run one at a
// time in enqueue order.
type Job struct {
	Key  string
	Name string
	Run  func(ctx context.Context) error
}

// Queue manages per-key lanes with a global concurrency semaphore.
// Each key gets its own FIFO channel (lane) so that jobs for one key are
// processed sequentially, while the semaphore limits the total number of
// concurrent jobs across all keys.
type Queue struct {
	lanes     map[string]chan *Job
	semaphore *semaphore.Weighted
	retry     *RetryPolicy
	pending   atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// NewQueue creates a Queue that runs up to maxConcurrent jobs at once.
// retry may be nil, in which case each job runs once.
func NewQueue(maxConcurrent int64, retry *RetryPolicy) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Queue{
		lanes:     make(map[string]chan *Job),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		retry:     retry,
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	if q.cancel != nil {
		q.cancel()
	}
	for _, lane := range q.lanes {
		close(lane)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a job to its key's lane, creating the lane (and its
// goroutine) on first use.
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrStopped
	}
	if q.ctx == nil {
		return errors.New("worker queue not started")
	}

	lane, exists := q.lanes[job.Key]
	if !exists {
		lane = make(chan *Job, laneBuffer)
		q.lanes[job.Key] = lane
		q.wg.Add(1)
		go q.processLane(lane)
	}

	select {
	case lane <- job:
		q.pending.Add(1)
		return nil
	default:
		return fmt.Errorf("queue full for %s", job.Key)
	}
}

// processLane drains a single lane, acquiring a semaphore slot before
// running each job.
func (q *Queue) processLane(lane chan *Job) {
	defer q.wg.Done()
	for {
		select {
		case job, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			q.run(job)
			q.semaphore.Release(1)
			q.pending.Add(-1)
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) run(job *Job) {
	start := time.Now()
	var err error
	if q.retry != nil {
		err = q.retry.Execute(q.ctx, job.Run)
	} else {
		err = job.Run(q.ctx)
	}
	if err != nil {
		slog.Error("job failed", "job", job.Name, "key", job.Key, "error", err)
		return
	}
	slog.Info("job done", "job", job.Name, "key", job.Key, "duration", time.Since(start))
}

// WaitIdle blocks until every enqueued job has finished, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.pending.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(20 * time.Millisecond):
		}
	}
}
