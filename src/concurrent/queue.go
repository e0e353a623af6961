package concurrent

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
)

// BackpressurePolicy decides what Submit does when the queue is full.
type BackpressurePolicy int

const (
	// Block waits for queue space (default). With one worker this makes
	// the queue a strict FIFO and the producer self-throttling.
	Block BackpressurePolicy = iota
	// Drop discards the job with a log line instead of waiting.
	Drop
)

// Job is a unit of background work.
type Job struct {
	ID  string
	Run func(ctx context.Context)
}

// Queue is a bounded task queue with a fixed worker pool. It exists to
// make background submission explicit: capacity, worker count, and
// full-queue behavior are all stated up front instead of spawning a
// goroutine per call.
type Queue struct {
	jobs    chan Job
	policy  BackpressurePolicy
	workers int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

const (
	DefaultQueueWorkers  = 1
	DefaultQueueCapacity = 64
)

// NewQueue starts the workers immediately.
func NewQueue(workers, capacity int, policy BackpressurePolicy) *Queue {
	if workers <= 0 {
		workers = DefaultQueueWorkers
	}
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:    make(chan Job, capacity),
		policy:  policy,
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		job.Run(q.ctx)
	}
}

// Submit enqueues fn and returns the job id. Under the Drop policy a
// full queue returns an empty id.
func (q *Queue) Submit(fn func(ctx context.Context)) string {
	job := Job{ID: uuid.NewString(), Run: fn}
	if q.policy == Drop {
		select {
		case q.jobs <- job:
			return job.ID
		default:
			log.Printf("[Queue] full, dropping job %s", job.ID)
			return ""
		}
	}
	q.jobs <- job
	return job.ID
}

// Close stops accepting work and waits for queued jobs to drain.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.jobs)
		q.wg.Wait()
		q.cancel()
	})
}

// Len reports jobs currently waiting (not running).
func (q *Queue) Len() int { return len(q.jobs) }
