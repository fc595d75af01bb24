package scheduler

import (
	"context"
	"errors"
	"sync"
)

var errQueueClosed = errors.New("queue closed")

// jobQueue is an unbounded FIFO of per-game jobs.
type jobQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	jobs   []*job
	closed bool
}

func newJobQueue() *jobQueue {
	q := &jobQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *jobQueue) enqueue(jobs ...*job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed
	}
	q.jobs = append(q.jobs, jobs...)
	q.cond.Broadcast()
	return nil
}

// dequeue blocks until a job is available, the queue is closed or ctx ends.
func (q *jobQueue) dequeue(ctx context.Context) (*job, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(q.jobs) > 0 {
			j := q.jobs[0]
			q.jobs[0] = nil
			q.jobs = q.jobs[1:]
			return j, nil
		}
		if q.closed {
			return nil, errQueueClosed
		}
		q.cond.Wait()
	}
}

// close wakes all waiters and returns the jobs that were never handed out.
func (q *jobQueue) close() []*job {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	rest := q.jobs
	q.jobs = nil
	q.cond.Broadcast()
	return rest
}

func (q *jobQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
