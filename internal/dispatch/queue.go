package dispatch

import (
	"sync"

	"github.com/sweeney/hvac-monitor/internal/queue"
)

// jobQueue is a bounded FIFO of jobs that drops its oldest job when full.
// Safe for concurrent use.
type jobQueue struct {
	mu   sync.Mutex
	ring *queue.Ring[Job]
	// ready holds a token while the queue may be non-empty
	ready chan struct{}
}

func newJobQueue(capacity int) *jobQueue {
	return &jobQueue{
		ring:  queue.NewRing[Job](capacity),
		ready: make(chan struct{}, 1),
	}
}

// push appends a job. If the queue was full the evicted job is returned.
func (q *jobQueue) push(job Job) (Job, bool) {
	q.mu.Lock()
	evicted, full := q.ring.Push(job)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return evicted, full
}

func (q *jobQueue) pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.Pop()
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.Len()
}

func (q *jobQueue) droppedCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.Dropped()
}
