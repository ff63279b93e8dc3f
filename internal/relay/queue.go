package relay

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrQueueSaturated is returned by Enqueue when the queue stays full
	// past the enqueue timeout. The task is dropped; callers log and count it.
	ErrQueueSaturated = errors.New("delivery queue saturated")
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("delivery queue closed")
)

// Queue is a bounded FIFO of delivery tasks decoupling event ingestion
// from network delivery. Enqueue blocks up to a timeout under backpressure;
// Dequeue blocks until a task arrives, the context is done, or the queue
// is closed and drained.
type Queue struct {
	tasks chan *DeliveryTask
	done  chan struct{}
	once  sync.Once
}

// NewQueue creates a Queue with the given capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		tasks: make(chan *DeliveryTask, capacity),
		done:  make(chan struct{}),
	}
}

// Enqueue appends the task, blocking up to timeout when the queue is full.
// It returns ErrQueueSaturated when the timeout elapses and ErrQueueClosed
// after Close.
func (q *Queue) Enqueue(task *DeliveryTask, timeout time.Duration) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.tasks <- task:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-timer.C:
		return ErrQueueSaturated
	}
}

// Dequeue removes the oldest task. It blocks until a task is available,
// returning ok=false once the queue is closed and fully drained, or when
// ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*DeliveryTask, bool) {
	// Buffered tasks win over close so the consumer drains before exiting.
	select {
	case task := <-q.tasks:
		return task, true
	default:
	}

	select {
	case task := <-q.tasks:
		return task, true
	case <-ctx.Done():
		return nil, false
	case <-q.done:
		select {
		case task := <-q.tasks:
			return task, true
		default:
			return nil, false
		}
	}
}

// Close stops the queue. No tasks are accepted afterwards; blocked
// dequeuers drain the remaining backlog and then receive the terminal
// signal. Close is idempotent.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}

// Len reports the current backlog size.
func (q *Queue) Len() int {
	return len(q.tasks)
}
