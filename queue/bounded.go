package queue

import (
	"context"
	"errors"
	"time"

	"mailservice/internal/email"
	"mailservice/internal/metrics"
)

var (
	// ErrFull is returned by Enqueue when the queue is at capacity.
	ErrFull = errors.New("queue is full")
	// ErrEmpty is returned by Dequeue when nothing arrived before the timeout.
	ErrEmpty = errors.New("queue is empty")
)

// Bounded is a fixed capacity FIFO of pending tasks. It is safe for
// concurrent producers and consumers.
type Bounded struct {
	tasks chan email.Task
}

// NewBounded creates a queue holding at most capacity tasks.
func NewBounded(capacity int) *Bounded {
	if capacity < 1 {
		capacity = 1
	}
	return &Bounded{tasks: make(chan email.Task, capacity)}
}

// Enqueue adds task without blocking. A full queue is left untouched and
// ErrFull is returned.
func (q *Bounded) Enqueue(task email.Task) error {
	select {
	case q.tasks <- task:
		metrics.TasksQueued.Inc()
		metrics.SetQueueDepth(len(q.tasks))
		return nil
	default:
		metrics.TasksRejected.Inc()
		return ErrFull
	}
}

// Dequeue waits up to timeout for the oldest task. It returns ErrEmpty on
// timeout and ctx.Err() when ctx ends first.
func (q *Bounded) Dequeue(ctx context.Context, timeout time.Duration) (email.Task, error) {
	if err := ctx.Err(); err != nil {
		return email.Task{}, err
	}
	select {
	case task := <-q.tasks:
		metrics.SetQueueDepth(len(q.tasks))
		return task, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case task := <-q.tasks:
		metrics.SetQueueDepth(len(q.tasks))
		return task, nil
	case <-timer.C:
		return email.Task{}, ErrEmpty
	case <-ctx.Done():
		return email.Task{}, ctx.Err()
	}
}

// Len returns the number of queued tasks.
func (q *Bounded) Len() int {
	return len(q.tasks)
}

// Cap returns the fixed capacity.
func (q *Bounded) Cap() int {
	return cap(q.tasks)
}
