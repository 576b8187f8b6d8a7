package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default worker timings.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultStopGrace    = 2 * time.Second
)

// WorkerOptions tunes the worker loop. Zero values use the defaults.
type WorkerOptions struct {
	PollInterval time.Duration
	StopGrace    time.Duration
}

// Worker is the single background consumer of a Bounded queue. It waits on
// the queue, delivers each task through its Processor and goes back to
// waiting. Task level failures never end the loop.
type Worker struct {
	queue     *Bounded
	processor *Processor
	log       *zap.Logger
	poll      time.Duration
	grace     time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker returns a stopped worker draining q.
func NewWorker(q *Bounded, processor *Processor, log *zap.Logger, opts WorkerOptions) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = DefaultStopGrace
	}
	return &Worker{
		queue:     q,
		processor: processor,
		log:       log,
		poll:      opts.PollInterval,
		grace:     opts.StopGrace,
	}
}

// Start launches the loop. It reports false, and does nothing, when the
// loop is already running.
func (w *Worker) Start() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.runningLocked() {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	go w.run(ctx, done)
	w.log.Info("queue worker started", zap.Int("capacity", w.queue.Cap()), zap.Duration("poll", w.poll))
	return true
}

// Stop asks the loop to exit and waits up to the grace period. A delivery
// in progress is not interrupted; Stop reports false if the loop was still
// busy when the grace period ran out. Tasks still queued stay queued.
func (w *Worker) Stop() bool {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return true
	}
	cancel()

	timer := time.NewTimer(w.grace)
	defer timer.Stop()
	select {
	case <-done:
		w.log.Info("queue worker stopped", zap.Int("pending", w.queue.Len()))
		return true
	case <-timer.C:
		w.log.Warn("queue worker still busy after grace period", zap.Duration("grace", w.grace))
		return false
	}
}

// Running reports whether the loop goroutine is alive.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runningLocked()
}

func (w *Worker) runningLocked() bool {
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	// Deliveries outlive a stop request so an in-flight task always finishes.
	deliveryCtx := context.WithoutCancel(ctx)
	for {
		task, err := w.queue.Dequeue(ctx, w.poll)
		if errors.Is(err, ErrEmpty) {
			continue
		}
		if err != nil {
			return
		}
		_, _ = w.processor.Process(deliveryCtx, PathQueue, task)
	}
}
