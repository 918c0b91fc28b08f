package workers

import (
	"context"
	"time"
)

// EventLoop is a single-worker executor. Everything posted to it runs on the
// same worker, one job at a time, which makes it a captured execution
// context: continuations posted back to the loop resume where they started.
type EventLoop struct {
	pool *Pool
}

// NewEventLoop starts a loop with its own dedicated worker
func NewEventLoop(name string) *EventLoop {
	if name == "" {
		name = "loop"
	}
	return &EventLoop{
		pool: NewPool(Config{
			Name:       name,
			MinWorkers: 1,
			MaxWorkers: 1,
			QueueSize:  256,
		}),
	}
}

// Post queues job on the loop's worker
func (l *EventLoop) Post(job Job) error {
	return l.pool.Submit(job)
}

// Pool returns the loop's single-worker pool
func (l *EventLoop) Pool() *Pool {
	return l.pool
}

// Delay waits d without holding the loop worker, then resumes on the loop
func (l *EventLoop) Delay(ctx context.Context, d time.Duration, resume func(w *Worker, err error)) {
	l.pool.Delay(ctx, d, resume)
}

// Stats returns the loop's pool statistics
func (l *EventLoop) Stats() Stats {
	return l.pool.Stats()
}

// Close stops the loop worker after pending jobs drain
func (l *EventLoop) Close() error {
	return l.pool.Shutdown()
}
