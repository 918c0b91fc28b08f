package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Status is the lifecycle state of a Future
type Status int

const (
	StatusCreated Status = iota
	StatusWaitingToRun
	StatusRunning
	StatusRanToCompletion
	StatusFaulted
	StatusCanceled
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "Created"
	case StatusWaitingToRun:
		return "WaitingToRun"
	case StatusRunning:
		return "Running"
	case StatusRanToCompletion:
		return "RanToCompletion"
	case StatusFaulted:
		return "Faulted"
	case StatusCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Completed reports whether the status is terminal
func (s Status) Completed() bool {
	return s == StatusRanToCompletion || s == StatusFaulted || s == StatusCanceled
}

// Future is a value produced asynchronously on a pool worker.
// The body receives a complete callback and may finish on a different
// worker than the one it started on.
type Future[T any] struct {
	body func(w *Worker, complete func(T, error))

	mutex  sync.Mutex
	status Status
	value  T
	err    error
	done   chan struct{}
	conts  []func(T, error)
}

// NewFuture creates a future in the Created state. body must call complete
// exactly once; extra calls are ignored.
func NewFuture[T any](body func(w *Worker, complete func(T, error))) *Future[T] {
	return &Future[T]{
		body: body,
		done: make(chan struct{}),
	}
}

// FromFunc creates a future whose body runs to completion on one worker
func FromFunc[T any](fn func(w *Worker) (T, error)) *Future[T] {
	return NewFuture(func(w *Worker, complete func(T, error)) {
		complete(fn(w))
	})
}

// Start queues the body on pool
func (f *Future[T]) Start(pool *Pool) error {
	f.mutex.Lock()
	if f.status != StatusCreated {
		f.mutex.Unlock()
		return fmt.Errorf("future already started (status %s)", f.status)
	}
	f.status = StatusWaitingToRun
	f.mutex.Unlock()

	err := pool.Submit(func(w *Worker) {
		f.mutex.Lock()
		f.status = StatusRunning
		f.mutex.Unlock()

		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.complete(zero, fmt.Errorf("future panicked: %v", r))
			}
		}()
		f.body(w, f.complete)
	})
	if err != nil {
		var zero T
		f.complete(zero, err)
		return err
	}
	return nil
}

// Status returns the current lifecycle state
func (f *Future[T]) Status() Status {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.status
}

// Done is closed once the future reaches a terminal state
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Err returns the fault of a completed future, nil otherwise
func (f *Future[T]) Err() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.err
}

// Wait blocks the calling goroutine until the future completes or ctx ends.
// Calling Wait from a pool worker occupies that worker for the whole wait.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mutex.Lock()
		defer f.mutex.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then queues cont on pool once the future completes. No worker is held
// while waiting.
func (f *Future[T]) Then(pool *Pool, cont func(w *Worker, v T, err error)) {
	schedule := func(v T, err error) {
		if subErr := pool.Submit(func(w *Worker) { cont(w, v, err) }); subErr != nil {
			cont(nil, v, fmt.Errorf("resume future continuation: %w", subErr))
		}
	}

	f.mutex.Lock()
	if f.status.Completed() {
		v, err := f.value, f.err
		f.mutex.Unlock()
		schedule(v, err)
		return
	}
	f.conts = append(f.conts, schedule)
	f.mutex.Unlock()
}

func (f *Future[T]) complete(v T, err error) {
	f.mutex.Lock()
	if f.status.Completed() {
		f.mutex.Unlock()
		return
	}
	f.value, f.err = v, err
	switch {
	case err == nil:
		f.status = StatusRanToCompletion
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		f.status = StatusCanceled
	default:
		f.status = StatusFaulted
	}
	conts := f.conts
	f.conts = nil
	close(f.done)
	f.mutex.Unlock()

	for _, c := range conts {
		c(v, err)
	}
}
