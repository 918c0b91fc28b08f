package workers

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Scheduler pairs a general-purpose pool with an I/O-completion pool.
// General work and continuations run on the general pool. Blocking I/O is
// handed to the completion pool so it never occupies a general worker.
type Scheduler struct {
	general    *Pool
	completion *Pool
}

// SchedulerConfig sizes both pools
type SchedulerConfig struct {
	General    Config
	Completion Config
}

// NewScheduler creates both pools
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.General.Name == "" {
		config.General.Name = "general"
	}
	if config.Completion.Name == "" {
		config.Completion.Name = "completion"
	}
	return &Scheduler{
		general:    NewPool(config.General),
		completion: NewPool(config.Completion),
	}
}

// General returns the general-purpose pool
func (s *Scheduler) General() *Pool {
	return s.general
}

// Completion returns the I/O-completion pool
func (s *Scheduler) Completion() *Pool {
	return s.completion
}

// Go runs job on the general pool
func (s *Scheduler) Go(job Job) error {
	return s.general.Submit(job)
}

// Delay waits d without holding any worker. When the timer fires, resume is
// queued on the general pool and runs on whichever worker picks it up.
// If ctx ends first the timer is stopped and resume receives ctx.Err().
// If the continuation cannot be queued, resume runs inline with a nil worker
// and the submission error.
func (s *Scheduler) Delay(ctx context.Context, d time.Duration, resume func(w *Worker, err error)) {
	s.general.Delay(ctx, d, resume)
}

// Offload runs a blocking call on the completion pool and posts its result
// back to the general pool, so the calling worker is released while the
// call is in flight.
func (s *Scheduler) Offload(call func(io *Worker) error, resume func(w *Worker, ioWorkerID int, err error)) {
	deliver := func(ioID int, err error) {
		if subErr := s.general.Submit(func(w *Worker) { resume(w, ioID, err) }); subErr != nil {
			resume(nil, ioID, fmt.Errorf("resume after offload: %w", subErr))
		}
	}

	job := func(io *Worker) {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("offloaded call panicked: %v", r)
			}
			deliver(io.ID(), err)
		}()
		err = call(io)
	}

	if err := s.completion.Submit(job); err != nil {
		deliver(0, fmt.Errorf("offload: %w", err))
	}
}

// Shutdown stops both pools
func (s *Scheduler) Shutdown() error {
	gerr := s.general.Shutdown()
	cerr := s.completion.Shutdown()
	if gerr != nil {
		return gerr
	}
	return cerr
}

func delayOn(ctx context.Context, pool *Pool, d time.Duration, resume func(w *Worker, err error)) {
	deliver := func(err error) {
		if subErr := pool.Submit(func(w *Worker) { resume(w, err) }); subErr != nil {
			resume(nil, fmt.Errorf("resume on %s after delay: %w", pool.Name(), subErr))
		}
	}

	if err := ctx.Err(); err != nil {
		deliver(err)
		return
	}

	if ctx.Done() == nil {
		time.AfterFunc(d, func() { deliver(nil) })
		return
	}

	var (
		once  sync.Once
		mutex sync.Mutex
		fired bool
		stop  func() bool
	)
	fire := func(err error) { once.Do(func() { deliver(err) }) }

	timer := time.AfterFunc(d, func() {
		mutex.Lock()
		fired = true
		unregister := stop
		mutex.Unlock()
		if unregister != nil {
			unregister()
		}
		fire(nil)
	})
	unregister := context.AfterFunc(ctx, func() {
		timer.Stop()
		fire(ctx.Err())
	})

	// The timer may already have fired before the ctx hook was registered
	mutex.Lock()
	stop = unregister
	already := fired
	mutex.Unlock()
	if already {
		unregister()
	}
}
