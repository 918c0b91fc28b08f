// Package workers provides the execution substrate for the async demonstrations:
// numbered worker pools, a scheduler pairing a general pool with an
// I/O-completion pool, non-blocking delays, join groups, futures and a
// single-worker event loop.
//
// # Workers and Ids
//
// Every worker gets a process-unique integer id when it is spawned. Ids are
// never reused, so comparing the id recorded before and after a wait tells
// whether the continuation resumed on the same worker.
//
// # Blocking vs. Non-Blocking Waits
//
// A job that calls time.Sleep keeps its worker busy for the whole sleep.
// Pool.Delay and Scheduler.Delay instead arm a timer and return, releasing
// the worker; when the timer fires the continuation is queued on the pool and
// runs on whichever worker is free:
//
//	sched.Go(func(w *workers.Worker) {
//		before := w.ID()
//		sched.Delay(ctx, 500*time.Millisecond, func(w *workers.Worker, err error) {
//			if err != nil {
//				return
//			}
//			after := w.ID() // may differ from before
//		})
//	})
//
// # Pool Sizing
//
// MinWorkers are started eagerly. The pool grows one worker at a time, up to
// MaxWorkers, whenever queued jobs would use up every idle worker. Workers
// above MinWorkers retire after IdleTimeout without work.
//
// # Joining
//
// Group resumes a continuation once n units report, or on the first error.
// Future carries a lifecycle Status and supports both Wait (blocks the calling
// goroutine) and Then (queues a continuation, blocks nothing).
//
// # Captured Context
//
// EventLoop owns exactly one worker. Continuations delayed on a loop always
// resume on that worker, which models a captured synchronization context.
package workers
