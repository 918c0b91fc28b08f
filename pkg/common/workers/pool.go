package workers

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrPoolClosed is returned when submitting to a pool that has been shut down
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrQueueFull is returned when the pool's job queue has no free slot
	ErrQueueFull = errors.New("worker pool queue is full")
)

// workerSeq hands out process-unique worker ids across every pool.
var workerSeq atomic.Int64

// Job is a unit of work executed by a pool worker.
// The worker argument identifies which worker is running the job.
type Job func(w *Worker)

// PanicHandler is called when a job panics. The pool keeps running.
type PanicHandler func(workerID int, recovered interface{})

// Worker is a long-lived goroutine owned by a Pool
type Worker struct {
	id   int
	pool *Pool
}

// ID returns the process-unique worker id
func (w *Worker) ID() int {
	return w.id
}

// Pool returns the pool that owns this worker
func (w *Worker) Pool() *Pool {
	return w.pool
}

// Name returns a human readable worker name such as "general-7"
func (w *Worker) Name() string {
	return fmt.Sprintf("%s-%d", w.pool.config.Name, w.id)
}

// Config holds configuration for the worker pool
type Config struct {
	// Name labels the pool in worker names, snapshots and metrics
	Name string

	// MinWorkers are started eagerly and never retire.
	// If 0, defaults to runtime.NumCPU()
	MinWorkers int

	// MaxWorkers bounds pool growth.
	// If 0, defaults to MinWorkers * 4
	MaxWorkers int

	// QueueSize is the size of the job queue buffer.
	// If 0, defaults to MaxWorkers * 64
	QueueSize int

	// IdleTimeout is how long a worker above MinWorkers may stay idle before retiring
	IdleTimeout time.Duration

	// ShutdownTimeout is how long Shutdown waits for running jobs
	ShutdownTimeout time.Duration

	// OnPanic is called when a job panics (optional)
	OnPanic PanicHandler
}

// Stats holds a point-in-time view of pool occupancy
type Stats struct {
	Name      string
	Min       int
	Max       int
	Live      int
	Busy      int
	Idle      int
	Queued    int
	Available int
	Spawned   int64
	Retired   int64
	Submitted int64
	Completed int64
	Panicked  int64
}

// Pool is a dynamically sized worker pool. It keeps MinWorkers alive,
// grows up to MaxWorkers when queued jobs outnumber idle workers and
// retires surplus workers after IdleTimeout.
type Pool struct {
	config Config
	jobs   chan Job
	wg     sync.WaitGroup

	mutex  sync.Mutex
	live   int
	busy   int
	idle   int
	closed bool

	// Statistics
	spawned   int64
	retired   int64
	submitted int64
	completed int64
	panicked  int64
}

// NewPool creates and starts a worker pool with the given configuration
func NewPool(config Config) *Pool {
	if config.Name == "" {
		config.Name = "worker"
	}
	if config.MinWorkers <= 0 {
		config.MinWorkers = runtime.NumCPU()
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = config.MinWorkers * 4
	}
	if config.MaxWorkers < config.MinWorkers {
		config.MaxWorkers = config.MinWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.MaxWorkers * 64
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 30 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	p := &Pool{
		config: config,
		jobs:   make(chan Job, config.QueueSize),
	}

	p.mutex.Lock()
	for i := 0; i < config.MinWorkers; i++ {
		p.spawnLocked()
	}
	p.mutex.Unlock()

	return p
}

// Name returns the configured pool name
func (p *Pool) Name() string {
	return p.config.Name
}

// Submit queues a job for execution. It never blocks.
func (p *Pool) Submit(job Job) error {
	if job == nil {
		return fmt.Errorf("nil job submitted to pool %s", p.config.Name)
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	// Grow when everything already queued would consume every idle worker
	if len(p.jobs) >= p.idle && p.live < p.config.MaxWorkers {
		p.spawnLocked()
	}

	select {
	case p.jobs <- job:
		p.submitted++
		return nil
	default:
		return ErrQueueFull
	}
}

// Delay waits d without holding a worker of this pool, then queues resume on it
func (p *Pool) Delay(ctx context.Context, d time.Duration, resume func(w *Worker, err error)) {
	delayOn(ctx, p, d, resume)
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return Stats{
		Name:      p.config.Name,
		Min:       p.config.MinWorkers,
		Max:       p.config.MaxWorkers,
		Live:      p.live,
		Busy:      p.busy,
		Idle:      p.idle,
		Queued:    len(p.jobs),
		Available: p.config.MaxWorkers - p.busy,
		Spawned:   p.spawned,
		Retired:   p.retired,
		Submitted: p.submitted,
		Completed: p.completed,
		Panicked:  p.panicked,
	}
}

// Shutdown stops accepting jobs, lets queued jobs drain and waits for
// workers to exit or for the shutdown timeout to elapse.
func (p *Pool) Shutdown() error {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		return fmt.Errorf("pool %s: workers still busy after %v", p.config.Name, p.config.ShutdownTimeout)
	}
}

// spawnLocked starts a new worker. Caller must hold p.mutex.
func (p *Pool) spawnLocked() {
	w := &Worker{
		id:   int(workerSeq.Add(1)),
		pool: p,
	}
	p.live++
	p.spawned++
	p.wg.Add(1)
	go p.worker(w)
}

// worker is the main worker goroutine
func (p *Pool) worker(w *Worker) {
	defer p.wg.Done()

	idle := time.NewTimer(p.config.IdleTimeout)
	defer idle.Stop()

	for {
		p.mutex.Lock()
		p.idle++
		p.mutex.Unlock()

		select {
		case job, ok := <-p.jobs:
			p.mutex.Lock()
			p.idle--
			if !ok {
				p.live--
				p.mutex.Unlock()
				return
			}
			p.busy++
			p.mutex.Unlock()

			p.run(w, job)

			p.mutex.Lock()
			p.busy--
			p.completed++
			p.mutex.Unlock()

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(p.config.IdleTimeout)

		case <-idle.C:
			p.mutex.Lock()
			p.idle--
			if p.live > p.config.MinWorkers && len(p.jobs) == 0 {
				p.live--
				p.retired++
				p.mutex.Unlock()
				return
			}
			p.mutex.Unlock()
			idle.Reset(p.config.IdleTimeout)
		}
	}
}

// run executes a job and recovers from panics so the worker survives
func (p *Pool) run(w *Worker, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.mutex.Lock()
			p.panicked++
			p.mutex.Unlock()
			if p.config.OnPanic != nil {
				p.config.OnPanic(w.id, r)
			}
		}
	}()
	job(w)
}
