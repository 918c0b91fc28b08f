package demo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheEntropyCollective/asyncdemo/pkg/common/workers"
	"github.com/TheEntropyCollective/asyncdemo/pkg/infrastructure/logging"
)

// ErrInvalidOptions is returned when a comparison is requested with a
// non-positive operation count or a negative delay
var ErrInvalidOptions = errors.New("invalid comparison options")

// Options configures one comparison run
type Options struct {
	OperationCount int
	Delay          time.Duration

	// Work runs after each unit's wait, on the worker that resumed it.
	// A non-nil error or a panic fails the whole comparison.
	Work func(ctx context.Context, phase Phase, index int) error

	// OnUnit is called once per finished unit, e.g. to drive a progress bar
	OnUnit func(phase Phase, index int)
}

func (o Options) validate() error {
	if o.OperationCount <= 0 {
		return fmt.Errorf("%w: operation count must be positive, got %d", ErrInvalidOptions, o.OperationCount)
	}
	if o.Delay < 0 {
		return fmt.Errorf("%w: delay cannot be negative, got %v", ErrInvalidOptions, o.Delay)
	}
	return nil
}

// PhaseObserver receives the outcome of each finished phase
type PhaseObserver interface {
	ObservePhase(phase Phase, elapsed time.Duration, distinctWorkers int)
}

// Harness compares blocking and non-blocking execution of the same workload
type Harness struct {
	sched    *workers.Scheduler
	logger   *logging.Logger
	observer PhaseObserver
}

// NewHarness creates a harness running on sched. observer may be nil.
func NewHarness(sched *workers.Scheduler, logger *logging.Logger, observer PhaseObserver) *Harness {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Harness{
		sched:    sched,
		logger:   logger.WithComponent("harness"),
		observer: observer,
	}
}

// RunComparison runs the blocking phase and then the non-blocking phase,
// sampling the pools before, between and after them.
//
// The whole run is driven from the general pool. The blocking phase holds
// one worker for count*delay. The non-blocking phase dispatches every unit
// and returns its worker; units resume on whichever worker is free and a
// join group hands control back once all of them have reported.
func (h *Harness) RunComparison(ctx context.Context, opts Options) (*ComparisonReport, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := &comparisonRun{
		harness: h,
		ctx:     runCtx,
		cancel:  cancel,
		opts:    opts,
		report: &ComparisonReport{
			RunID:       uuid.NewString(),
			Environment: CaptureEnvironment(),
		},
	}

	// The run observes ctx itself and always reports back, so the caller
	// never returns while a unit hook can still start.
	return await(context.WithoutCancel(ctx), h.sched.General(), func(w *workers.Worker, complete func(*ComparisonReport, error)) {
		run.complete = complete
		run.start(w)
	})
}

type comparisonRun struct {
	harness  *Harness
	ctx      context.Context
	cancel   context.CancelFunc
	opts     Options
	report   *ComparisonReport
	complete func(*ComparisonReport, error)

	// stopped is set once the outcome is known; unit hooks hold the read lock
	mutex   sync.RWMutex
	stopped bool
}

func (r *comparisonRun) start(w *workers.Worker) {
	h := r.harness
	h.logger.WithFields(map[string]interface{}{
		"runId":          r.report.RunID,
		"operationCount": r.opts.OperationCount,
		"delay":          r.opts.Delay.String(),
	}).Debug("comparison started")

	r.report.PoolBefore = SnapshotPools("before", h.sched)

	blocking, err := r.blocking(w)
	if err != nil {
		r.fail(PhaseSynchronous, err)
		return
	}
	r.report.Synchronous = blocking
	r.report.PoolAfterSync = SnapshotPools("afterSync", h.sched)
	h.observe(blocking)

	r.nonBlocking(func(w *workers.Worker, async OperationGroupResult, err error) {
		if err != nil {
			r.fail(PhaseAsynchronous, err)
			return
		}
		r.report.Asynchronous = async
		r.report.PoolAfterAsync = SnapshotPools("afterAsync", h.sched)
		h.observe(async)

		r.report.Summary = summarize(r.report)
		h.logger.WithField("runId", r.report.RunID).Infof("comparison finished: sync %.0f ms, async %.0f ms",
			r.report.Synchronous.TotalElapsedMs, r.report.Asynchronous.TotalElapsedMs)
		r.stop()
		r.complete(r.report, nil)
	})
}

// blocking runs every unit back to back on w, holding it through each sleep
func (r *comparisonRun) blocking(w *workers.Worker) (OperationGroupResult, error) {
	ops := make([]OperationDetail, 0, r.opts.OperationCount)
	began := time.Now()

	for i := 0; i < r.opts.OperationCount; i++ {
		if err := r.ctx.Err(); err != nil {
			return OperationGroupResult{}, err
		}

		start := time.Now().UTC()
		startID := w.ID()
		time.Sleep(r.opts.Delay)
		end := time.Now().UTC()

		if err := r.work(PhaseSynchronous, i); err != nil {
			return OperationGroupResult{}, err
		}

		ops = append(ops, newOperationDetail(i, start, end, startID, w.ID(),
			fmt.Sprintf("time.Sleep held %s for the whole wait", w.Name())))
		r.unitDone(PhaseSynchronous, i)
	}

	return newGroupResult(PhaseSynchronous, ops, time.Since(began)), nil
}

// nonBlocking dispatches every unit and returns at once. Units start and
// resume on a phase pool of at most OperationCount workers (and never more
// than the general pool's max), so the phase cannot report more distinct
// workers than it has units. Units write into their own slot so the hot path
// takes no lock; the join group publishes the slots to then on the general
// pool.
func (r *comparisonRun) nonBlocking(then func(w *workers.Worker, group OperationGroupResult, err error)) {
	h := r.harness
	count := r.opts.OperationCount
	size := count
	if limit := h.sched.General().Stats().Max; limit < size {
		size = limit
	}
	lane := workers.NewPool(workers.Config{
		Name:       "nonblocking",
		MinWorkers: size,
		MaxWorkers: size,
		QueueSize:  2 * count,
	})

	slots := make([]OperationDetail, count)
	began := time.Now()

	join := workers.NewGroup(h.sched.General(), count, func(w *workers.Worker, err error) {
		go func() {
			if err := lane.Shutdown(); err != nil {
				h.logger.WithError(err).Debug("phase pool did not drain")
			}
		}()
		if err != nil {
			then(w, OperationGroupResult{}, err)
			return
		}
		then(w, newGroupResult(PhaseAsynchronous, slots, time.Since(began)), nil)
	})

	for i := 0; i < count; i++ {
		index := i
		err := lane.Submit(func(w *workers.Worker) {
			r.unit(w, lane, index, slots, join)
		})
		if err != nil {
			join.Done(fmt.Errorf("dispatch unit %d: %w", index, err))
			return
		}
	}
}

func (r *comparisonRun) unit(w *workers.Worker, lane *workers.Pool, index int, slots []OperationDetail, join *workers.Group) {
	if join.Resolved() {
		return
	}
	if err := r.ctx.Err(); err != nil {
		join.Done(err)
		return
	}

	start := time.Now().UTC()
	startID := w.ID()
	startName := w.Name()

	lane.Delay(r.ctx, r.opts.Delay, func(rw *workers.Worker, err error) {
		if err != nil {
			join.Done(fmt.Errorf("unit %d: %w", index, err))
			return
		}
		if join.Resolved() {
			return
		}
		end := time.Now().UTC()

		ran, err := r.guarded(func() error {
			if err := r.work(PhaseAsynchronous, index); err != nil {
				return err
			}
			note := fmt.Sprintf("released %s during the wait, resumed on %s", startName, rw.Name())
			if rw.ID() == startID {
				note = fmt.Sprintf("released %s during the wait, resumed on the same worker", startName)
			}
			slots[index] = newOperationDetail(index, start, end, startID, rw.ID(), note)
			r.unitDone(PhaseAsynchronous, index)
			return nil
		})
		if ran {
			join.Done(err)
		}
	})
}

// guarded runs fn unless the run has already stopped
func (r *comparisonRun) guarded(fn func() error) (bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if r.stopped {
		return false, nil
	}
	return true, fn()
}

// stop aborts pending delays and waits for running unit hooks. No hook
// starts afterwards.
func (r *comparisonRun) stop() {
	r.cancel()
	r.mutex.Lock()
	r.stopped = true
	r.mutex.Unlock()
}

// work runs the optional per-unit hook, turning panics into faults
func (r *comparisonRun) work(phase Phase, index int) (err error) {
	if r.opts.Work == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s unit %d panicked: %v", phase, index, rec)
		}
	}()
	if err := r.opts.Work(r.ctx, phase, index); err != nil {
		return fmt.Errorf("%s unit %d: %w", phase, index, err)
	}
	return nil
}

func (r *comparisonRun) unitDone(phase Phase, index int) {
	if r.opts.OnUnit != nil {
		r.opts.OnUnit(phase, index)
	}
}

func (r *comparisonRun) fail(phase Phase, err error) {
	r.harness.logger.WithField("runId", r.report.RunID).
		WithField("phase", string(phase)).
		WithError(err).
		Warn("comparison failed")
	r.stop()
	r.complete(nil, fmt.Errorf("%s phase: %w", phase, err))
}

func (h *Harness) observe(group OperationGroupResult) {
	if h.observer == nil {
		return
	}
	h.observer.ObservePhase(group.Phase,
		time.Duration(group.TotalElapsedMs*float64(time.Millisecond)),
		len(group.DistinctWorkerIDs))
}

func summarize(r *ComparisonReport) []string {
	blocking, async := r.Synchronous, r.Asynchronous
	summary := []string{
		fmt.Sprintf("Blocking phase: %d operations in %.0f ms on %d distinct worker(s)",
			len(blocking.Operations), blocking.TotalElapsedMs, len(blocking.DistinctWorkerIDs)),
		fmt.Sprintf("Non-blocking phase: %d operations in %.0f ms on %d distinct worker(s)",
			len(async.Operations), async.TotalElapsedMs, len(async.DistinctWorkerIDs)),
	}
	if async.TotalElapsedMs > 0 {
		summary = append(summary, fmt.Sprintf("Non-blocking waits overlapped: %.1fx faster than blocking ones",
			blocking.TotalElapsedMs/async.TotalElapsedMs))
	}
	summary = append(summary,
		fmt.Sprintf("General pool: %d/%d busy before, %d/%d busy after the non-blocking phase",
			r.PoolBefore.GeneralBusy, r.PoolBefore.GeneralMax,
			r.PoolAfterAsync.GeneralBusy, r.PoolAfterAsync.GeneralMax),
		"Blocking waits keep their worker; non-blocking waits hand it back and may resume elsewhere",
	)
	return summary
}

// await runs body as a future on pool and blocks the calling goroutine, which
// must not be a worker of pool, until it completes or ctx ends.
func await[T any](ctx context.Context, pool *workers.Pool, body func(w *workers.Worker, complete func(T, error))) (T, error) {
	f := workers.NewFuture(body)
	if err := f.Start(pool); err != nil {
		var zero T
		return zero, err
	}
	return f.Wait(ctx)
}

func fmtInvalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidOptions}, args...)...)
}
