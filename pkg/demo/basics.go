package demo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/TheEntropyCollective/asyncdemo/pkg/common/workers"
)

// ThreadInfo reports which worker ran code before and after a non-blocking wait
type ThreadInfo struct {
	WorkerBeforeWait int    `json:"workerBeforeWait"`
	WorkerAfterWait  int    `json:"workerAfterWait"`
	IsPoolWorker     bool   `json:"isPoolWorker"`
	WorkerName       string `json:"workerName"`
	Explanation      string `json:"explanation"`
}

// ThreadInfo waits briefly without holding a worker and reports where the
// continuation resumed
func (s *Service) ThreadInfo(ctx context.Context) (ThreadInfo, error) {
	return await(ctx, s.sched.General(), func(w *workers.Worker, complete func(ThreadInfo, error)) {
		before := w.ID()
		s.sched.Delay(ctx, s.timings.Short, func(w *workers.Worker, err error) {
			if err != nil {
				complete(ThreadInfo{}, err)
				return
			}
			info := ThreadInfo{
				WorkerBeforeWait: before,
				WorkerAfterWait:  w.ID(),
				IsPoolWorker:     w.Pool() == s.sched.General(),
				WorkerName:       w.Name(),
				Explanation:      "The continuation was switched to another worker from the pool",
			}
			if info.WorkerBeforeWait == info.WorkerAfterWait {
				info.Explanation = "The continuation ran on the same worker"
			}
			complete(info, nil)
		})
	})
}

// ComparisonResult times one blocking wait against one non-blocking wait
type ComparisonResult struct {
	SynchronousTimeMs  int64  `json:"synchronousTime"`
	AsynchronousTimeMs int64  `json:"asynchronousTime"`
	TotalTimeMs        int64  `json:"totalTime"`
	Explanation        string `json:"explanation"`
}

// CompareSimple sleeps on a worker and then waits without holding one
func (s *Service) CompareSimple(ctx context.Context) (ComparisonResult, error) {
	return await(ctx, s.sched.General(), func(w *workers.Worker, complete func(ComparisonResult, error)) {
		began := time.Now()

		time.Sleep(s.timings.Long)
		syncTime := time.Since(began)

		asyncStart := time.Now()
		s.sched.Delay(ctx, s.timings.Long, func(w *workers.Worker, err error) {
			if err != nil {
				complete(ComparisonResult{}, err)
				return
			}
			complete(ComparisonResult{
				SynchronousTimeMs:  syncTime.Milliseconds(),
				AsynchronousTimeMs: time.Since(asyncStart).Milliseconds(),
				TotalTimeMs:        time.Since(began).Milliseconds(),
				Explanation:        "time.Sleep blocks the worker completely, a non-blocking delay lets it serve other work",
			}, nil)
		})
	})
}

// TaskResult describes one task of the parallel demonstration
type TaskResult struct {
	TaskID          int       `json:"taskId"`
	StartWorkerID   int       `json:"startWorkerId"`
	EndWorkerID     int       `json:"endWorkerId"`
	ExecutionTimeMs int64     `json:"executionTime"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	WorkerSwitched  bool      `json:"workerSwitched"`
}

// ParallelTasksResult aggregates the parallel demonstration
type ParallelTasksResult struct {
	Tasks                []TaskResult `json:"tasks"`
	TotalExecutionTimeMs int64        `json:"totalExecutionTime"`
	TaskCount            int          `json:"taskCount"`
	Explanation          string       `json:"explanation"`
}

// ParallelTasks starts five futures with random waits and joins them
func (s *Service) ParallelTasks(ctx context.Context) (ParallelTasksResult, error) {
	const taskCount = 5
	pool := s.sched.General()
	began := time.Now()

	futures := make([]*workers.Future[TaskResult], taskCount)
	for i := range futures {
		taskID := i + 1
		delay := s.randomBetween(s.timings.ParallelMin, s.timings.ParallelMax)
		futures[i] = workers.NewFuture(func(w *workers.Worker, complete func(TaskResult, error)) {
			start := time.Now()
			startID := w.ID()
			s.sched.Delay(ctx, delay, func(w *workers.Worker, err error) {
				if err != nil {
					complete(TaskResult{}, err)
					return
				}
				complete(TaskResult{
					TaskID:          taskID,
					StartWorkerID:   startID,
					EndWorkerID:     w.ID(),
					ExecutionTimeMs: delay.Milliseconds(),
					StartTime:       start,
					EndTime:         time.Now(),
					WorkerSwitched:  startID != w.ID(),
				}, nil)
			})
		})
	}

	return await(ctx, pool, func(w *workers.Worker, complete func(ParallelTasksResult, error)) {
		results := make([]TaskResult, taskCount)
		join := workers.NewGroup(pool, taskCount, func(w *workers.Worker, err error) {
			if err != nil {
				complete(ParallelTasksResult{}, err)
				return
			}
			total := time.Since(began)
			complete(ParallelTasksResult{
				Tasks:                results,
				TotalExecutionTimeMs: total.Milliseconds(),
				TaskCount:            taskCount,
				Explanation:          fmt.Sprintf("All %d tasks ran concurrently in %d ms", taskCount, total.Milliseconds()),
			}, nil)
		})

		for i, f := range futures {
			index := i
			f.Then(pool, func(w *workers.Worker, v TaskResult, err error) {
				if err == nil {
					results[index] = v
				}
				join.Done(err)
			})
			if err := f.Start(pool); err != nil {
				join.Done(err)
				return
			}
		}
	})
}

// LifecycleStep records a future's status at one point of its life
type LifecycleStep struct {
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	WorkerID  int       `json:"workerId"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskLifecycleResult is the output of the lifecycle demonstration
type TaskLifecycleResult struct {
	Result         string          `json:"result"`
	LifecycleSteps []LifecycleStep `json:"lifecycleSteps"`
	Explanation    string          `json:"explanation"`
}

// TaskLifecycle walks a future through Created, WaitingToRun/Running and
// RanToCompletion, sampling its status at each step
func (s *Service) TaskLifecycle(ctx context.Context) (TaskLifecycleResult, error) {
	pool := s.sched.General()

	return await(ctx, pool, func(w *workers.Worker, complete func(TaskLifecycleResult, error)) {
		var steps []LifecycleStep
		task := workers.FromFunc(func(w *workers.Worker) (string, error) {
			time.Sleep(s.timings.Long)
			return "Task completed", nil
		})
		record := func(step string, w *workers.Worker) {
			steps = append(steps, LifecycleStep{
				Step:      step,
				Status:    task.Status().String(),
				WorkerID:  w.ID(),
				Timestamp: time.Now(),
			})
		}

		record("Created", w)
		if err := task.Start(pool); err != nil {
			complete(TaskLifecycleResult{}, err)
			return
		}
		record("Started", w)

		s.sched.Delay(ctx, s.timings.Short, func(w *workers.Worker, err error) {
			if err != nil {
				complete(TaskLifecycleResult{}, err)
				return
			}
			record("Running", w)

			task.Then(pool, func(w *workers.Worker, result string, err error) {
				if err != nil {
					complete(TaskLifecycleResult{}, err)
					return
				}
				record("Completed", w)
				complete(TaskLifecycleResult{
					Result:         result,
					LifecycleSteps: steps,
					Explanation:    "A future's full lifecycle, from Created to RanToCompletion",
				}, nil)
			})
		})
	})
}

// PoolUsage is one record of the pool demonstration
type PoolUsage struct {
	TaskID       int       `json:"taskId"`
	WorkerID     int       `json:"workerId"`
	IsPoolWorker bool      `json:"isPoolWorker"`
	Time         time.Time `json:"startTime"`
	IsCompletion bool      `json:"isCompletion"`
}

// ThreadPoolResult shows how pool workers are shared between tasks
type ThreadPoolResult struct {
	WorkerInfos         []PoolUsage `json:"workerInfos"`
	AvailableGeneral    int         `json:"availableGeneralWorkers"`
	AvailableCompletion int         `json:"availableCompletionWorkers"`
	MaxGeneral          int         `json:"maxGeneralWorkers"`
	MaxCompletion       int         `json:"maxCompletionWorkers"`
	UniqueWorkersUsed   int         `json:"uniqueWorkersUsed"`
	Explanation         string      `json:"explanation"`
}

// ThreadPool runs ten short tasks and records which worker started and
// finished each of them
func (s *Service) ThreadPool(ctx context.Context) (ThreadPoolResult, error) {
	const taskCount = 10
	pool := s.sched.General()

	return await(ctx, pool, func(w *workers.Worker, complete func(ThreadPoolResult, error)) {
		// Two slots per task: start and completion
		slots := make([]PoolUsage, taskCount*2)

		join := workers.NewGroup(pool, taskCount, func(w *workers.Worker, err error) {
			if err != nil {
				complete(ThreadPoolResult{}, err)
				return
			}

			sort.SliceStable(slots, func(i, j int) bool { return slots[i].TaskID < slots[j].TaskID })
			unique := make(map[int]struct{})
			for _, u := range slots {
				unique[u.WorkerID] = struct{}{}
			}
			snap := SnapshotPools("thread-pool", s.sched)
			complete(ThreadPoolResult{
				WorkerInfos:         slots,
				AvailableGeneral:    snap.GeneralAvailable,
				AvailableCompletion: snap.CompletionAvailable,
				MaxGeneral:          snap.GeneralMax,
				MaxCompletion:       snap.CompletionMax,
				UniqueWorkersUsed:   len(unique),
				Explanation:         "The pool manages workers itself and reuses the same workers for different tasks",
			}, nil)
		})

		for i := 0; i < taskCount; i++ {
			taskID := i
			delay := s.randomBetween(s.timings.PoolMin, s.timings.PoolMax)
			err := pool.Submit(func(w *workers.Worker) {
				slots[taskID*2] = PoolUsage{
					TaskID:       taskID,
					WorkerID:     w.ID(),
					IsPoolWorker: true,
					Time:         time.Now(),
				}
				s.sched.Delay(ctx, delay, func(w *workers.Worker, err error) {
					if err == nil {
						slots[taskID*2+1] = PoolUsage{
							TaskID:       taskID,
							WorkerID:     w.ID(),
							IsPoolWorker: true,
							Time:         time.Now(),
							IsCompletion: true,
						}
					}
					join.Done(err)
				})
			})
			if err != nil {
				join.Done(err)
				return
			}
		}
	})
}

// ContinuationStep compares the worker before and after one wait
type ContinuationStep struct {
	Description     string `json:"description"`
	WorkerBefore    int    `json:"workerBefore"`
	WorkerAfter     int    `json:"workerAfter"`
	ContextCaptured bool   `json:"contextCaptured"`
}

// ContinuationResult is the output of the continuation affinity demonstration
type ContinuationResult struct {
	Steps       []ContinuationStep `json:"steps"`
	Explanation string             `json:"explanation"`
}

// ContinuationAffinity waits once on a captured single-worker event loop and
// once on the shared pool. Only the loop guarantees resumption on the same
// worker.
func (s *Service) ContinuationAffinity(ctx context.Context) (ContinuationResult, error) {
	loop := workers.NewEventLoop("captured")
	defer loop.Close()

	measure := func(pool *workers.Pool, delay func(context.Context, time.Duration, func(*workers.Worker, error)), description string) (ContinuationStep, error) {
		return await(ctx, pool, func(w *workers.Worker, complete func(ContinuationStep, error)) {
			before := w.ID()
			delay(ctx, s.timings.Short, func(w *workers.Worker, err error) {
				if err != nil {
					complete(ContinuationStep{}, err)
					return
				}
				complete(ContinuationStep{
					Description:     description,
					WorkerBefore:    before,
					WorkerAfter:     w.ID(),
					ContextCaptured: before == w.ID(),
				}, nil)
			})
		})
	}

	captured, err := measure(loop.Pool(), loop.Delay, "Resume on the captured event loop")
	if err != nil {
		return ContinuationResult{}, err
	}
	free, err := measure(s.sched.General(), s.sched.Delay, "Resume on any pool worker")
	if err != nil {
		return ContinuationResult{}, err
	}

	return ContinuationResult{
		Steps:       []ContinuationStep{captured, free},
		Explanation: "Resuming on any pool worker avoids capturing the original execution context",
	}, nil
}
