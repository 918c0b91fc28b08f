package demo

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/asyncdemo/pkg/infrastructure/config"
	"github.com/TheEntropyCollective/asyncdemo/pkg/infrastructure/logging"
)

func newTestService(t *testing.T, mutate func(*Settings)) *Service {
	t.Helper()
	settings := DefaultSettings()
	settings.StreamInterval = 5 * time.Millisecond
	settings.CancellationStep = 10 * time.Millisecond
	settings.HTTPTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&settings)
	}
	logger := logging.NewLogger(&logging.Config{Level: logging.ErrorLevel, Output: io.Discard})
	return NewService(newTestScheduler(t), settings, logger, WithTimings(DefaultTimings().Scale(0.05)))
}

func TestThreadInfo(t *testing.T) {
	s := newTestService(t, nil)

	info, err := s.ThreadInfo(context.Background())
	require.NoError(t, err)
	assert.Positive(t, info.WorkerBeforeWait)
	assert.Positive(t, info.WorkerAfterWait)
	assert.True(t, info.IsPoolWorker)
	assert.Contains(t, info.WorkerName, "general-")
	assert.NotEmpty(t, info.Explanation)
}

func TestCompareSimple(t *testing.T) {
	s := newTestService(t, nil)
	long := s.timings.Long.Milliseconds()

	res, err := s.CompareSimple(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.SynchronousTimeMs, long)
	assert.GreaterOrEqual(t, res.AsynchronousTimeMs, long)
	assert.GreaterOrEqual(t, res.TotalTimeMs, 2*long)
}

func TestParallelTasks(t *testing.T) {
	s := newTestService(t, nil)

	start := time.Now()
	res, err := s.ParallelTasks(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Tasks, 5)
	assert.Equal(t, 5, res.TaskCount)
	for i, task := range res.Tasks {
		assert.Equal(t, i+1, task.TaskID)
		assert.Equal(t, task.StartWorkerID != task.EndWorkerID, task.WorkerSwitched)
		assert.GreaterOrEqual(t, task.ExecutionTimeMs, s.timings.ParallelMin.Milliseconds())
		assert.False(t, task.EndTime.Before(task.StartTime))
	}
	assert.Less(t, time.Since(start), 5*s.timings.ParallelMax, "tasks overlap")
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestService(t, nil)

	res, err := s.TaskLifecycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Task completed", res.Result)

	require.Len(t, res.LifecycleSteps, 4)
	assert.Equal(t, "Created", res.LifecycleSteps[0].Status)
	assert.Contains(t, []string{"WaitingToRun", "Running"}, res.LifecycleSteps[1].Status)
	assert.Equal(t, "Running", res.LifecycleSteps[2].Status)
	assert.Equal(t, "RanToCompletion", res.LifecycleSteps[3].Status)
}

func TestThreadPool(t *testing.T) {
	s := newTestService(t, nil)

	res, err := s.ThreadPool(context.Background())
	require.NoError(t, err)
	require.Len(t, res.WorkerInfos, 20)
	assert.True(t, sort.SliceIsSorted(res.WorkerInfos, func(i, j int) bool {
		return res.WorkerInfos[i].TaskID < res.WorkerInfos[j].TaskID
	}))

	completions := 0
	for _, u := range res.WorkerInfos {
		if u.IsCompletion {
			completions++
		}
	}
	assert.Equal(t, 10, completions)
	assert.Equal(t, 4, res.MaxGeneral)
	assert.Equal(t, 2, res.MaxCompletion)
	assert.GreaterOrEqual(t, res.UniqueWorkersUsed, 1)
	assert.LessOrEqual(t, res.UniqueWorkersUsed, 4)
}

func TestContinuationAffinity(t *testing.T) {
	s := newTestService(t, nil)

	res, err := s.ContinuationAffinity(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Steps, 2)

	captured := res.Steps[0]
	assert.True(t, captured.ContextCaptured, "the event loop always resumes on its own worker")
	assert.Equal(t, captured.WorkerBefore, captured.WorkerAfter)

	free := res.Steps[1]
	assert.Equal(t, free.WorkerBefore == free.WorkerAfter, free.ContextCaptured)
}

func TestStream(t *testing.T) {
	s := newTestService(t, nil)

	items, err := s.StreamAll(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 5)
	for i, item := range items {
		assert.Equal(t, i+1, item.ID)
		assert.Equal(t, fmt.Sprintf("Stream item %d", i+1), item.Data)
		if i > 0 {
			assert.False(t, item.Timestamp.Before(items[i-1].Timestamp))
		}
	}
}

func TestStreamStopsOnEmitError(t *testing.T) {
	s := newTestService(t, nil)
	stop := assert.AnError

	n := 0
	err := s.Stream(context.Background(), func(StreamItem) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, n)
}

func TestCancellationCompletes(t *testing.T) {
	s := newTestService(t, func(st *Settings) { st.CancellationSteps = 4 })

	res, err := s.Cancellation(context.Background(), CancellationOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.False(t, res.WasCancelled)
	assert.Equal(t, 4, res.CompletedSteps)
	assert.Equal(t, []string{
		"Step 1/4 completed", "Step 2/4 completed", "Step 3/4 completed", "Step 4/4 completed",
	}, res.Steps)
}

func TestCancellationAfterThirdStep(t *testing.T) {
	s := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := s.Cancellation(ctx, CancellationOptions{
		AfterStep: func(n int) {
			if n == 3 {
				cancel()
			}
		},
	})
	require.NoError(t, err, "cancellation is an outcome, not an error")
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.True(t, res.WasCancelled)
	assert.Equal(t, 3, res.CompletedSteps)
	assert.Len(t, res.Steps, 3)
	assert.Equal(t, 10, res.TotalSteps)
	assert.Equal(t, "Operation cancelled after 3 steps", res.Message)
}

func TestCancellationTimeout(t *testing.T) {
	s := newTestService(t, nil)

	res, err := s.Cancellation(context.Background(), CancellationOptions{CancelAfter: 35 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Less(t, res.CompletedSteps, 10)
}

func TestTaskCancellation(t *testing.T) {
	s := newTestService(t, func(st *Settings) { st.CancellationSteps = 2 })

	res, err := s.TaskCancellation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Task completed after 2 steps", res.Result)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err = s.TaskCancellation(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Task was cancelled", res.Message)
}

func TestDeadlockPrevention(t *testing.T) {
	s := newTestService(t, nil)

	res, err := s.DeadlockPrevention(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Scenarios, 2)

	unsafe := res.Scenarios[0]
	assert.False(t, unsafe.IsSafe)
	assert.True(t, unsafe.Deadlocked)
	assert.GreaterOrEqual(t, unsafe.ElapsedMs, s.timings.DeadlockTimeout.Milliseconds())

	safe := res.Scenarios[1]
	assert.True(t, safe.IsSafe)
	assert.False(t, safe.Deadlocked)
	assert.Contains(t, safe.Result, "inner work finished")
}

func TestTaskException(t *testing.T) {
	s := newTestService(t, nil)

	res, err := s.TaskException(context.Background())
	require.NoError(t, err)
	assert.Contains(t, res.Error, "simulated fault")
	assert.Equal(t, "Faulted", res.Status)
}

func TestMultipleTasksWithExceptions(t *testing.T) {
	s := newTestService(t, nil)

	res, err := s.MultipleTasksWithExceptions(context.Background())
	require.NoError(t, err)
	assert.Contains(t, res.FirstError, "faulty")
	require.Len(t, res.TaskResults, 3)

	assert.Equal(t, "RanToCompletion", res.TaskResults[0].Status)
	assert.True(t, res.TaskResults[1].IsFaulted)
	assert.NotEmpty(t, res.TaskResults[1].Exception)
	assert.Equal(t, "RanToCompletion", res.TaskResults[2].Status)
	for _, u := range res.TaskResults {
		assert.True(t, u.IsCompleted)
	}
}

func TestProducerConsumer(t *testing.T) {
	s := newTestService(t, nil)

	res, err := s.ProducerConsumer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Item 1", "Item 2", "Item 3", "Item 4", "Item 5"}, res.Produced)
	require.Len(t, res.Processed, 5)
	assert.Equal(t, "Processed: Item 1", res.Processed[0])
	assert.Equal(t, "Processed: Item 5", res.Processed[4])
}

func TestHTTPCalls(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestService(t, func(st *Settings) {
		st.DelayURL = srv.URL + "/delay/1"
		st.ParallelCalls = 3
	})

	seq, err := s.SequentialCalls(context.Background())
	require.NoError(t, err)
	require.Len(t, seq.Results, 2)
	for i, r := range seq.Results {
		assert.Equal(t, i+1, r.Call)
		assert.Equal(t, http.StatusOK, r.Status)
		assert.Positive(t, r.IOWorkerID)
		assert.Positive(t, r.ResumeWorkerID)
	}
	assert.GreaterOrEqual(t, seq.TotalTimeMs, int64(40))

	par, err := s.ParallelCalls(context.Background())
	require.NoError(t, err)
	require.Len(t, par.Results, 3)
	assert.Equal(t, int32(5), hits.Load())
}

func TestHTTPCallsFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := newTestService(t, func(st *Settings) { st.DelayURL = "http://" + addr + "/delay/1" })

	_, err = s.SequentialCalls(context.Background())
	assert.Error(t, err)
}

func TestComprehensiveDemo(t *testing.T) {
	s := newTestService(t, nil)

	res, err := s.ComprehensiveDemo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Task completed", res.TaskLifecycle.Result)
	assert.Len(t, res.TaskLifecycle.LifecycleSteps, 4)
	assert.Len(t, res.Parallel.Tasks, 5)
	assert.Len(t, res.Continuation.Steps, 2)
	require.Len(t, res.DeadlockPrevention.Scenarios, 2)
	assert.True(t, res.DeadlockPrevention.Scenarios[0].Deadlocked)
	assert.True(t, res.DeadlockPrevention.Scenarios[1].IsSafe)
	assert.NotEmpty(t, res.KeyConcepts)
	assert.NotEmpty(t, res.BestPractices)

	body, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"taskLifecycle":`)
	assert.Contains(t, string(body), `"deadlockPrevention":`)
}

func TestComparisonUsesSettingsAndMaxima(t *testing.T) {
	s := newTestService(t, func(st *Settings) {
		st.OperationCount = 3
		st.Delay = 5 * time.Millisecond
		st.MaxOperationCount = 4
		st.MaxDelay = 50 * time.Millisecond
	})

	report, err := s.Comparison(context.Background(), Options{})
	require.NoError(t, err)
	assert.Len(t, report.Synchronous.Operations, 3)

	_, err = s.Comparison(context.Background(), Options{OperationCount: 5})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = s.Comparison(context.Background(), Options{Delay: time.Second})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestUpdateSettings(t *testing.T) {
	s := newTestService(t, nil)
	next := s.Settings()
	next.OperationCount = 12
	s.UpdateSettings(next)
	assert.Equal(t, 12, s.Settings().OperationCount)
}

func TestPoolSnapshot(t *testing.T) {
	s := newTestService(t, nil)
	snap := s.PoolSnapshot()
	assert.Equal(t, "current", snap.Tag)
	assert.Equal(t, 4, snap.GeneralMax)
	assert.Equal(t, snap.GeneralMax-snap.GeneralBusy, snap.GeneralAvailable)
	assert.Same(t, s.Scheduler().General(), s.Harness().sched.General())
}

func TestSettingsFromConfigMatchesDefaults(t *testing.T) {
	assert.Equal(t, DefaultSettings(), SettingsFromConfig(config.DefaultConfig()))
}
