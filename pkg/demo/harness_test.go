package demo

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/asyncdemo/pkg/common/workers"
	"github.com/TheEntropyCollective/asyncdemo/pkg/infrastructure/logging"
)

func newTestScheduler(t *testing.T) *workers.Scheduler {
	t.Helper()
	sched := workers.NewScheduler(workers.SchedulerConfig{
		General:    workers.Config{MinWorkers: 2, MaxWorkers: 4},
		Completion: workers.Config{MinWorkers: 1, MaxWorkers: 2},
	})
	t.Cleanup(func() { _ = sched.Shutdown() })
	return sched
}

func newTestHarness(t *testing.T, observer PhaseObserver) *Harness {
	t.Helper()
	logger := logging.NewLogger(&logging.Config{Level: logging.ErrorLevel, Output: io.Discard})
	return NewHarness(newTestScheduler(t), logger, observer)
}

type recordingObserver struct {
	mu     sync.Mutex
	phases []Phase
}

func (o *recordingObserver) ObservePhase(phase Phase, elapsed time.Duration, distinct int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, phase)
}

func assertIndexed(t *testing.T, group OperationGroupResult, count int) {
	t.Helper()
	require.Len(t, group.Operations, count)
	ids := map[int]bool{}
	for i, op := range group.Operations {
		assert.Equal(t, i, op.Index, "operations ordered by index")
		assert.Equal(t, op.EndTimeUtc.Sub(op.StartTimeUtc), op.Elapsed())
		assert.InDelta(t, float64(op.Elapsed())/float64(time.Millisecond), op.ElapsedMs, 1e-9)
		assert.False(t, op.EndTimeUtc.Before(op.StartTimeUtc))
		ids[op.StartWorkerID] = true
		ids[op.EndWorkerID] = true
	}

	var distinct []int
	for id := range ids {
		distinct = append(distinct, id)
	}
	assert.ElementsMatch(t, distinct, group.DistinctWorkerIDs, "distinct ids are the union of start and end ids")
}

func TestRunComparisonScenario(t *testing.T) {
	observer := &recordingObserver{}
	h := newTestHarness(t, observer)

	const count = 8
	delay := 100 * time.Millisecond

	report, err := h.RunComparison(context.Background(), Options{OperationCount: count, Delay: delay})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "before", report.PoolBefore.Tag)
	assert.Equal(t, "afterSync", report.PoolAfterSync.Tag)
	assert.Equal(t, "afterAsync", report.PoolAfterAsync.Tag)
	assert.Positive(t, report.Environment.ProcessorCount)
	assert.Positive(t, report.Environment.ThreadCount)

	// Blocking phase
	blocking := report.Synchronous
	assert.Equal(t, PhaseSynchronous, blocking.Phase)
	assertIndexed(t, blocking, count)
	assert.Len(t, blocking.DistinctWorkerIDs, 1, "the blocking phase occupies a single worker")
	assert.GreaterOrEqual(t, blocking.TotalElapsedMs, float64(count*delay/time.Millisecond))
	for _, op := range blocking.Operations {
		assert.Equal(t, op.StartWorkerID, op.EndWorkerID)
	}

	// Non-blocking phase
	async := report.Asynchronous
	assert.Equal(t, PhaseAsynchronous, async.Phase)
	assertIndexed(t, async, count)
	assert.GreaterOrEqual(t, len(async.DistinctWorkerIDs), 1)
	assert.LessOrEqual(t, len(async.DistinctWorkerIDs), count)
	assert.GreaterOrEqual(t, async.TotalElapsedMs, float64(delay/time.Millisecond)*0.9)
	assert.Less(t, async.TotalElapsedMs, float64(count*delay/time.Millisecond)/2,
		"overlapping waits finish closer to one delay than to count*delay")

	assert.Len(t, report.Summary, 5)
	assert.Contains(t, report.Summary[0], "8 operations")
	assert.Equal(t, []Phase{PhaseSynchronous, PhaseAsynchronous}, observer.phases)
}

func newSizedHarness(t *testing.T, minWorkers, maxWorkers int) *Harness {
	t.Helper()
	sched := workers.NewScheduler(workers.SchedulerConfig{
		General:    workers.Config{MinWorkers: minWorkers, MaxWorkers: maxWorkers},
		Completion: workers.Config{MinWorkers: 1, MaxWorkers: 2},
	})
	t.Cleanup(func() { _ = sched.Shutdown() })
	logger := logging.NewLogger(&logging.Config{Level: logging.ErrorLevel, Output: io.Discard})
	return NewHarness(sched, logger, nil)
}

func TestRunComparisonDefaultScenarioOnLargePool(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the full 8 x 500ms comparison")
	}
	h := newSizedHarness(t, 8, 32)

	report, err := h.RunComparison(context.Background(), Options{OperationCount: 8, Delay: 500 * time.Millisecond})
	require.NoError(t, err)

	assertIndexed(t, report.Asynchronous, 8)
	assert.GreaterOrEqual(t, len(report.Asynchronous.DistinctWorkerIDs), 1)
	assert.LessOrEqual(t, len(report.Asynchronous.DistinctWorkerIDs), 8)
	assert.Len(t, report.Synchronous.DistinctWorkerIDs, 1)
	assert.GreaterOrEqual(t, report.Synchronous.TotalElapsedMs, 4000.0)
	assert.Less(t, report.Asynchronous.TotalElapsedMs, 2000.0)
}

func TestRunComparisonDistinctWorkersBoundedByCount(t *testing.T) {
	h := newSizedHarness(t, 8, 32)

	for _, count := range []int{1, 2, 4, 8} {
		report, err := h.RunComparison(context.Background(), Options{OperationCount: count, Delay: 20 * time.Millisecond})
		require.NoError(t, err)
		ids := report.Asynchronous.DistinctWorkerIDs
		assert.GreaterOrEqual(t, len(ids), 1, "count %d", count)
		assert.LessOrEqual(t, len(ids), count, "count %d: ids %v", count, ids)
	}
}

func TestRunComparisonNoHooksAfterFailure(t *testing.T) {
	h := newTestHarness(t, nil)
	boom := errors.New("unit exploded")

	var returned atomic.Bool
	var lateWork, lateUnits atomic.Int32
	_, err := h.RunComparison(context.Background(), Options{
		OperationCount: 8,
		Delay:          50 * time.Millisecond,
		Work: func(ctx context.Context, phase Phase, index int) error {
			if returned.Load() {
				lateWork.Add(1)
			}
			if phase == PhaseAsynchronous && index == 0 {
				return boom
			}
			return nil
		},
		OnUnit: func(phase Phase, index int) {
			if returned.Load() {
				lateUnits.Add(1)
			}
		},
	})
	returned.Store(true)
	require.ErrorIs(t, err, boom)

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, lateWork.Load())
	assert.Zero(t, lateUnits.Load())
}

func TestRunComparisonIsIndependentPerCall(t *testing.T) {
	h := newTestHarness(t, nil)
	opts := Options{OperationCount: 4, Delay: 10 * time.Millisecond}

	first, err := h.RunComparison(context.Background(), opts)
	require.NoError(t, err)
	second, err := h.RunComparison(context.Background(), opts)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assertIndexed(t, first.Asynchronous, 4)
	assertIndexed(t, second.Asynchronous, 4)

	second.Asynchronous.Operations[0].Notes = "mutated"
	assert.NotEqual(t, "mutated", first.Asynchronous.Operations[0].Notes)
}

func TestRunComparisonInvalidOptions(t *testing.T) {
	h := newTestHarness(t, nil)

	_, err := h.RunComparison(context.Background(), Options{OperationCount: 0, Delay: time.Millisecond})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = h.RunComparison(context.Background(), Options{OperationCount: 2, Delay: -time.Millisecond})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestRunComparisonFailsFast(t *testing.T) {
	h := newTestHarness(t, nil)
	boom := errors.New("unit exploded")

	start := time.Now()
	_, err := h.RunComparison(context.Background(), Options{
		OperationCount: 6,
		Delay:          20 * time.Millisecond,
		Work: func(ctx context.Context, phase Phase, index int) error {
			if phase == PhaseAsynchronous && index == 2 {
				return boom
			}
			return nil
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "asynchronous")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunComparisonPanicBecomesFault(t *testing.T) {
	h := newTestHarness(t, nil)

	_, err := h.RunComparison(context.Background(), Options{
		OperationCount: 3,
		Delay:          time.Millisecond,
		Work: func(ctx context.Context, phase Phase, index int) error {
			if phase == PhaseSynchronous && index == 1 {
				panic("bad unit")
			}
			return nil
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestRunComparisonCancelled(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := h.RunComparison(ctx, Options{OperationCount: 8, Delay: 100 * time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunComparisonReportsProgress(t *testing.T) {
	h := newTestHarness(t, nil)

	var mu sync.Mutex
	counts := map[Phase]int{}
	_, err := h.RunComparison(context.Background(), Options{
		OperationCount: 5,
		Delay:          time.Millisecond,
		OnUnit: func(phase Phase, index int) {
			mu.Lock()
			counts[phase]++
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, counts[PhaseSynchronous])
	assert.Equal(t, 5, counts[PhaseAsynchronous])
}

func TestNewGroupResultSortsAndDedupes(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ops := []OperationDetail{
		newOperationDetail(2, base, base.Add(5*time.Millisecond), 7, 3, ""),
		newOperationDetail(0, base, base.Add(time.Millisecond), 3, 3, ""),
		newOperationDetail(1, base, base.Add(2*time.Millisecond), 9, 7, ""),
	}

	group := newGroupResult(PhaseAsynchronous, ops, 6*time.Millisecond)
	assert.Equal(t, []int{3, 7, 9}, group.DistinctWorkerIDs)
	assert.Equal(t, 0, group.Operations[0].Index)
	assert.Equal(t, 2, group.Operations[2].Index)
	assert.Equal(t, 5.0, group.Operations[2].ElapsedMs)
	assert.Equal(t, 6.0, group.TotalElapsedMs)
	assert.Equal(t, 2, ops[0].Index, "input slice is left untouched")
}
