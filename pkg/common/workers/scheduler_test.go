package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := NewScheduler(SchedulerConfig{
		General:    Config{MinWorkers: 2, MaxWorkers: 4},
		Completion: Config{MinWorkers: 1, MaxWorkers: 2},
	})
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestSchedulerPoolNames(t *testing.T) {
	s := newTestScheduler(t)
	assert.Equal(t, "general", s.General().Name())
	assert.Equal(t, "completion", s.Completion().Name())
}

func TestOffloadRunsOnCompletionPool(t *testing.T) {
	s := newTestScheduler(t)

	type outcome struct {
		callerPool string
		ioPool     string
		resumePool string
		ioID       int
		err        error
	}
	result := make(chan outcome, 1)

	require.NoError(t, s.Go(func(w *Worker) {
		var ioPool string
		s.Offload(func(io *Worker) error {
			ioPool = io.Pool().Name()
			return nil
		}, func(rw *Worker, ioID int, err error) {
			result <- outcome{
				callerPool: w.Pool().Name(),
				ioPool:     ioPool,
				resumePool: rw.Pool().Name(),
				ioID:       ioID,
				err:        err,
			}
		})
	}))

	select {
	case o := <-result:
		require.NoError(t, o.err)
		assert.Equal(t, "general", o.callerPool)
		assert.Equal(t, "completion", o.ioPool)
		assert.Equal(t, "general", o.resumePool)
		assert.NotZero(t, o.ioID)
	case <-time.After(time.Second):
		t.Fatal("offload did not resume")
	}
}

func TestOffloadPanicBecomesError(t *testing.T) {
	s := newTestScheduler(t)

	result := make(chan error, 1)
	s.Offload(func(io *Worker) error {
		panic("socket exploded")
	}, func(w *Worker, ioID int, err error) {
		result <- err
	})

	select {
	case err := <-result:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "socket exploded")
	case <-time.After(time.Second):
		t.Fatal("offload did not resume")
	}
}

func TestGroupJoinsAllUnits(t *testing.T) {
	s := newTestScheduler(t)

	done := make(chan error, 1)
	g := NewGroup(s.General(), 3, func(w *Worker, err error) { done <- err })

	for i := 0; i < 3; i++ {
		assert.False(t, g.Resolved())
		g.Done(nil)
	}

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("group did not resolve")
	}
	assert.True(t, g.Resolved())
}

func TestGroupFailsFast(t *testing.T) {
	s := newTestScheduler(t)

	var calls sync.WaitGroup
	calls.Add(1)
	var got error
	g := NewGroup(s.General(), 3, func(w *Worker, err error) {
		got = err
		calls.Done()
	})

	first := errors.New("first")
	g.Done(first)
	g.Done(errors.New("second"))
	g.Done(nil)

	calls.Wait()
	assert.Equal(t, first, got, "only the first error is surfaced")
}

func TestGroupEmpty(t *testing.T) {
	s := newTestScheduler(t)

	done := make(chan struct{})
	NewGroup(s.General(), 0, func(w *Worker, err error) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("empty group did not resolve")
	}
}

func TestFutureLifecycle(t *testing.T) {
	s := newTestScheduler(t)

	release := make(chan struct{})
	f := FromFunc(func(w *Worker) (string, error) {
		<-release
		return "done", nil
	})
	assert.Equal(t, StatusCreated, f.Status())

	require.NoError(t, f.Start(s.General()))
	require.Eventually(t, func() bool {
		return f.Status() == StatusRunning
	}, time.Second, time.Millisecond)

	close(release)
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.Equal(t, StatusRanToCompletion, f.Status())
	assert.Equal(t, "RanToCompletion", f.Status().String())

	assert.Error(t, f.Start(s.General()), "a future starts once")
}

func TestFutureFaultAndCancel(t *testing.T) {
	s := newTestScheduler(t)

	faulty := FromFunc(func(w *Worker) (int, error) {
		return 0, errors.New("bad input")
	})
	require.NoError(t, faulty.Start(s.General()))
	<-faulty.Done()
	assert.Equal(t, StatusFaulted, faulty.Status())
	assert.EqualError(t, faulty.Err(), "bad input")

	panicky := FromFunc(func(w *Worker) (int, error) {
		panic("kaboom")
	})
	require.NoError(t, panicky.Start(s.General()))
	<-panicky.Done()
	assert.Equal(t, StatusFaulted, panicky.Status())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	canceled := NewFuture(func(w *Worker, complete func(int, error)) {
		s.Delay(ctx, time.Hour, func(w *Worker, err error) { complete(0, err) })
	})
	require.NoError(t, canceled.Start(s.General()))
	<-canceled.Done()
	assert.Equal(t, StatusCanceled, canceled.Status())
}

func TestFutureThen(t *testing.T) {
	s := newTestScheduler(t)

	f := NewFuture(func(w *Worker, complete func(int, error)) {
		s.Delay(context.Background(), 20*time.Millisecond, func(w *Worker, err error) {
			complete(42, err)
		})
	})

	got := make(chan int, 2)
	f.Then(s.General(), func(w *Worker, v int, err error) { got <- v })
	require.NoError(t, f.Start(s.General()))
	<-f.Done()
	// registered after completion still fires
	f.Then(s.General(), func(w *Worker, v int, err error) { got <- v })

	for i := 0; i < 2; i++ {
		select {
		case v := <-got:
			assert.Equal(t, 42, v)
		case <-time.After(time.Second):
			t.Fatal("continuation did not run")
		}
	}
}

func TestEventLoopResumesOnSameWorker(t *testing.T) {
	loop := NewEventLoop("ui")
	defer loop.Close()

	type pair struct{ before, after int }
	result := make(chan pair, 1)

	require.NoError(t, loop.Post(func(w *Worker) {
		before := w.ID()
		loop.Delay(context.Background(), 10*time.Millisecond, func(w *Worker, err error) {
			result <- pair{before: before, after: w.ID()}
		})
	}))

	select {
	case p := <-result:
		assert.Equal(t, p.before, p.after)
	case <-time.After(time.Second):
		t.Fatal("loop continuation did not run")
	}
	assert.Equal(t, 1, loop.Stats().Live)
}
