package demo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheEntropyCollective/asyncdemo/pkg/common/workers"
)

// DeadlockScenario describes one way of waiting for work that needs the
// waiting worker
type DeadlockScenario struct {
	ScenarioName   string `json:"scenarioName"`
	Description    string `json:"description"`
	IsSafe         bool   `json:"isSafe"`
	Deadlocked     bool   `json:"deadlocked"`
	Result         string `json:"result"`
	Recommendation string `json:"recommendation"`
	ElapsedMs      int64  `json:"elapsedMs"`
}

// DeadlockResult is the output of the deadlock prevention demonstration
type DeadlockResult struct {
	Scenarios   []DeadlockScenario `json:"scenarios"`
	Explanation string             `json:"explanation"`
}

// DeadlockPrevention runs a real sync-over-async wait on a single-worker event
// loop, where the awaited work is queued behind the waiter and can never start,
// and then the same work awaited with a continuation.
func (s *Service) DeadlockPrevention(ctx context.Context) (DeadlockResult, error) {
	unsafe, err := s.blockingWaitOnLoop(ctx)
	if err != nil {
		return DeadlockResult{}, err
	}
	safe, err := s.continuationOnLoop(ctx)
	if err != nil {
		return DeadlockResult{}, err
	}
	return DeadlockResult{
		Scenarios:   []DeadlockScenario{unsafe, safe},
		Explanation: "Blocking a single-worker context while waiting for work scheduled on that same context deadlocks it",
	}, nil
}

func (s *Service) innerWork(loop *workers.EventLoop) *workers.Future[string] {
	return workers.NewFuture(func(w *workers.Worker, complete func(string, error)) {
		loop.Delay(context.Background(), s.timings.Short, func(w *workers.Worker, err error) {
			if err != nil {
				complete("", err)
				return
			}
			complete(fmt.Sprintf("inner work finished on worker %d", w.ID()), nil)
		})
	})
}

func (s *Service) blockingWaitOnLoop(ctx context.Context) (DeadlockScenario, error) {
	loop := workers.NewEventLoop("deadlock-unsafe")
	defer loop.Close()

	scenario := DeadlockScenario{
		ScenarioName:   "Blocking wait on the captured context",
		Description:    "A job on a one-worker event loop starts work on the same loop and blocks on Wait",
		Recommendation: "Never block a worker waiting for work that needs that worker; chain a continuation instead",
	}

	began := time.Now()
	_, err := await(ctx, loop.Pool(), func(w *workers.Worker, complete func(struct{}, error)) {
		inner := s.innerWork(loop)
		if err := inner.Start(loop.Pool()); err != nil {
			complete(struct{}{}, err)
			return
		}
		waitCtx, cancel := context.WithTimeout(ctx, s.timings.DeadlockTimeout)
		defer cancel()
		_, err := inner.Wait(waitCtx)
		complete(struct{}{}, err)
	})
	scenario.ElapsedMs = time.Since(began).Milliseconds()

	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		scenario.Deadlocked = true
		scenario.Result = fmt.Sprintf("Deadlock detected: the inner work never ran, wait gave up after %d ms", scenario.ElapsedMs)
	case err != nil:
		return DeadlockScenario{}, err
	default:
		scenario.Result = "The inner work completed"
	}
	s.logger.WithField("deadlocked", scenario.Deadlocked).Debug("blocking wait scenario finished")
	return scenario, nil
}

func (s *Service) continuationOnLoop(ctx context.Context) (DeadlockScenario, error) {
	loop := workers.NewEventLoop("deadlock-safe")
	defer loop.Close()

	began := time.Now()
	result, err := await(ctx, loop.Pool(), func(w *workers.Worker, complete func(string, error)) {
		inner := s.innerWork(loop)
		inner.Then(loop.Pool(), func(w *workers.Worker, v string, err error) {
			complete(v, err)
		})
		if err := inner.Start(loop.Pool()); err != nil {
			complete("", err)
		}
	})
	if err != nil {
		return DeadlockScenario{}, err
	}

	return DeadlockScenario{
		ScenarioName:   "Continuation on the captured context",
		Description:    "The same job chains a continuation and returns the loop worker",
		IsSafe:         true,
		Result:         result,
		Recommendation: "Keep waits non-blocking all the way up the call chain",
		ElapsedMs:      time.Since(began).Milliseconds(),
	}, nil
}
