package demo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TheEntropyCollective/asyncdemo/pkg/common/workers"
)

// ErrSimulatedFault is the error raised by the faulting demonstration units
var ErrSimulatedFault = errors.New("simulated fault")

// FaultReport describes a future that faulted on purpose
type FaultReport struct {
	Error       string `json:"error"`
	Status      string `json:"status"`
	Explanation string `json:"explanation"`
}

// TaskException runs a future that faults after a wait and reports the fault
// as data
func (s *Service) TaskException(ctx context.Context) (FaultReport, error) {
	f := workers.NewFuture(func(w *workers.Worker, complete func(struct{}, error)) {
		s.sched.Delay(ctx, s.timings.Long, func(w *workers.Worker, err error) {
			if err != nil {
				complete(struct{}{}, err)
				return
			}
			complete(struct{}{}, fmt.Errorf("%w: something went wrong inside the task", ErrSimulatedFault))
		})
	})
	if err := f.Start(s.sched.General()); err != nil {
		return FaultReport{}, err
	}

	_, err := f.Wait(ctx)
	if err == nil || !errors.Is(err, ErrSimulatedFault) {
		return FaultReport{}, err
	}
	return FaultReport{
		Error:       err.Error(),
		Status:      f.Status().String(),
		Explanation: "The fault raised inside the future surfaced to the caller waiting on it",
	}, nil
}

// UnitStatus is the individual outcome of one unit of a joined group
type UnitStatus struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	IsCompleted bool   `json:"isCompleted"`
	IsFaulted   bool   `json:"isFaulted"`
	Exception   string `json:"exception,omitempty"`
}

// MultipleFaultsResult reports a group where some units faulted
type MultipleFaultsResult struct {
	Message     string       `json:"message"`
	FirstError  string       `json:"firstError,omitempty"`
	TaskResults []UnitStatus `json:"taskResults"`
	Explanation string       `json:"explanation"`
}

// MultipleTasksWithExceptions runs a safe, a faulting and another safe unit
// concurrently. The group surfaces only the first fault; each unit's own
// status stays inspectable.
func (s *Service) MultipleTasksWithExceptions(ctx context.Context) (MultipleFaultsResult, error) {
	units := []struct {
		name  string
		delay time.Duration
		fault bool
	}{
		{"safe-1", s.timings.SafeTask, false},
		{"faulty", s.timings.FaultyTask, true},
		{"safe-2", s.timings.SafeTask, false},
	}

	futures := make([]*workers.Future[string], len(units))
	var g errgroup.Group
	for i, u := range units {
		u := u
		f := workers.NewFuture(func(w *workers.Worker, complete func(string, error)) {
			s.sched.Delay(ctx, u.delay, func(w *workers.Worker, err error) {
				switch {
				case err != nil:
					complete("", err)
				case u.fault:
					complete("", fmt.Errorf("%w in unit %s", ErrSimulatedFault, u.name))
				default:
					complete(fmt.Sprintf("%s finished", u.name), nil)
				}
			})
		})
		futures[i] = f
		if err := f.Start(s.sched.General()); err != nil {
			return MultipleFaultsResult{}, err
		}
		g.Go(func() error {
			_, err := f.Wait(ctx)
			return err
		})
	}

	first := g.Wait()
	if first != nil && !errors.Is(first, ErrSimulatedFault) {
		return MultipleFaultsResult{}, first
	}

	result := MultipleFaultsResult{
		Message:     "All tasks completed",
		TaskResults: make([]UnitStatus, len(units)),
		Explanation: "Joining the group surfaces the first fault only; inspect each unit to see every outcome",
	}
	if first != nil {
		result.Message = "At least one task faulted"
		result.FirstError = first.Error()
	}
	for i, f := range futures {
		status := f.Status()
		us := UnitStatus{
			Name:        units[i].name,
			Status:      status.String(),
			IsCompleted: status.Completed(),
			IsFaulted:   status == workers.StatusFaulted,
		}
		if err := f.Err(); err != nil {
			us.Exception = err.Error()
		}
		result.TaskResults[i] = us
	}
	return result, nil
}
