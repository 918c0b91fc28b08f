package demo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheEntropyCollective/asyncdemo/pkg/common/workers"
)

// Outcome tags how a cancellable loop ended
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
)

// CancellationOptions configures one cancellable loop
type CancellationOptions struct {
	// CancelAfter cancels the loop after this long. Zero leaves cancellation
	// to the caller's context.
	CancelAfter time.Duration

	// AfterStep is called on the loop's worker once step n has finished
	AfterStep func(n int)
}

// CancellationResult reports how far a cancellable loop got. Cancellation is
// an outcome, not an error.
type CancellationResult struct {
	Outcome        Outcome  `json:"outcome"`
	CompletedSteps int      `json:"completedSteps"`
	TotalSteps     int      `json:"totalSteps"`
	Steps          []string `json:"steps"`
	WasCancelled   bool     `json:"wasCancelled"`
	Message        string   `json:"message"`
	ElapsedMs      int64    `json:"elapsedMs"`
}

// Cancellation runs the configured number of steps with a non-blocking wait
// each, checking ctx before every step. A step only counts once its wait has
// finished.
func (s *Service) Cancellation(ctx context.Context, opts CancellationOptions) (CancellationResult, error) {
	settings := s.Settings()
	if opts.CancelAfter > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.CancelAfter)
		defer cancel()
	}

	// The loop itself must observe ctx, but the result has to be delivered
	// even after ctx ends.
	return await(context.WithoutCancel(ctx), s.sched.General(), func(w *workers.Worker, complete func(CancellationResult, error)) {
		began := time.Now()
		result := CancellationResult{TotalSteps: settings.CancellationSteps}

		finish := func(cancelled bool) {
			result.ElapsedMs = time.Since(began).Milliseconds()
			if cancelled {
				result.Outcome = OutcomeCancelled
				result.WasCancelled = true
				result.Message = fmt.Sprintf("Operation cancelled after %d steps", result.CompletedSteps)
			} else {
				result.Outcome = OutcomeCompleted
				result.Message = "Operation completed successfully"
			}
			s.logger.WithFields(map[string]interface{}{
				"outcome": string(result.Outcome),
				"steps":   result.CompletedSteps,
			}).Debug("cancellable loop finished")
			complete(result, nil)
		}

		var step func(n int)
		step = func(n int) {
			if n > settings.CancellationSteps {
				finish(false)
				return
			}
			if ctx.Err() != nil {
				finish(true)
				return
			}
			s.sched.Delay(ctx, settings.CancellationStep, func(w *workers.Worker, err error) {
				switch {
				case isCancellation(err):
					finish(true)
					return
				case err != nil:
					complete(CancellationResult{}, err)
					return
				}
				result.CompletedSteps = n
				result.Steps = append(result.Steps, fmt.Sprintf("Step %d/%d completed", n, settings.CancellationSteps))
				if opts.AfterStep != nil {
					opts.AfterStep(n)
				}
				step(n + 1)
			})
		}
		step(1)
	})
}

// TaskCancellationResult is the payload of the task cancellation example
type TaskCancellationResult struct {
	Result      string `json:"result,omitempty"`
	Message     string `json:"message,omitempty"`
	Explanation string `json:"explanation"`
}

// TaskCancellation runs the cancellable loop bound to the request context
func (s *Service) TaskCancellation(ctx context.Context) (TaskCancellationResult, error) {
	res, err := s.Cancellation(ctx, CancellationOptions{})
	if err != nil {
		return TaskCancellationResult{}, err
	}
	if res.WasCancelled {
		return TaskCancellationResult{
			Message:     "Task was cancelled",
			Explanation: "The context was cancelled before the task finished; it stopped at the next step boundary",
		}, nil
	}
	return TaskCancellationResult{
		Result:      fmt.Sprintf("Task completed after %d steps", res.CompletedSteps),
		Explanation: "The task checked its context at every step and ran to completion",
	}, nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
