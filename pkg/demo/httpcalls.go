package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"

	"github.com/TheEntropyCollective/asyncdemo/pkg/common/workers"
)

// HTTPCallResult describes one outbound request
type HTTPCallResult struct {
	Call           int   `json:"call"`
	Status         int   `json:"status"`
	TimeMs         int64 `json:"timeMs"`
	IOWorkerID     int   `json:"ioWorkerId"`
	ResumeWorkerID int   `json:"resumeWorkerId"`
}

// HTTPCallsResult aggregates a batch of outbound requests
type HTTPCallsResult struct {
	Results     []HTTPCallResult `json:"results"`
	TotalTimeMs int64            `json:"totalTimeMs"`
	TotalTime   string           `json:"totalTime"`
	Explanation string           `json:"explanation"`
}

// fetch performs one GET against the configured delay URL. The blocking
// network call runs on the completion pool and the result is picked up on
// the general pool.
func (s *Service) fetch(ctx context.Context, call int) (HTTPCallResult, error) {
	settings := s.Settings()
	deadline := time.Now().Add(settings.HTTPTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	return await(ctx, s.sched.General(), func(w *workers.Worker, complete func(HTTPCallResult, error)) {
		began := time.Now()
		var status int

		s.sched.Offload(func(io *workers.Worker) error {
			req := fasthttp.AcquireRequest()
			resp := fasthttp.AcquireResponse()
			defer fasthttp.ReleaseRequest(req)
			defer fasthttp.ReleaseResponse(resp)

			req.SetRequestURI(settings.DelayURL)
			req.Header.SetMethod(fasthttp.MethodGet)
			if err := s.client.DoDeadline(req, resp, deadline); err != nil {
				return fmt.Errorf("call %d to %s: %w", call, settings.DelayURL, err)
			}
			status = resp.StatusCode()
			if status >= fasthttp.StatusBadRequest {
				return fmt.Errorf("call %d to %s: unexpected status %d", call, settings.DelayURL, status)
			}
			return nil
		}, func(w *workers.Worker, ioWorkerID int, err error) {
			if err != nil {
				complete(HTTPCallResult{}, err)
				return
			}
			complete(HTTPCallResult{
				Call:           call,
				Status:         status,
				TimeMs:         time.Since(began).Milliseconds(),
				IOWorkerID:     ioWorkerID,
				ResumeWorkerID: w.ID(),
			}, nil)
		})
	})
}

// SequentialCalls performs two requests one after the other
func (s *Service) SequentialCalls(ctx context.Context) (HTTPCallsResult, error) {
	began := time.Now()
	var results []HTTPCallResult
	for call := 1; call <= 2; call++ {
		r, err := s.fetch(ctx, call)
		if err != nil {
			return HTTPCallsResult{}, err
		}
		results = append(results, r)
	}
	total := time.Since(began)
	return HTTPCallsResult{
		Results:     results,
		TotalTimeMs: total.Milliseconds(),
		TotalTime:   fmt.Sprintf("%dms", total.Milliseconds()),
		Explanation: "Sequential calls take the sum of their latencies",
	}, nil
}

// ParallelCalls performs the configured number of requests concurrently and
// fails on the first error
func (s *Service) ParallelCalls(ctx context.Context) (HTTPCallsResult, error) {
	count := s.Settings().ParallelCalls
	began := time.Now()
	results := make([]HTTPCallResult, count)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		index := i
		g.Go(func() error {
			r, err := s.fetch(gctx, index+1)
			if err != nil {
				return err
			}
			results[index] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return HTTPCallsResult{}, err
	}

	total := time.Since(began)
	return HTTPCallsResult{
		Results:     results,
		TotalTimeMs: total.Milliseconds(),
		TotalTime:   fmt.Sprintf("%dms", total.Milliseconds()),
		Explanation: "Parallel calls take about as long as the slowest one",
	}, nil
}
