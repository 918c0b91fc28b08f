package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/TheEntropyCollective/asyncdemo/pkg/common/workers"
)

// StreamItem is one element of the asynchronous stream
type StreamItem struct {
	ID          int       `json:"id"`
	Data        string    `json:"data"`
	WorkerID    int       `json:"workerId"`
	Timestamp   time.Time `json:"timestamp"`
	Explanation string    `json:"explanation"`
}

// Stream produces the configured number of items, one per interval, and hands
// each to emit as soon as it is ready. Waiting between items does not hold a
// worker. emit runs on the caller's goroutine; an emit error or the end of ctx
// stops the stream.
func (s *Service) Stream(ctx context.Context, emit func(StreamItem) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	settings := s.Settings()
	items := make(chan StreamItem)
	errs := make(chan error, 1)

	var next func(w *workers.Worker, i int)
	next = func(w *workers.Worker, i int) {
		if i > settings.StreamItems {
			errs <- nil
			return
		}
		s.sched.Delay(ctx, settings.StreamInterval, func(w *workers.Worker, err error) {
			if err != nil {
				errs <- err
				return
			}
			item := StreamItem{
				ID:          i,
				Data:        fmt.Sprintf("Stream item %d", i),
				WorkerID:    w.ID(),
				Timestamp:   time.Now().UTC(),
				Explanation: "Each item is produced after a non-blocking wait",
			}
			select {
			case items <- item:
				next(w, i+1)
			case <-ctx.Done():
				errs <- ctx.Err()
			}
		})
	}

	if err := s.sched.Go(func(w *workers.Worker) { next(w, 1) }); err != nil {
		return err
	}

	for {
		select {
		case item := <-items:
			if err := emit(item); err != nil {
				return err
			}
		case err := <-errs:
			return err
		}
	}
}

// StreamAll collects the whole stream into a slice
func (s *Service) StreamAll(ctx context.Context) ([]StreamItem, error) {
	var all []StreamItem
	err := s.Stream(ctx, func(item StreamItem) error {
		all = append(all, item)
		return nil
	})
	return all, err
}
