package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/TheEntropyCollective/asyncdemo/pkg/common/workers"
)

// ProducerConsumerResult reports both sides of a channel hand-off
type ProducerConsumerResult struct {
	Produced    []string `json:"produced"`
	Processed   []string `json:"processed"`
	ElapsedMs   int64    `json:"elapsedMs"`
	Explanation string   `json:"explanation"`
}

const producedItems = 5

// ProducerConsumer produces items on the general pool with a non-blocking
// wait between them while a consumer drains the channel on the completion
// pool. The request resumes once both sides have finished.
func (s *Service) ProducerConsumer(ctx context.Context) (ProducerConsumerResult, error) {
	return await(ctx, s.sched.General(), func(w *workers.Worker, complete func(ProducerConsumerResult, error)) {
		began := time.Now()
		items := make(chan string, producedItems)
		var produced, processed []string

		join := workers.NewGroup(s.sched.General(), 2, func(w *workers.Worker, err error) {
			if err != nil {
				complete(ProducerConsumerResult{}, err)
				return
			}
			complete(ProducerConsumerResult{
				Produced:    produced,
				Processed:   processed,
				ElapsedMs:   time.Since(began).Milliseconds(),
				Explanation: "The producer never blocks a worker between items; the consumer drains the channel until it is closed",
			}, nil)
		})

		var produce func(i int)
		produce = func(i int) {
			if i > producedItems {
				close(items)
				join.Done(nil)
				return
			}
			s.sched.Delay(ctx, s.timings.Produce, func(w *workers.Worker, err error) {
				if err != nil {
					close(items)
					join.Done(err)
					return
				}
				item := fmt.Sprintf("Item %d", i)
				items <- item
				produced = append(produced, item)
				produce(i + 1)
			})
		}
		produce(1)

		s.sched.Offload(func(io *workers.Worker) error {
			for item := range items {
				time.Sleep(s.timings.Consume)
				processed = append(processed, "Processed: "+item)
			}
			return nil
		}, func(w *workers.Worker, ioWorkerID int, err error) {
			join.Done(err)
		})
	})
}
