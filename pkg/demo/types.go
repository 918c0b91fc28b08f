package demo

import (
	"sort"
	"time"
)

// Phase names one of the two execution strategies being compared
type Phase string

const (
	PhaseSynchronous  Phase = "synchronous"
	PhaseAsynchronous Phase = "asynchronous"
)

// OperationDetail records one unit of simulated work
type OperationDetail struct {
	Index         int       `json:"index"`
	StartTimeUtc  time.Time `json:"startTimeUtc"`
	EndTimeUtc    time.Time `json:"endTimeUtc"`
	ElapsedMs     float64   `json:"elapsedMs"`
	StartWorkerID int       `json:"startWorkerId"`
	EndWorkerID   int       `json:"endWorkerId"`
	Notes         string    `json:"notes"`
}

// Elapsed returns EndTimeUtc - StartTimeUtc
func (d OperationDetail) Elapsed() time.Duration {
	return d.EndTimeUtc.Sub(d.StartTimeUtc)
}

func newOperationDetail(index int, start, end time.Time, startWorker, endWorker int, notes string) OperationDetail {
	return OperationDetail{
		Index:         index,
		StartTimeUtc:  start,
		EndTimeUtc:    end,
		ElapsedMs:     durationMs(end.Sub(start)),
		StartWorkerID: startWorker,
		EndWorkerID:   endWorker,
		Notes:         notes,
	}
}

// OperationGroupResult aggregates one phase
type OperationGroupResult struct {
	Phase             Phase             `json:"phase"`
	Operations        []OperationDetail `json:"operations"`
	TotalElapsedMs    float64           `json:"totalElapsedMs"`
	DistinctWorkerIDs []int             `json:"distinctWorkerIds"`
}

// newGroupResult copies ops, orders them by index and collects the distinct
// worker ids from both ends of every unit.
func newGroupResult(phase Phase, ops []OperationDetail, total time.Duration) OperationGroupResult {
	sorted := make([]OperationDetail, len(ops))
	copy(sorted, ops)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	seen := make(map[int]struct{})
	ids := make([]int, 0, 4)
	for _, op := range sorted {
		for _, id := range [2]int{op.StartWorkerID, op.EndWorkerID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	sort.Ints(ids)

	return OperationGroupResult{
		Phase:             phase,
		Operations:        sorted,
		TotalElapsedMs:    durationMs(total),
		DistinctWorkerIDs: ids,
	}
}

// WorkerPoolSnapshot is a point-in-time view of both pools. Available follows
// the thread-pool convention of max minus busy.
type WorkerPoolSnapshot struct {
	Tag       string    `json:"tag"`
	Timestamp time.Time `json:"timestamp"`

	GeneralAvailable int `json:"generalAvailable"`
	GeneralMax       int `json:"generalMax"`
	GeneralMin       int `json:"generalMin"`
	GeneralBusy      int `json:"generalBusy"`
	GeneralLive      int `json:"generalLive"`
	GeneralQueued    int `json:"generalQueued"`

	CompletionAvailable int `json:"completionAvailable"`
	CompletionMax       int `json:"completionMax"`
	CompletionMin       int `json:"completionMin"`
	CompletionBusy      int `json:"completionBusy"`
	CompletionLive      int `json:"completionLive"`
}

// EnvironmentSnapshot describes the host process at measurement time
type EnvironmentSnapshot struct {
	ProcessorCount int    `json:"processorCount"`
	ProcessID      int    `json:"processId"`
	ThreadCount    int    `json:"threadCount"`
	GoroutineCount int    `json:"goroutineCount"`
	MaxProcs       int    `json:"maxProcs"`
	MemoryRSSBytes uint64 `json:"memoryRssBytes,omitempty"`
}

// ComparisonReport is the result of one harness run
type ComparisonReport struct {
	RunID          string               `json:"runId"`
	Environment    EnvironmentSnapshot  `json:"environment"`
	PoolBefore     WorkerPoolSnapshot   `json:"poolBefore"`
	PoolAfterSync  WorkerPoolSnapshot   `json:"poolAfterSync"`
	PoolAfterAsync WorkerPoolSnapshot   `json:"poolAfterAsync"`
	Synchronous    OperationGroupResult `json:"synchronous"`
	Asynchronous   OperationGroupResult `json:"asynchronous"`
	Summary        []string             `json:"summary"`
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
