package demo

import "context"

// ComprehensiveResult bundles the basic demonstrations with a short summary
// of the concepts they show
type ComprehensiveResult struct {
	ThreadInfo         ThreadInfo          `json:"threadInfo"`
	Comparison         ComparisonResult    `json:"syncVsAsync"`
	TaskLifecycle      TaskLifecycleResult `json:"taskLifecycle"`
	Parallel           ParallelTasksResult `json:"parallelTasks"`
	Continuation       ContinuationResult  `json:"configureAwait"`
	DeadlockPrevention DeadlockResult      `json:"deadlockPrevention"`
	KeyConcepts        []string            `json:"keyConcepts"`
	BestPractices      []string            `json:"bestPractices"`
}

var keyConcepts = []string{
	"A non-blocking wait returns its worker to the pool until the wait is over",
	"A continuation may resume on a different worker than the one that started it",
	"Blocking waits hold a worker for their whole duration",
	"Independent waits can overlap, so their total time approaches the longest one",
	"Only a captured single-worker context guarantees resumption on the same worker",
}

var bestPractices = []string{
	"Keep waits non-blocking all the way up the call chain",
	"Never block a worker on work that needs that worker to finish",
	"Pass a context to every long-running operation and check it at step boundaries",
	"Run blocking I/O on a dedicated pool, away from general workers",
	"Join concurrent work explicitly and decide how to report multiple faults",
}

// ComprehensiveDemo runs the basic demonstrations one after the other
func (s *Service) ComprehensiveDemo(ctx context.Context) (ComprehensiveResult, error) {
	var (
		result ComprehensiveResult
		err    error
	)
	if result.ThreadInfo, err = s.ThreadInfo(ctx); err != nil {
		return ComprehensiveResult{}, err
	}
	if result.Comparison, err = s.CompareSimple(ctx); err != nil {
		return ComprehensiveResult{}, err
	}
	if result.TaskLifecycle, err = s.TaskLifecycle(ctx); err != nil {
		return ComprehensiveResult{}, err
	}
	if result.Parallel, err = s.ParallelTasks(ctx); err != nil {
		return ComprehensiveResult{}, err
	}
	if result.Continuation, err = s.ContinuationAffinity(ctx); err != nil {
		return ComprehensiveResult{}, err
	}
	if result.DeadlockPrevention, err = s.DeadlockPrevention(ctx); err != nil {
		return ComprehensiveResult{}, err
	}
	result.KeyConcepts = keyConcepts
	result.BestPractices = bestPractices
	return result, nil
}

// Comparison runs the detailed harness with the current settings, optionally
// overridden per call. Overrides above the configured maxima are rejected.
func (s *Service) Comparison(ctx context.Context, opts Options) (*ComparisonReport, error) {
	settings := s.Settings()
	if opts.OperationCount == 0 {
		opts.OperationCount = settings.OperationCount
	}
	if opts.Delay == 0 {
		opts.Delay = settings.Delay
	}
	if settings.MaxOperationCount > 0 && opts.OperationCount > settings.MaxOperationCount {
		return nil, fmtInvalid("operation count %d exceeds the maximum of %d", opts.OperationCount, settings.MaxOperationCount)
	}
	if settings.MaxDelay > 0 && opts.Delay > settings.MaxDelay {
		return nil, fmtInvalid("delay %v exceeds the maximum of %v", opts.Delay, settings.MaxDelay)
	}
	return s.harness.RunComparison(ctx, opts)
}
