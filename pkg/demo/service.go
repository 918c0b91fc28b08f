package demo

import (
	"math/rand"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/TheEntropyCollective/asyncdemo/pkg/common/workers"
	"github.com/TheEntropyCollective/asyncdemo/pkg/infrastructure/logging"
)

// Settings are the tunable workload parameters. They can be replaced at
// runtime with UpdateSettings.
type Settings struct {
	OperationCount    int
	Delay             time.Duration
	MaxOperationCount int
	MaxDelay          time.Duration

	StreamItems    int
	StreamInterval time.Duration

	CancellationSteps int
	CancellationStep  time.Duration

	DelayURL      string
	HTTPTimeout   time.Duration
	ParallelCalls int
}

// DefaultSettings mirrors the default configuration file
func DefaultSettings() Settings {
	return Settings{
		OperationCount:    8,
		Delay:             500 * time.Millisecond,
		MaxOperationCount: 64,
		MaxDelay:          5 * time.Second,
		StreamItems:       5,
		StreamInterval:    500 * time.Millisecond,
		CancellationSteps: 10,
		CancellationStep:  time.Second,
		DelayURL:          "https://httpbin.org/delay/1",
		HTTPTimeout:       10 * time.Second,
		ParallelCalls:     3,
	}
}

// Timings holds the fixed waits used by the single-shot demonstrations
type Timings struct {
	Short       time.Duration // thread info, lifecycle poll, continuation steps
	Long        time.Duration // simple comparison, lifecycle body, task exception
	ParallelMin time.Duration
	ParallelMax time.Duration
	PoolMin     time.Duration
	PoolMax     time.Duration
	SafeTask    time.Duration
	FaultyTask  time.Duration
	Produce     time.Duration
	Consume     time.Duration

	// DeadlockTimeout bounds how long the sync-over-async scenario waits
	// before declaring the loop deadlocked
	DeadlockTimeout time.Duration
}

// DefaultTimings returns the classic demonstration timings
func DefaultTimings() Timings {
	return Timings{
		Short:           100 * time.Millisecond,
		Long:            time.Second,
		ParallelMin:     500 * time.Millisecond,
		ParallelMax:     2 * time.Second,
		PoolMin:         100 * time.Millisecond,
		PoolMax:         500 * time.Millisecond,
		SafeTask:        500 * time.Millisecond,
		FaultyTask:      300 * time.Millisecond,
		Produce:         200 * time.Millisecond,
		Consume:         100 * time.Millisecond,
		DeadlockTimeout: 500 * time.Millisecond,
	}
}

// Scale multiplies every timing by f
func (t Timings) Scale(f float64) Timings {
	s := func(d time.Duration) time.Duration { return time.Duration(float64(d) * f) }
	return Timings{
		Short:           s(t.Short),
		Long:            s(t.Long),
		ParallelMin:     s(t.ParallelMin),
		ParallelMax:     s(t.ParallelMax),
		PoolMin:         s(t.PoolMin),
		PoolMax:         s(t.PoolMax),
		SafeTask:        s(t.SafeTask),
		FaultyTask:      s(t.FaultyTask),
		Produce:         s(t.Produce),
		Consume:         s(t.Consume),
		DeadlockTimeout: s(t.DeadlockTimeout),
	}
}

// Service runs the demonstrations on a shared scheduler
type Service struct {
	sched   *workers.Scheduler
	harness *Harness
	logger  *logging.Logger
	timings Timings
	client  *fasthttp.Client

	mu       sync.RWMutex
	settings Settings

	rngMu sync.Mutex
	rng   *rand.Rand
}

// ServiceOption customizes a Service
type ServiceOption func(*Service)

// WithTimings overrides the demonstration timings
func WithTimings(t Timings) ServiceOption {
	return func(s *Service) { s.timings = t }
}

// WithObserver reports harness phases to o
func WithObserver(o PhaseObserver) ServiceOption {
	return func(s *Service) { s.harness.observer = o }
}

// WithHTTPClient replaces the outbound client
func WithHTTPClient(c *fasthttp.Client) ServiceOption {
	return func(s *Service) { s.client = c }
}

// NewService creates a demonstration service on sched
func NewService(sched *workers.Scheduler, settings Settings, logger *logging.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Service{
		sched:    sched,
		harness:  NewHarness(sched, logger, nil),
		logger:   logger.WithComponent("demo"),
		timings:  DefaultTimings(),
		settings: settings,
		client: &fasthttp.Client{
			Name:                "asyncdemo",
			MaxConnsPerHost:     16,
			ReadTimeout:         settings.HTTPTimeout,
			WriteTimeout:        settings.HTTPTimeout,
			MaxIdleConnDuration: 30 * time.Second,
		},
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scheduler returns the scheduler the demonstrations run on
func (s *Service) Scheduler() *workers.Scheduler {
	return s.sched
}

// Harness returns the comparison harness
func (s *Service) Harness() *Harness {
	return s.harness
}

// Settings returns the current workload settings
func (s *Service) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings swaps the workload settings for subsequent runs
func (s *Service) UpdateSettings(settings Settings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	s.logger.WithFields(map[string]interface{}{
		"operationCount": settings.OperationCount,
		"delay":          settings.Delay.String(),
	}).Info("demo settings updated")
}

// randomBetween returns a duration in [lo, hi)
func (s *Service) randomBetween(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return lo + time.Duration(s.rng.Int63n(int64(hi-lo)))
}

// PoolSnapshot samples both pools now
func (s *Service) PoolSnapshot() WorkerPoolSnapshot {
	return SnapshotPools("current", s.sched)
}
