package demo

import (
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/TheEntropyCollective/asyncdemo/pkg/common/workers"
)

// CaptureEnvironment samples the current process. The OS thread count comes
// from the process table when available and falls back to the number of
// threads the Go runtime has created.
func CaptureEnvironment() EnvironmentSnapshot {
	pid := os.Getpid()
	env := EnvironmentSnapshot{
		ProcessorCount: runtime.NumCPU(),
		ProcessID:      pid,
		ThreadCount:    pprof.Lookup("threadcreate").Count(),
		GoroutineCount: runtime.NumGoroutine(),
		MaxProcs:       runtime.GOMAXPROCS(0),
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return env
	}
	if n, err := proc.NumThreads(); err == nil && n > 0 {
		env.ThreadCount = int(n)
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		env.MemoryRSSBytes = mem.RSS
	}
	return env
}

// SnapshotPools samples both scheduler pools
func SnapshotPools(tag string, sched *workers.Scheduler) WorkerPoolSnapshot {
	g := sched.General().Stats()
	c := sched.Completion().Stats()

	return WorkerPoolSnapshot{
		Tag:       tag,
		Timestamp: time.Now().UTC(),

		GeneralAvailable: g.Available,
		GeneralMax:       g.Max,
		GeneralMin:       g.Min,
		GeneralBusy:      g.Busy,
		GeneralLive:      g.Live,
		GeneralQueued:    g.Queued,

		CompletionAvailable: c.Available,
		CompletionMax:       c.Max,
		CompletionMin:       c.Min,
		CompletionBusy:      c.Busy,
		CompletionLive:      c.Live,
	}
}
