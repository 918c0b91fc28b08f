package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/TheEntropyCollective/asyncdemo/pkg/common/workers"
	"github.com/TheEntropyCollective/asyncdemo/pkg/demo"
	"github.com/TheEntropyCollective/asyncdemo/pkg/infrastructure/config"
	"github.com/TheEntropyCollective/asyncdemo/pkg/infrastructure/logging"
	"github.com/TheEntropyCollective/asyncdemo/pkg/util"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		count      = flag.Int("count", 0, "Number of operations per phase (overrides config)")
		delayMs    = flag.Int("delay-ms", 0, "Per-operation delay in milliseconds (overrides config)")
		jsonOutput = flag.Bool("json", false, "Print the report as JSON even on a terminal")
		quiet      = flag.Bool("quiet", false, "Suppress the progress bar")
	)
	flag.Parse()

	interactive := term.IsTerminal(int(os.Stdout.Fd())) && !*jsonOutput

	report, err := runComparison(*configFile, *count, *delayMs, interactive && !*quiet)
	if err != nil {
		if interactive {
			fmt.Fprintln(os.Stderr, util.FormatError(err))
		} else {
			util.PrintJSONError(err)
		}
		os.Exit(1)
	}

	if !interactive {
		if err := util.PrintJSON(report); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
			os.Exit(1)
		}
		return
	}
	printReport(os.Stdout, report)
}

func runComparison(configFile string, count, delayMs int, showProgress bool) (*demo.ComparisonReport, error) {
	if configFile == "" {
		if p, err := config.GetDefaultConfigPath(); err == nil {
			configFile = p
		}
	}
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		cfg.Demo.OperationCount = count
	}
	if delayMs > 0 {
		cfg.Demo.DelayMs = delayMs
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Keep the CLI quiet unless something goes wrong
	logger := logging.NewLogger(&logging.Config{
		Level:            logging.WarnLevel,
		Format:           logging.TextFormat,
		Output:           os.Stderr,
		EnableSanitizing: true,
	})

	sched := workers.NewScheduler(cfg.Pool.SchedulerConfig(nil))
	defer sched.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := demo.Options{
		OperationCount: cfg.Demo.OperationCount,
		Delay:          cfg.Demo.Delay(),
	}
	var bar *phaseProgress
	if showProgress {
		bar = newPhaseProgress(int64(opts.OperationCount))
		opts.OnUnit = bar.unitDone
	}

	report, err := demo.NewHarness(sched, logger, nil).RunComparison(ctx, opts)
	if bar != nil {
		bar.finish()
	}
	return report, err
}

// phaseProgress drives one progress bar across both phases
type phaseProgress struct {
	mu    sync.Mutex
	bar   *util.ProgressBar
	total int64
	phase demo.Phase
}

func newPhaseProgress(total int64) *phaseProgress {
	return &phaseProgress{
		bar:   util.NewProgressBar(total, string(demo.PhaseSynchronous), os.Stderr),
		total: total,
		phase: demo.PhaseSynchronous,
	}
}

func (p *phaseProgress) unitDone(phase demo.Phase, index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if phase != p.phase {
		p.bar.Finish()
		p.bar.Reset(string(phase), p.total)
		p.phase = phase
	}
	p.bar.Add(1)
}

func (p *phaseProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar.Finish()
}

var phaseLabels = map[demo.Phase]string{
	demo.PhaseSynchronous:  "Blocking",
	demo.PhaseAsynchronous: "Non-blocking",
}

func printReport(w io.Writer, r *demo.ComparisonReport) {
	env := r.Environment
	fmt.Fprintf(w, "Run %s\n", r.RunID)
	fmt.Fprintf(w, "  processors: %d  GOMAXPROCS: %d  threads: %d  goroutines: %d",
		env.ProcessorCount, env.MaxProcs, env.ThreadCount, env.GoroutineCount)
	if env.MemoryRSSBytes > 0 {
		fmt.Fprintf(w, "  rss: %s", util.FormatBytes(int64(env.MemoryRSSBytes)))
	}
	fmt.Fprintln(w)

	for _, group := range []demo.OperationGroupResult{r.Synchronous, r.Asynchronous} {
		fmt.Fprintf(w, "\n%s phase: %s on workers %v\n", phaseLabels[group.Phase],
			util.FormatDuration(msToDuration(group.TotalElapsedMs)), group.DistinctWorkerIDs)
		for _, op := range group.Operations {
			fmt.Fprintf(w, "  #%-3d %8s  worker %d -> %d  %s\n",
				op.Index, util.FormatDuration(op.Elapsed()), op.StartWorkerID, op.EndWorkerID, op.Notes)
		}
	}

	fmt.Fprintln(w)
	for _, snap := range []demo.WorkerPoolSnapshot{r.PoolBefore, r.PoolAfterSync, r.PoolAfterAsync} {
		fmt.Fprintf(w, "Pool %-10s general %d/%d available, completion %d/%d available\n",
			snap.Tag, snap.GeneralAvailable, snap.GeneralMax, snap.CompletionAvailable, snap.CompletionMax)
	}

	fmt.Fprintln(w)
	for _, line := range r.Summary {
		fmt.Fprintf(w, "- %s\n", line)
	}
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
