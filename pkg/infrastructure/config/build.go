package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/TheEntropyCollective/asyncdemo/pkg/common/workers"
	"github.com/TheEntropyCollective/asyncdemo/pkg/infrastructure/logging"
)

// LoggerConfig translates the logging section into a logger configuration.
// The returned close function releases the log file, if any.
func (l LoggingConfig) LoggerConfig() (*logging.Config, func() error, error) {
	level, err := logging.ParseLogLevel(l.Level)
	if err != nil {
		return nil, nil, err
	}
	format, err := logging.ParseLogFormat(l.Format)
	if err != nil {
		return nil, nil, err
	}

	out := logging.DefaultConfig()
	out.Level = level
	out.Format = format

	closeFn := func() error { return nil }
	switch l.Output {
	case "", "console":
		out.Output = os.Stderr
	case "file":
		w, err := logging.CreateFileOutput(l.File)
		if err != nil {
			return nil, nil, err
		}
		out.Output = w
		if c, ok := w.(io.Closer); ok {
			closeFn = c.Close
		}
	case "both":
		w, err := logging.CreateCombinedOutput(l.File)
		if err != nil {
			return nil, nil, err
		}
		out.Output = w
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", l.Output)
	}
	return out, closeFn, nil
}

// SchedulerConfig sizes the general and completion pools
func (p PoolConfig) SchedulerConfig(onPanic workers.PanicHandler) workers.SchedulerConfig {
	idle := time.Duration(p.IdleTimeout) * time.Second
	return workers.SchedulerConfig{
		General: workers.Config{
			Name:        "general",
			MinWorkers:  p.GeneralMin,
			MaxWorkers:  p.GeneralMax,
			QueueSize:   p.QueueSize,
			IdleTimeout: idle,
			OnPanic:     onPanic,
		},
		Completion: workers.Config{
			Name:        "completion",
			MinWorkers:  p.CompletionMin,
			MaxWorkers:  p.CompletionMax,
			QueueSize:   p.QueueSize,
			IdleTimeout: idle,
			OnPanic:     onPanic,
		},
	}
}

// TelemetryInterval returns how often pool telemetry is sampled
func (p PoolConfig) TelemetryInterval() time.Duration {
	return time.Duration(p.TelemetryMs) * time.Millisecond
}
