package demo

import (
	"time"

	"github.com/TheEntropyCollective/asyncdemo/pkg/infrastructure/config"
)

// SettingsFromConfig extracts the workload settings from a loaded configuration
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		OperationCount:    cfg.Demo.OperationCount,
		Delay:             cfg.Demo.Delay(),
		MaxOperationCount: cfg.Demo.MaxOperationCount,
		MaxDelay:          time.Duration(cfg.Demo.MaxDelayMs) * time.Millisecond,
		StreamItems:       cfg.Demo.StreamItems,
		StreamInterval:    cfg.Demo.StreamInterval(),
		CancellationSteps: cfg.Demo.CancellationSteps,
		CancellationStep:  cfg.Demo.CancellationStep(),
		DelayURL:          cfg.HTTPClient.DelayURL,
		HTTPTimeout:       time.Duration(cfg.HTTPClient.Timeout) * time.Second,
		ParallelCalls:     cfg.HTTPClient.ParallelCalls,
	}
}
