package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/asyncdemo/pkg/infrastructure/logging"
)

func TestLoggerConfig(t *testing.T) {
	cfg := DefaultConfig().Logging
	cfg.Level = "debug"
	cfg.Format = "json"

	lc, closeFn, err := cfg.LoggerConfig()
	require.NoError(t, err)
	assert.Equal(t, logging.DebugLevel, lc.Level)
	assert.Equal(t, logging.JSONFormat, lc.Format)
	assert.NoError(t, closeFn())

	cfg.Output = "file"
	cfg.File = filepath.Join(t.TempDir(), "logs", "asyncdemo.log")
	lc, closeFn, err = cfg.LoggerConfig()
	require.NoError(t, err)
	assert.NotNil(t, lc.Output)
	assert.NoError(t, closeFn())
	assert.FileExists(t, cfg.File)

	cfg.Level = "loud"
	_, _, err = cfg.LoggerConfig()
	assert.Error(t, err)
}

func TestSchedulerConfig(t *testing.T) {
	p := PoolConfig{GeneralMin: 2, GeneralMax: 8, CompletionMin: 1, CompletionMax: 3, QueueSize: 100, IdleTimeout: 5, TelemetryMs: 250}

	sc := p.SchedulerConfig(nil)
	assert.Equal(t, "general", sc.General.Name)
	assert.Equal(t, 8, sc.General.MaxWorkers)
	assert.Equal(t, 3, sc.Completion.MaxWorkers)
	assert.Equal(t, 5*time.Second, sc.Completion.IdleTimeout)
	assert.Equal(t, 250*time.Millisecond, p.TelemetryInterval())
}
