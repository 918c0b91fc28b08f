package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"warn", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseLogFormat(t *testing.T) {
	f, err := ParseLogFormat("json")
	require.NoError(t, err)
	assert.Equal(t, JSONFormat, f)

	f, err = ParseLogFormat("")
	require.NoError(t, err)
	assert.Equal(t, TextFormat, f)

	_, err = ParseLogFormat("xml")
	assert.Error(t, err)
}

func newBufferLogger(format LogFormat) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	cfg.Format = format
	return NewLogger(cfg), &buf
}

func TestJSONOutputCarriesComponentAndFields(t *testing.T) {
	logger, buf := newBufferLogger(JSONFormat)

	logger.WithComponent("harness").Info("phase finished", map[string]interface{}{
		"phase": "asynchronous",
		"units": 8,
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "phase finished", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "harness", entry["component"])
	assert.Equal(t, "asynchronous", entry["phase"])
	assert.Equal(t, float64(8), entry["units"])
	assert.Contains(t, entry, "timestamp")
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(TextFormat)

	logger.Debug("hidden")
	assert.Empty(t, buf.String())
	assert.False(t, logger.IsEnabled(DebugLevel))

	logger.SetLevel(DebugLevel)
	logger.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestComponentLoggersShareBackend(t *testing.T) {
	logger, buf := newBufferLogger(TextFormat)
	api := logger.WithComponent("api")

	logger.SetLevel(ErrorLevel)
	api.Warn("dropped")
	assert.Empty(t, buf.String())

	api.Error("kept")
	out := buf.String()
	assert.Contains(t, out, "kept")
	assert.Contains(t, out, "component=api")
}

func TestFieldLoggerChaining(t *testing.T) {
	logger, buf := newBufferLogger(TextFormat)

	logger.WithField("runId", "abc").
		WithField("operationCount", 8).
		WithError(errors.New("unit 3 failed")).
		Warnf("comparison failed after %d ms", 120)

	out := buf.String()
	assert.Contains(t, out, "comparison failed after 120 ms")
	assert.Contains(t, out, "runId=abc")
	assert.Contains(t, out, "operationCount=8")
	assert.Contains(t, out, `error="unit 3 failed"`)
}

func TestSensitiveFieldsRedacted(t *testing.T) {
	logger, buf := newBufferLogger(JSONFormat)

	logger.Info("request", map[string]interface{}{
		"path":          "/api/AsyncDemo/thread-info",
		"authorization": "Bearer abc.def.ghi",
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "[REDACTED]", entry["authorization"])
	assert.Equal(t, "/api/AsyncDemo/thread-info", entry["path"])
}

func TestSanitizingCanBeDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{
		Level:  InfoLevel,
		Format: TextFormat,
		Output: &buf,
	})

	logger.Info("plain", map[string]interface{}{"token": "visible"})
	assert.Contains(t, buf.String(), "token=visible")
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	InitGlobalLogger(&Config{Level: InfoLevel, Output: &buf})
	defer InitGlobalLogger(DefaultConfig())

	GetGlobalLogger().Info("hello")
	assert.True(t, strings.Contains(buf.String(), "hello"))
}

func TestCreateFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "asyncdemo.log")
	w, err := CreateFileOutput(path)
	require.NoError(t, err)

	logger := NewLogger(&Config{Level: InfoLevel, Output: w})
	logger.Info("written to file")
	assert.FileExists(t, path)
}
