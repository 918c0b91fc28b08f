package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/TheEntropyCollective/asyncdemo/pkg/util"
)

// Config holds all asyncdemo configuration
type Config struct {
	// HTTP listener
	Server ServerConfig `json:"server"`

	// Workload parameters for the demonstrations
	Demo DemoConfig `json:"demo"`

	// Worker pool sizing
	Pool PoolConfig `json:"pool"`

	// System configuration
	Logging LoggingConfig `json:"logging"`
	Metrics MetricsConfig `json:"metrics"`

	// Outbound calls made by the HTTP client demos
	HTTPClient HTTPClientConfig `json:"http_client"`

	// Recent comparison reports kept in memory
	History HistoryConfig `json:"history"`

	// Per-client request limiting
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	CORSOrigin      string `json:"cors_origin"`
	MaxConnections  int    `json:"max_connections"`
	ReadTimeout     int    `json:"read_timeout_seconds"`
	WriteTimeout    int    `json:"write_timeout_seconds"`
	IdleTimeout     int    `json:"idle_timeout_seconds"`
	ShutdownTimeout int    `json:"shutdown_timeout_seconds"`
	TrustProxy      bool   `json:"trust_proxy"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DemoConfig holds the synthetic workload parameters
type DemoConfig struct {
	OperationCount    int `json:"operation_count"`
	DelayMs           int `json:"delay_ms"`
	MaxOperationCount int `json:"max_operation_count"`
	MaxDelayMs        int `json:"max_delay_ms"`

	StreamItems      int `json:"stream_items"`
	StreamIntervalMs int `json:"stream_interval_ms"`

	CancellationSteps  int `json:"cancellation_steps"`
	CancellationStepMs int `json:"cancellation_step_ms"`
}

// Delay returns the per-operation delay
func (d DemoConfig) Delay() time.Duration {
	return time.Duration(d.DelayMs) * time.Millisecond
}

// StreamInterval returns the pause between streamed items
func (d DemoConfig) StreamInterval() time.Duration {
	return time.Duration(d.StreamIntervalMs) * time.Millisecond
}

// CancellationStep returns the duration of one cancellation demo step
func (d DemoConfig) CancellationStep() time.Duration {
	return time.Duration(d.CancellationStepMs) * time.Millisecond
}

// PoolConfig sizes the general and I/O-completion pools
type PoolConfig struct {
	GeneralMin    int `json:"general_min"`
	GeneralMax    int `json:"general_max"`
	CompletionMin int `json:"completion_min"`
	CompletionMax int `json:"completion_max"`
	QueueSize     int `json:"queue_size"`
	IdleTimeout   int `json:"idle_timeout_seconds"`
	TelemetryMs   int `json:"telemetry_interval_ms"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
	Output string `json:"output"` // console, file, both
	File   string `json:"file,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// HTTPClientConfig holds outbound call settings
type HTTPClientConfig struct {
	DelayURL      string `json:"delay_url"`
	Timeout       int    `json:"timeout_seconds"`
	ParallelCalls int    `json:"parallel_calls"`
}

// HistoryConfig bounds the in-memory report history
type HistoryConfig struct {
	Capacity int `json:"capacity"`
}

// RateLimitConfig holds per-client rate limiting settings
type RateLimitConfig struct {
	Enabled           bool    `json:"enabled"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	cpus := runtime.NumCPU()

	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            5000,
			CORSOrigin:      "http://localhost:3000",
			MaxConnections:  256,
			ReadTimeout:     15,
			WriteTimeout:    120,
			IdleTimeout:     60,
			ShutdownTimeout: 15,
		},
		Demo: DemoConfig{
			OperationCount:     8,
			DelayMs:            500,
			MaxOperationCount:  64,
			MaxDelayMs:         5000,
			StreamItems:        5,
			StreamIntervalMs:   500,
			CancellationSteps:  10,
			CancellationStepMs: 1000,
		},
		Pool: PoolConfig{
			GeneralMin:    cpus,
			GeneralMax:    cpus * 4,
			CompletionMin: 1,
			CompletionMax: cpus * 2,
			QueueSize:     4096,
			IdleTimeout:   30,
			TelemetryMs:   1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "console",
			File:   "",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		HTTPClient: HTTPClientConfig{
			DelayURL:      "https://httpbin.org/delay/1",
			Timeout:       10,
			ParallelCalls: 3,
		},
		History: HistoryConfig{
			Capacity: 20,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 5,
			Burst:             10,
		},
	}
}

// LoadConfig loads configuration from file with environment variable overrides
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// Load from file if it exists
	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a JSON file
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, use defaults
			return nil
		}
		return err
	}

	return json.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies ASYNCDEMO_* environment variable overrides
func (c *Config) applyEnvironmentOverrides() {
	// Server overrides
	if val := os.Getenv("ASYNCDEMO_HOST"); val != "" {
		c.Server.Host = val
	}
	envInt("ASYNCDEMO_PORT", &c.Server.Port)
	if val := os.Getenv("ASYNCDEMO_CORS_ORIGIN"); val != "" {
		c.Server.CORSOrigin = val
	}
	envInt("ASYNCDEMO_MAX_CONNECTIONS", &c.Server.MaxConnections)
	if val := os.Getenv("ASYNCDEMO_TRUST_PROXY"); val != "" {
		c.Server.TrustProxy = strings.ToLower(val) == "true"
	}

	// Demo overrides
	envInt("ASYNCDEMO_OPERATION_COUNT", &c.Demo.OperationCount)
	envInt("ASYNCDEMO_DELAY_MS", &c.Demo.DelayMs)
	envInt("ASYNCDEMO_MAX_OPERATION_COUNT", &c.Demo.MaxOperationCount)
	envInt("ASYNCDEMO_MAX_DELAY_MS", &c.Demo.MaxDelayMs)

	// Pool overrides
	envInt("ASYNCDEMO_POOL_GENERAL_MIN", &c.Pool.GeneralMin)
	envInt("ASYNCDEMO_POOL_GENERAL_MAX", &c.Pool.GeneralMax)
	envInt("ASYNCDEMO_POOL_COMPLETION_MIN", &c.Pool.CompletionMin)
	envInt("ASYNCDEMO_POOL_COMPLETION_MAX", &c.Pool.CompletionMax)

	// Logging overrides
	if val := os.Getenv("ASYNCDEMO_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("ASYNCDEMO_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}
	if val := os.Getenv("ASYNCDEMO_LOG_OUTPUT"); val != "" {
		c.Logging.Output = val
	}
	if val := os.Getenv("ASYNCDEMO_LOG_FILE"); val != "" {
		c.Logging.File = val
	}

	// Metrics overrides
	if val := os.Getenv("ASYNCDEMO_METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = strings.ToLower(val) == "true"
	}

	// HTTP client overrides
	if val := os.Getenv("ASYNCDEMO_DELAY_URL"); val != "" {
		c.HTTPClient.DelayURL = val
	}
	envInt("ASYNCDEMO_HTTP_TIMEOUT", &c.HTTPClient.Timeout)

	// History and rate limit overrides
	envInt("ASYNCDEMO_HISTORY_CAPACITY", &c.History.Capacity)
	if val := os.Getenv("ASYNCDEMO_RATE_LIMIT_ENABLED"); val != "" {
		c.RateLimit.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("ASYNCDEMO_RATE_LIMIT_RPS"); val != "" {
		if rps, err := strconv.ParseFloat(val, 64); err == nil {
			c.RateLimit.RequestsPerSecond = rps
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(name); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

// Validate validates the configuration and provides helpful suggestions
func (c *Config) Validate() error {
	// Validate server configuration
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return util.WrapErrorWithSuggestion(
			fmt.Errorf("server port out of range (current: %d)", c.Server.Port),
			"Use a port between 1 and 65535, e.g. 5000")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("max connections cannot be negative (current: %d). Use 0 for no limit", c.Server.MaxConnections)
	}

	// Validate demo configuration
	if c.Demo.OperationCount <= 0 {
		return util.WrapErrorWithSuggestion(
			fmt.Errorf("operation count must be positive (current: %d)", c.Demo.OperationCount),
			"Use 8 operations for a readable comparison")
	}
	if c.Demo.DelayMs < 0 {
		return fmt.Errorf("per-operation delay cannot be negative (current: %d ms)", c.Demo.DelayMs)
	}
	if c.Demo.OperationCount > c.Demo.MaxOperationCount {
		return util.WrapErrorWithSuggestion(
			fmt.Errorf("operation count %d exceeds max_operation_count %d", c.Demo.OperationCount, c.Demo.MaxOperationCount),
			"Raise max_operation_count or lower operation_count")
	}
	if c.Demo.DelayMs > c.Demo.MaxDelayMs {
		return fmt.Errorf("delay %d ms exceeds max_delay_ms %d", c.Demo.DelayMs, c.Demo.MaxDelayMs)
	}
	if c.Demo.StreamItems <= 0 || c.Demo.CancellationSteps <= 0 {
		return fmt.Errorf("stream_items and cancellation_steps must be positive")
	}

	// Validate pool configuration
	if c.Pool.GeneralMin <= 0 {
		return util.WrapErrorWithSuggestion(
			fmt.Errorf("general pool minimum must be positive (current: %d)", c.Pool.GeneralMin),
			fmt.Sprintf("Use the processor count (%d)", runtime.NumCPU()))
	}
	if c.Pool.GeneralMax < c.Pool.GeneralMin {
		return fmt.Errorf("general pool max (%d) is below its min (%d)", c.Pool.GeneralMax, c.Pool.GeneralMin)
	}
	if c.Pool.CompletionMin <= 0 || c.Pool.CompletionMax < c.Pool.CompletionMin {
		return fmt.Errorf("completion pool sizing invalid (min %d, max %d)", c.Pool.CompletionMin, c.Pool.CompletionMax)
	}
	if c.Pool.QueueSize < c.Demo.MaxOperationCount {
		return fmt.Errorf("pool queue size %d cannot hold max_operation_count %d units", c.Pool.QueueSize, c.Demo.MaxOperationCount)
	}

	// Validate logging configuration
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s'. Valid options: debug, info, warn, error", c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format '%s'. Valid options: text, json", c.Logging.Format)
	}

	validOutputs := map[string]bool{
		"console": true, "file": true, "both": true,
	}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output '%s'. Valid options: console, file, both", c.Logging.Output)
	}
	if c.Logging.Output != "console" && c.Logging.File == "" {
		return fmt.Errorf("log file path is required when output is '%s'", c.Logging.Output)
	}

	// Validate metrics configuration
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with '/' (current: %q)", c.Metrics.Path)
	}

	// Validate outbound client configuration
	if u, err := url.Parse(c.HTTPClient.DelayURL); err != nil || u.Scheme == "" || u.Host == "" {
		return util.WrapErrorWithSuggestion(
			fmt.Errorf("invalid delay URL %q", c.HTTPClient.DelayURL),
			"Use an endpoint that responds after a fixed delay, e.g. https://httpbin.org/delay/1")
	}
	if c.HTTPClient.Timeout <= 0 {
		return fmt.Errorf("http client timeout must be positive (current: %d)", c.HTTPClient.Timeout)
	}
	if c.HTTPClient.ParallelCalls <= 0 {
		return fmt.Errorf("parallel calls must be positive (current: %d)", c.HTTPClient.ParallelCalls)
	}

	if c.History.Capacity <= 0 {
		return fmt.Errorf("history capacity must be positive (current: %d)", c.History.Capacity)
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return util.WrapErrorWithSuggestion(
			fmt.Errorf("rate limit requires positive requests_per_second and burst"),
			"Disable rate_limit or use 5 requests per second with a burst of 10")
	}

	return nil
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".asyncdemo", "config.json"), nil
}
