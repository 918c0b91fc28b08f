package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// ParseLogLevel parses a string into a LogLevel
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// LogFormat represents different log output formats
type LogFormat int

const (
	TextFormat LogFormat = iota
	JSONFormat
)

// ParseLogFormat parses "text" or "json"
func ParseLogFormat(format string) (LogFormat, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return TextFormat, nil
	case "json":
		return JSONFormat, nil
	default:
		return TextFormat, fmt.Errorf("invalid log format: %s", format)
	}
}

// Config holds logger configuration
type Config struct {
	Level            LogLevel
	Format           LogFormat
	Output           io.Writer
	ShowCaller       bool
	Component        string
	EnableSanitizing bool
}

// DefaultConfig returns a default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:            InfoLevel,
		Format:           TextFormat,
		Output:           os.Stdout,
		ShowCaller:       false,
		Component:        "",
		EnableSanitizing: true,
	}
}

// Logger provides structured logging on top of logrus. Loggers derived with
// WithComponent share the same backend, so SetLevel and SetOutput affect all
// of them.
type Logger struct {
	base      *logrus.Logger
	component string
}

// NewLogger creates a new logger with the given configuration
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	base := logrus.New()
	base.SetLevel(config.Level.logrus())
	base.SetReportCaller(config.ShowCaller)
	if config.Output != nil {
		base.SetOutput(config.Output)
	}

	switch config.Format {
	case JSONFormat:
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	default:
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  "2006-01-02 15:04:05",
			DisableColors:    true,
			QuoteEmptyFields: true,
		})
	}

	if config.EnableSanitizing {
		base.AddHook(redactHook{})
	}

	return &Logger{
		base:      base,
		component: config.Component,
	}
}

// WithComponent returns a new logger with the specified component name
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		base:      l.base,
		component: component,
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.base.SetLevel(level.logrus())
}

// IsEnabled checks if a log level is enabled
func (l *Logger) IsEnabled(level LogLevel) bool {
	return l.base.IsLevelEnabled(level.logrus())
}

func (l *Logger) entry(fields map[string]interface{}) *logrus.Entry {
	e := logrus.NewEntry(l.base)
	if l.component != "" {
		e = e.WithField("component", l.component)
	}
	if len(fields) > 0 {
		e = e.WithFields(logrus.Fields(fields))
	}
	return e
}

func firstFields(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.entry(firstFields(fields)).Debug(message)
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.entry(firstFields(fields)).Info(message)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.entry(firstFields(fields)).Warn(message)
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.entry(firstFields(fields)).Error(message)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.entry(nil).Debugf(format, args...)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.entry(nil).Infof(format, args...)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.entry(nil).Warnf(format, args...)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.entry(nil).Errorf(format, args...)
}

// WithField returns a new logger with the specified field
func (l *Logger) WithField(key string, value interface{}) *FieldLogger {
	return &FieldLogger{entry: l.entry(nil).WithField(key, value)}
}

// WithFields returns a new logger with the specified fields
func (l *Logger) WithFields(fields map[string]interface{}) *FieldLogger {
	return &FieldLogger{entry: l.entry(fields)}
}

// WithError returns a new logger carrying err under the "error" field
func (l *Logger) WithError(err error) *FieldLogger {
	return &FieldLogger{entry: l.entry(nil).WithError(err)}
}

// FieldLogger wraps a logger with additional fields
type FieldLogger struct {
	entry *logrus.Entry
}

// Debug logs a debug message with fields
func (fl *FieldLogger) Debug(message string) {
	fl.entry.Debug(message)
}

// Info logs an info message with fields
func (fl *FieldLogger) Info(message string) {
	fl.entry.Info(message)
}

// Warn logs a warning message with fields
func (fl *FieldLogger) Warn(message string) {
	fl.entry.Warn(message)
}

// Error logs an error message with fields
func (fl *FieldLogger) Error(message string) {
	fl.entry.Error(message)
}

// Debugf logs a formatted debug message with fields
func (fl *FieldLogger) Debugf(format string, args ...interface{}) {
	fl.entry.Debugf(format, args...)
}

// Infof logs a formatted info message with fields
func (fl *FieldLogger) Infof(format string, args ...interface{}) {
	fl.entry.Infof(format, args...)
}

// Warnf logs a formatted warning message with fields
func (fl *FieldLogger) Warnf(format string, args ...interface{}) {
	fl.entry.Warnf(format, args...)
}

// Errorf logs a formatted error message with fields
func (fl *FieldLogger) Errorf(format string, args ...interface{}) {
	fl.entry.Errorf(format, args...)
}

// WithField adds another field to the logger
func (fl *FieldLogger) WithField(key string, value interface{}) *FieldLogger {
	return &FieldLogger{entry: fl.entry.WithField(key, value)}
}

// WithError adds err under the "error" field
func (fl *FieldLogger) WithError(err error) *FieldLogger {
	return &FieldLogger{entry: fl.entry.WithError(err)}
}

// Field names that might carry credentials, e.g. a query string echoed
// back from a request
var sensitiveFieldPattern = regexp.MustCompile(`(?i)(password|passwd|pwd|secret|token|api[-_]?key|authorization|cookie|credential)`)

// redactHook masks values of sensitive-looking fields before formatting
type redactHook struct{}

func (redactHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (redactHook) Fire(entry *logrus.Entry) error {
	for key := range entry.Data {
		if sensitiveFieldPattern.MatchString(key) {
			entry.Data[key] = "[REDACTED]"
		}
	}
	return nil
}

// Global logger instance
var defaultLogger *Logger
var defaultLoggerMu sync.RWMutex

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(config *Config) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = NewLogger(config)
}

// GetGlobalLogger returns the global logger
func GetGlobalLogger() *Logger {
	defaultLoggerMu.RLock()
	l := defaultLogger
	defaultLoggerMu.RUnlock()
	if l != nil {
		return l
	}

	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(DefaultConfig())
	}
	return defaultLogger
}

// CreateFileOutput creates a file writer for logging
func CreateFileOutput(filename string) (io.Writer, error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return file, nil
}

// CreateCombinedOutput creates a writer that writes to both console and file
func CreateCombinedOutput(filename string) (io.Writer, error) {
	fileWriter, err := CreateFileOutput(filename)
	if err != nil {
		return nil, err
	}

	return io.MultiWriter(os.Stdout, fileWriter), nil
}
