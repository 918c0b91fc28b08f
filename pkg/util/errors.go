package util

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a helpful suggestion
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%v\nSuggestion: %s", e.Err, e.Suggestion)
}

func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapErrorWithSuggestion creates an error with a helpful suggestion
func WrapErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// GetErrorSuggestion returns helpful suggestions based on common error patterns
func GetErrorSuggestion(err error) string {
	if err == nil {
		return ""
	}

	var withSuggestion *ErrorWithSuggestion
	if errors.As(err, &withSuggestion) {
		return withSuggestion.Suggestion
	}

	switch {
	case errors.Is(err, context.Canceled):
		return "The run was cancelled before it finished. Re-run it without interrupting"
	case errors.Is(err, context.DeadlineExceeded):
		return "The run took longer than allowed. Lower the operation count or per-operation delay"
	}

	errStr := err.Error()

	// Worker pool errors
	if strings.Contains(errStr, "queue is full") {
		return "Too many units were queued at once. Raise pool.queue_size or lower the operation count"
	}
	if strings.Contains(errStr, "pool is closed") {
		return "The server is shutting down. Retry once it is back up"
	}

	// Listener errors
	if strings.Contains(errStr, "address already in use") {
		return "Another process is using the port. Pick a different one with --port or ASYNCDEMO_PORT"
	}
	if strings.Contains(errStr, "permission denied") {
		return "Check file permissions, or use a port above 1024"
	}

	// Outbound calls
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "The delay endpoint is unreachable. Check http_client.delay_url and your network connection"
	}
	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}

	// Configuration errors
	if strings.Contains(errStr, "failed to load config") {
		return "Check if the configuration file exists and is valid JSON. Use --config to specify a custom path"
	}

	return "Check the error message above and ensure all requirements are met"
}

// FormatError formats an error with suggestions for better user experience
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	// Check if it already has a suggestion
	if _, ok := err.(*ErrorWithSuggestion); ok {
		return err.Error()
	}

	suggestion := GetErrorSuggestion(err)
	if suggestion != "" {
		return fmt.Sprintf("Error: %v\nSuggestion: %s", err, suggestion)
	}

	return fmt.Sprintf("Error: %v", err)
}
