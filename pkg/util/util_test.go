package util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorWithSuggestionUnwraps(t *testing.T) {
	base := errors.New("port out of range")
	err := WrapErrorWithSuggestion(base, "Use 5000")

	assert.ErrorIs(t, err, base)
	assert.Equal(t, "Use 5000", GetErrorSuggestion(fmt.Errorf("invalid configuration: %w", err)))
	assert.Contains(t, FormatError(err), "Suggestion: Use 5000")
	assert.Nil(t, WrapErrorWithSuggestion(nil, "unused"))
}

func TestGetErrorSuggestion(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{context.Canceled, "cancelled"},
		{fmt.Errorf("run: %w", context.DeadlineExceeded), "longer than allowed"},
		{errors.New("worker pool queue is full"), "queue_size"},
		{errors.New("listen tcp :5000: bind: address already in use"), "--port"},
		{errors.New("dial tcp: connection refused"), "delay_url"},
		{errors.New("something odd"), "requirements"},
	}

	for _, tt := range tests {
		assert.Contains(t, GetErrorSuggestion(tt.err), tt.want, tt.err.Error())
	}
	assert.Empty(t, GetErrorSuggestion(nil))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, JSONOutput{Success: true, Data: map[string]int{"units": 8}}))

	out := buf.String()
	assert.Contains(t, out, `"success": true`)
	assert.Contains(t, out, `"units": 8`)
	assert.NotContains(t, out, `"error"`)
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(4, "blocking", &buf)

	bar.Add(1)
	assert.Contains(t, buf.String(), "1/4 units")

	bar.Add(10)
	assert.Contains(t, buf.String(), "4/4 units")

	bar.Reset("non-blocking", 2)
	bar.Finish()
	out := buf.String()
	assert.Contains(t, out, "non-blocking")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.50 MB", FormatBytes(3*512*1024))
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "4.0s", FormatDuration(4*time.Second))
	assert.Equal(t, "2m 5s", FormatDuration(125*time.Second))
}
