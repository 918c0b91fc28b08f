package util

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ProgressBar provides a simple terminal progress bar counting discrete units
type ProgressBar struct {
	mu      sync.Mutex
	total   int64
	current int64
	start   time.Time
	prefix  string
	width   int
	writer  io.Writer
}

// NewProgressBar creates a new progress bar
func NewProgressBar(total int64, prefix string, writer io.Writer) *ProgressBar {
	return &ProgressBar{
		total:  total,
		prefix: prefix,
		width:  30,
		writer: writer,
		start:  time.Now(),
	}
}

// Add increments the progress
func (p *ProgressBar) Add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current += n
	if p.current > p.total {
		p.current = p.total
	}
	p.draw()
}

// Reset restarts the bar with a new description and total
func (p *ProgressBar) Reset(prefix string, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prefix = prefix
	p.total = total
	p.current = 0
	p.start = time.Now()
	p.draw()
}

// Finish completes the progress bar
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = p.total
	p.draw()
	fmt.Fprintln(p.writer) // New line after completion
}

// draw renders the progress bar
func (p *ProgressBar) draw() {
	if p.total <= 0 {
		return
	}

	filled := int(float64(p.width) * float64(p.current) / float64(p.total))
	if filled > p.width {
		filled = p.width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)

	fmt.Fprintf(p.writer, "\r%-14s [%s] %d/%d units %s",
		p.prefix,
		bar,
		p.current,
		p.total,
		FormatDuration(time.Since(p.start)),
	)
}

// FormatBytes converts bytes to human-readable format
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatDuration formats a duration to a human-readable string
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
