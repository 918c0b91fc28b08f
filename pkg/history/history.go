// Package history keeps the most recent comparison reports in memory
package history

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheEntropyCollective/asyncdemo/pkg/demo"
)

// ErrNotFound is returned when no report with the requested run id is held
var ErrNotFound = errors.New("report not found")

// Entry is the listing view of a stored report
type Entry struct {
	RunID           string    `json:"runId"`
	RecordedAt      time.Time `json:"recordedAt"`
	OperationCount  int       `json:"operationCount"`
	SynchronousMs   float64   `json:"synchronousMs"`
	AsynchronousMs  float64   `json:"asynchronousMs"`
	DistinctWorkers int       `json:"distinctWorkers"`
}

// Stats tracks store usage
type Stats struct {
	Capacity  int   `json:"capacity"`
	Size      int   `json:"size"`
	Inserts   int64 `json:"inserts"`
	Evictions int64 `json:"evictions"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
}

type record struct {
	entry  Entry
	report *demo.ComparisonReport
}

// Store is a fixed-capacity ring of reports. Once full, each insert evicts
// the oldest report.
type Store struct {
	mutex sync.RWMutex
	ring  []record
	next  int
	size  int
	index map[string]int
	stats Stats
}

// NewStore creates a store holding up to capacity reports
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 20
	}
	return &Store{
		ring:  make([]record, capacity),
		index: make(map[string]int, capacity),
		stats: Stats{Capacity: capacity},
	}
}

// Add stores a finished report and returns its listing entry
func (s *Store) Add(report *demo.ComparisonReport) (Entry, error) {
	if report == nil {
		return Entry{}, errors.New("cannot store a nil report")
	}
	if _, err := uuid.Parse(report.RunID); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		RunID:           report.RunID,
		RecordedAt:      time.Now().UTC(),
		OperationCount:  len(report.Synchronous.Operations),
		SynchronousMs:   report.Synchronous.TotalElapsedMs,
		AsynchronousMs:  report.Asynchronous.TotalElapsedMs,
		DistinctWorkers: len(report.Asynchronous.DistinctWorkerIDs),
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if old, ok := s.index[report.RunID]; ok {
		s.ring[old] = record{entry: entry, report: report}
		return entry, nil
	}

	if s.size == len(s.ring) {
		delete(s.index, s.ring[s.next].entry.RunID)
		s.stats.Evictions++
	} else {
		s.size++
	}
	s.ring[s.next] = record{entry: entry, report: report}
	s.index[report.RunID] = s.next
	s.next = (s.next + 1) % len(s.ring)
	s.stats.Inserts++
	return entry, nil
}

// Get returns the report with the given run id
func (s *Store) Get(runID string) (*demo.ComparisonReport, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	i, ok := s.index[runID]
	if !ok {
		s.stats.Misses++
		return nil, ErrNotFound
	}
	s.stats.Hits++
	return s.ring[i].report, nil
}

// List returns the stored entries, newest first
func (s *Store) List() []Entry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entries := make([]Entry, 0, s.size)
	for i := 1; i <= s.size; i++ {
		pos := (s.next - i + len(s.ring)) % len(s.ring)
		entries = append(entries, s.ring[pos].entry)
	}
	return entries
}

// Len returns the number of stored reports
func (s *Store) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.size
}

// GetStats returns a copy of the store statistics
func (s *Store) GetStats() Stats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	stats := s.stats
	stats.Size = s.size
	return stats
}
