package partuploader

import (
	"sync"
	"time"
)

// Stats tracks finished parts for progress reporting.
type Stats struct {
	sum           time.Duration
	bytes         int64
	finishedParts int64
	mu            sync.Mutex
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// Update records a successful part upload.
func (s *Stats) Update(d time.Duration, bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += d
	s.bytes += bytes
	s.finishedParts++
}

// Average returns the average upload duration of finished parts.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finishedParts == 0 {
		return 0
	}
	return s.sum / time.Duration(s.finishedParts)
}

// FinishedCount ...
func (s *Stats) FinishedCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedParts
}

// Bytes returns the number of bytes uploaded so far.
func (s *Stats) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}
