package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"metricwatch/internal/models"
)

const (
	// DefaultStoreCapacity bounds the number of samples held in memory.
	DefaultStoreCapacity = 10000
	// MaxQueryResults caps raw range queries; the most recent samples win.
	MaxQueryResults = 1000
)

// MetricsStore is a bounded, insertion-ordered ring buffer of samples.
// Appending to a full store evicts the oldest sample.
type MetricsStore struct {
	mu       sync.RWMutex
	buf      []models.SystemMetricSample
	head     int // index of the oldest sample
	size     int
	capacity int
	version  uint64
	now      func() time.Time
}

// StoreOption configures a MetricsStore.
type StoreOption func(*MetricsStore)

// WithStoreClock overrides the clock used by Prune.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *MetricsStore) {
		s.now = now
	}
}

// NewMetricsStore creates an empty store. A non-positive capacity falls back
// to DefaultStoreCapacity.
func NewMetricsStore(capacity int, opts ...StoreOption) *MetricsStore {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	s := &MetricsStore{
		buf:      make([]models.SystemMetricSample, capacity),
		capacity: capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// at returns the i-th oldest sample. Caller holds the lock.
func (s *MetricsStore) at(i int) *models.SystemMetricSample {
	return &s.buf[(s.head+i)%s.capacity]
}

// Append inserts a sample at the tail, evicting the oldest one when full,
// and returns the sample as stored. Timestamps stay non-decreasing: a sample
// older than the current tail is stamped with the tail's timestamp.
func (s *MetricsStore) Append(sample models.SystemMetricSample) models.SystemMetricSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size > 0 {
		if last := s.at(s.size - 1); sample.Timestamp.Before(last.Timestamp) {
			sample.Timestamp = last.Timestamp
		}
	}

	if s.size == s.capacity {
		s.buf[s.head] = sample
		s.head = (s.head + 1) % s.capacity
	} else {
		s.buf[(s.head+s.size)%s.capacity] = sample
		s.size++
	}
	s.version++

	if s.size > s.capacity {
		panic(fmt.Sprintf("metrics store holds %d samples, capacity is %d", s.size, s.capacity))
	}
	return sample
}

// QueryRange returns samples with timestamp >= cutoff, oldest first, capped
// at MaxQueryResults. When more qualify, only the most recent are returned.
func (s *MetricsStore) QueryRange(cutoff time.Time) []models.SystemMetricSample {
	return s.Select(cutoff, MaxQueryResults)
}

// Select is QueryRange with an explicit limit; limit <= 0 returns every
// qualifying sample.
func (s *MetricsStore) Select(cutoff time.Time, limit int) []models.SystemMetricSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := s.firstAtOrAfter(cutoff)
	if limit > 0 && s.size-start > limit {
		start = s.size - limit
	}

	result := make([]models.SystemMetricSample, 0, s.size-start)
	for i := start; i < s.size; i++ {
		result = append(result, *s.at(i))
	}
	return result
}

// Position returns the index of the oldest sample at or after cutoff together
// with the current version. Equal results mean Select(cutoff, ...) returns the
// same samples.
func (s *MetricsStore) Position(cutoff time.Time) (start int, version uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.firstAtOrAfter(cutoff), s.version
}

// firstAtOrAfter returns the index of the oldest sample with timestamp >= cutoff,
// or s.size when none qualifies. Caller holds the lock.
func (s *MetricsStore) firstAtOrAfter(cutoff time.Time) int {
	return sort.Search(s.size, func(i int) bool {
		return !s.at(i).Timestamp.Before(cutoff)
	})
}

// Prune drops every sample older than now - maxAge and returns how many were removed.
func (s *MetricsStore) Prune(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.firstAtOrAfter(cutoff)
	if removed == 0 {
		return 0
	}
	for i := 0; i < removed; i++ {
		*s.at(i) = models.SystemMetricSample{}
	}
	s.head = (s.head + removed) % s.capacity
	s.size -= removed
	s.version++
	return removed
}

// Latest returns the most recently appended sample.
func (s *MetricsStore) Latest() (models.SystemMetricSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.size == 0 {
		return models.SystemMetricSample{}, false
	}
	return *s.at(s.size - 1), true
}

// Len returns the number of samples currently held.
func (s *MetricsStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *MetricsStore) Capacity() int {
	return s.capacity
}

// Version changes on every mutation.
func (s *MetricsStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
