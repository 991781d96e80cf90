package metrics

import (
	"sync"
	"time"
)

// Store keeps recent task records in a ring buffer plus running totals.
// It is safe for concurrent use.
//
// Usage:
//
//	store := NewStore(100)
//	store.RecordTask(rec)
//	fmt.Println(store.TaskMetrics().SuccessRate)
type Store struct {
	mu sync.RWMutex

	history []TaskRecord
	head    int
	size    int

	total         int64
	success       int64
	errors        int64
	totalDuration time.Duration
	byReason      map[string]int64
}

// NewStore creates a Store keeping the last capacity records.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = 100
	}
	return &Store{
		history:  make([]TaskRecord, capacity),
		byReason: make(map[string]int64),
	}
}

// RecordTask adds a finished task.
func (s *Store) RecordTask(task TaskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[s.head] = task
	s.head = (s.head + 1) % len(s.history)
	if s.size < len(s.history) {
		s.size++
	}

	s.total++
	s.totalDuration += task.Duration
	switch task.Status {
	case TaskStatusSuccess:
		s.success++
	case TaskStatusError:
		s.errors++
		s.byReason[task.Reason]++
	}
}

// TaskMetrics returns the aggregate view.
func (s *Store) TaskMetrics() TaskMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := TaskMetrics{
		TotalProcessed: s.total,
		TotalSuccess:   s.success,
		TotalErrors:    s.errors,
		ErrorsByReason: make(map[string]int64, len(s.byReason)),
	}
	if s.total > 0 {
		m.SuccessRate = float64(s.success) / float64(s.total) * 100
		m.AvgDuration = s.totalDuration / time.Duration(s.total)
	}
	for reason, n := range s.byReason {
		m.ErrorsByReason[reason] = n
	}
	return m
}

// RecentTasks returns up to limit records, oldest first.
func (s *Store) RecentTasks(limit int) []TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.size == 0 {
		return []TaskRecord{}
	}
	if limit > s.size {
		limit = s.size
	}

	n := len(s.history)
	out := make([]TaskRecord, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.history[(s.head-limit+i+n)%n]
	}
	return out
}
