package metrics

import (
	"sync"
	"time"

	"batchgen/orchestrator"
)

// Sink is an orchestrator.ProgressSink feeding a Store and a Collector.
// Either may be nil.
type Sink struct {
	runID     string
	store     *Store
	collector *Collector
	now       func() time.Time

	mu      sync.Mutex
	started map[int]time.Time
}

// NewSink creates a Sink for one run.
func NewSink(runID string, store *Store, collector *Collector) *Sink {
	return &Sink{
		runID:     runID,
		store:     store,
		collector: collector,
		now:       time.Now,
		started:   make(map[int]time.Time),
	}
}

// TaskStarted notes the start time. Images of a row run one after another,
// so the row is enough to key the timer.
func (s *Sink) TaskStarted(row int, _ string) {
	s.mu.Lock()
	s.started[row] = s.now()
	s.mu.Unlock()

	if s.collector != nil {
		s.collector.taskStarted()
	}
}

func (s *Sink) TaskSucceeded(row, image int, _ string) {
	s.finish(row, image, TaskStatusSuccess, "")
}

func (s *Sink) TaskFailed(row, image int, reason string) {
	s.finish(row, image, TaskStatusError, reason)
}

func (s *Sink) RunCompleted() {
	if s.collector != nil {
		s.collector.runCompleted()
	}
}

func (s *Sink) finish(row, image int, status, reason string) {
	end := s.now()

	s.mu.Lock()
	start, ok := s.started[row]
	delete(s.started, row)
	s.mu.Unlock()
	if !ok {
		start = end
	}

	rec := TaskRecord{
		RunID:     s.runID,
		Row:       row,
		Image:     image,
		Status:    status,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Reason:    reason,
	}
	if s.store != nil {
		s.store.RecordTask(rec)
	}
	if s.collector != nil {
		s.collector.taskFinished(rec)
	}
}

var _ orchestrator.ProgressSink = (*Sink)(nil)
