package db

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"batchgen/logging"
	"batchgen/orchestrator"
)

// HistorySink is an orchestrator.ProgressSink that records every image
// outcome of one run and closes the run on completion.
type HistorySink struct {
	repo   *Repository
	runID  string
	logger *logging.Logger

	mu        sync.Mutex
	failed    int
	stopped   bool
	completed bool
}

// NewHistorySink returns a sink writing outcomes for runID.
func NewHistorySink(repo *Repository, runID string, logger *logging.Logger) *HistorySink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HistorySink{
		repo:   repo,
		runID:  runID,
		logger: logger.Named("history").With(zap.String("run_id", runID)),
	}
}

// TaskStarted is not recorded.
func (h *HistorySink) TaskStarted(row int, label string) {}

// TaskSucceeded records a saved image.
func (h *HistorySink) TaskSucceeded(row, image int, location string) {
	h.record(Outcome{RunID: h.runID, Row: row, Image: image, Status: OutcomeSuccess, Location: location})
}

// TaskFailed records a failed image.
func (h *HistorySink) TaskFailed(row, image int, reason string) {
	h.mu.Lock()
	h.failed++
	h.mu.Unlock()
	h.record(Outcome{RunID: h.runID, Row: row, Image: image, Status: OutcomeError, Reason: reason})
}

// MarkStopped makes RunCompleted record the run as stopped.
func (h *HistorySink) MarkStopped() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
}

// RunCompleted sets the run's final status.
func (h *HistorySink) RunCompleted() {
	h.mu.Lock()
	if h.completed {
		h.mu.Unlock()
		return
	}
	h.completed = true
	status := RunCompleted
	switch {
	case h.stopped:
		status = RunStopped
	case h.failed > 0:
		status = RunFailed
	}
	h.mu.Unlock()

	if err := h.repo.CompleteRun(context.Background(), h.runID, status); err != nil {
		h.logger.Warn("failed to complete run record", zap.Error(err))
	}
}

func (h *HistorySink) record(o Outcome) {
	if err := h.repo.RecordOutcome(context.Background(), o); err != nil {
		h.logger.Warn("failed to record outcome",
			zap.Int("row", o.Row),
			zap.Int("image", o.Image),
			zap.Error(err))
	}
}

var _ orchestrator.ProgressSink = (*HistorySink)(nil)
