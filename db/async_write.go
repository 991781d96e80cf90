package db

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"batchgen/logging"
)

// DefaultChannelCapacity is the default buffer size for queued writes.
const DefaultChannelCapacity = 256

// DefaultDrainTimeout bounds how long Close waits for queued writes.
const DefaultDrainTimeout = 30 * time.Second

// WriteOperation is a queued write.
type WriteOperation struct {
	Data      any
	Timestamp time.Time
}

// WriteHandler applies one write. Errors are logged by the writer.
type WriteHandler func(op WriteOperation) error

// AsyncWriter applies writes on a background goroutine so callers on the
// hot path (progress events) never block on SQLite.
type AsyncWriter struct {
	writeChan chan WriteOperation
	handler   WriteHandler
	logger    *logging.Logger
	timeout   time.Duration

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
	failed  int
}

// AsyncWriterConfig holds configuration for the async writer.
type AsyncWriterConfig struct {
	ChannelCapacity int
	DrainTimeout    time.Duration
}

// DefaultAsyncWriterConfig returns the default configuration.
func DefaultAsyncWriterConfig() AsyncWriterConfig {
	return AsyncWriterConfig{
		ChannelCapacity: DefaultChannelCapacity,
		DrainTimeout:    DefaultDrainTimeout,
	}
}

// NewAsyncWriter creates a writer. Call Start before writing.
func NewAsyncWriter(handler WriteHandler, config AsyncWriterConfig, logger *logging.Logger) *AsyncWriter {
	if config.ChannelCapacity <= 0 {
		config.ChannelCapacity = DefaultChannelCapacity
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultDrainTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &AsyncWriter{
		writeChan: make(chan WriteOperation, config.ChannelCapacity),
		handler:   handler,
		logger:    logger.Named("db.writer"),
		timeout:   config.DrainTimeout,
		done:      make(chan struct{}),
	}
}

// Start launches the background goroutine. Extra calls are no-ops.
func (w *AsyncWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started || w.closed {
		return
	}
	w.started = true
	go w.processWrites()
}

func (w *AsyncWriter) processWrites() {
	defer close(w.done)

	for op := range w.writeChan {
		if err := w.handler(op); err != nil {
			w.mu.Lock()
			w.failed++
			w.mu.Unlock()
			w.logger.Warn("history write failed",
				zap.Error(err),
				zap.Duration("queued_for", time.Since(op.Timestamp)))
		}
	}
}

// Write queues data without blocking. It reports false when the buffer is
// full or the writer is closed; the caller then writes synchronously.
func (w *AsyncWriter) Write(data any) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false
	}
	select {
	case w.writeChan <- WriteOperation{Data: data, Timestamp: time.Now()}:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued writes.
func (w *AsyncWriter) Pending() int {
	return len(w.writeChan)
}

// Failed returns how many writes the handler rejected.
func (w *AsyncWriter) Failed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failed
}

// IsStarted reports whether the background goroutine is running.
func (w *AsyncWriter) IsStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started && !w.closed
}

// Close stops accepting writes and waits up to the drain timeout for the
// queue to empty. It reports whether the queue drained in time.
func (w *AsyncWriter) Close() bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return true
	}
	w.closed = true
	started := w.started
	close(w.writeChan)
	w.mu.Unlock()

	if !started {
		return len(w.writeChan) == 0
	}

	select {
	case <-w.done:
		return true
	case <-time.After(w.timeout):
		w.logger.Warn("history writes still pending at shutdown", zap.Int("pending", w.Pending()))
		return false
	}
}
