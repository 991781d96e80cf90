// Package shutdown coordinates interrupt handling for a batch run: the first
// signal stops the run gracefully, a second one exits immediately, and
// registered cleanup runs in priority order.
package shutdown

import (
	"errors"
	"slices"
	"sync"
	"time"
)

var (
	// ErrTrackerClosed is returned when an operation starts after shutdown began.
	ErrTrackerClosed = errors.New("shutdown: operation tracker is closed")

	// ErrWaitTimeout is returned when in-flight operations outlive the timeout.
	ErrWaitTimeout = errors.New("shutdown: operations did not complete in time")
)

// OperationTracker records named in-flight operations so shutdown can wait
// for them and report which ones were still running.
//
// Usage:
//
//	done, ok := tracker.Begin("batch-run")
//	if !ok {
//	    return ErrTrackerClosed
//	}
//	defer done()
type OperationTracker struct {
	mu      sync.Mutex
	running map[uint64]string
	nextID  uint64
	closed  bool
	idle    chan struct{}
}

// NewOperationTracker creates an open tracker.
func NewOperationTracker() *OperationTracker {
	return &OperationTracker{running: make(map[uint64]string)}
}

// Begin registers an operation under name. It reports false once the
// tracker is closed; otherwise the caller must call the returned func
// exactly once. Extra calls are ignored.
func (t *OperationTracker) Begin(name string) (func(), bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, false
	}
	t.nextID++
	id := t.nextID
	t.running[id] = name

	var once sync.Once
	return func() { once.Do(func() { t.finish(id) }) }, true
}

func (t *OperationTracker) finish(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.running, id)
	if len(t.running) == 0 && t.idle != nil {
		close(t.idle)
		t.idle = nil
	}
}

// Wait blocks until no operation is running or timeout elapses.
func (t *OperationTracker) Wait(timeout time.Duration) error {
	t.mu.Lock()
	if len(t.running) == 0 {
		t.mu.Unlock()
		return nil
	}
	if t.idle == nil {
		t.idle = make(chan struct{})
	}
	idle := t.idle
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-idle:
		return nil
	case <-timer.C:
		return ErrWaitTimeout
	}
}

// Close rejects new operations. Running ones continue.
func (t *OperationTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// Active returns the names of running operations, sorted.
func (t *OperationTracker) Active() []string {
	t.mu.Lock()
	names := make([]string, 0, len(t.running))
	for _, name := range t.running {
		names = append(names, name)
	}
	t.mu.Unlock()

	slices.Sort(names)
	return names
}

// ActiveCount returns the number of running operations.
func (t *OperationTracker) ActiveCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(len(t.running))
}

// IsClosed reports whether Close was called.
func (t *OperationTracker) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
