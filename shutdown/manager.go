package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"batchgen/core"
	"batchgen/logging"
)

// Manager ties signal handling to cleanup. The first SIGINT or SIGTERM
// cancels Context and calls the interrupt hook; the second calls the force
// hook, which exits by default.
//
// Usage:
//
//	manager := shutdown.NewManager(logger, shutdown.WithOnInterrupt(func() { orch.Stop() }))
//	manager.Register("history", 10, func(ctx context.Context) error { return writerClose() })
//	manager.Start()
//	defer manager.Shutdown()
type Manager struct {
	logger   *logging.Logger
	timeout  time.Duration
	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *Registry
	signals  *SignalCounter

	onInterrupt func()
	onForce     func()

	sigChan chan os.Signal
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout bounds Shutdown. Default 30s.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithOnInterrupt sets the hook run on the first signal.
func WithOnInterrupt(fn func()) Option {
	return func(m *Manager) {
		m.onInterrupt = fn
	}
}

// WithOnForce replaces the default second-signal exit.
func WithOnForce(fn func()) Option {
	return func(m *Manager) {
		m.onForce = fn
	}
}

// NewManager creates a Manager. Call Start to listen for signals.
func NewManager(logger *logging.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:   logger.Named("shutdown"),
		timeout:  30 * time.Second,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  NewOperationTracker(),
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 2),
		onForce: func() {
			logger.Sync()
			os.Exit(core.ExitCodeSIGINT)
		},
	}
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("second interrupt, exiting immediately")
		if m.onForce != nil {
			m.onForce()
		}
	})
	return m
}

// Context is cancelled on the first signal.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup step. Lower priority runs first.
func (m *Manager) Register(name string, priority int, fn Func) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("registered shutdown step",
		zap.String("name", name),
		zap.Int("priority", priority))
}

// Start listens for SIGINT and SIGTERM. Extra calls are no-ops.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.shutdown {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			m.Interrupt(sig)
		}
	}()
}

// Interrupt handles one signal as if it came from the OS.
func (m *Manager) Interrupt(sig os.Signal) {
	if m.signals.Increment() != 1 {
		return
	}
	m.logger.Info("interrupt received, stopping after the current image",
		zap.String("signal", sig.String()))
	m.cancel()
	if m.onInterrupt != nil {
		m.onInterrupt()
	}
}

// Interrupted reports whether a signal arrived.
func (m *Manager) Interrupted() bool {
	return m.signals.Count() > 0
}

// Shutdown rejects new operations, waits for running ones, then runs the
// cleanup steps with whatever time is left. Later calls return nil.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	started := m.started
	m.mu.Unlock()

	start := time.Now()
	m.tracker.Close()
	if active := m.tracker.Active(); len(active) > 0 {
		m.logger.Info("waiting for in-flight operations", zap.Strings("operations", active))
	}
	if err := m.tracker.Wait(m.timeout); err != nil {
		m.logger.Warn("in-flight operations still running",
			zap.Strings("operations", m.tracker.Active()))
	}

	remaining := m.timeout - time.Since(start)
	if remaining < time.Second {
		remaining = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	errs := m.registry.Shutdown(ctx)
	for _, err := range errs {
		m.logger.Error("shutdown step failed", zap.Error(err))
	}

	if started {
		signal.Stop(m.sigChan)
		close(m.sigChan)
	}
	m.cancel()

	m.logger.Debug("shutdown complete",
		zap.Duration("duration", time.Since(start)),
		zap.Int("errors", len(errs)))
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %d step(s) failed: %w", len(errs), errs[0])
	}
	return nil
}

// WrapOperation runs fn as a tracked operation. It returns ErrTrackerClosed
// once shutdown has begun.
func (m *Manager) WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	done, ok := m.tracker.Begin(name)
	if !ok {
		m.logger.Debug("operation rejected during shutdown", zap.String("operation", name))
		return ErrTrackerClosed
	}
	defer done()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// ActiveOperations returns the number of running wrapped operations.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.ActiveCount()
}

// IsShuttingDown reports whether Shutdown was called.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// RegisteredSteps lists cleanup steps in execution order.
func (m *Manager) RegisteredSteps() []string {
	return m.registry.Names()
}
