package shutdown

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

// Func is a cleanup step run during shutdown.
type Func func(ctx context.Context) error

type entry struct {
	name     string
	fn       Func
	priority int
}

// Registry holds cleanup steps ordered by priority, lowest first. Steps
// with equal priority run in registration order.
//
// Typical priorities:
//   - 0-9: stop producers (the orchestrator)
//   - 10-19: flush writers (history queue, manifest)
//   - 20-29: close servers and databases
//   - 30+: remove temporary files, sync logs
type Registry struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a step. Registration after Shutdown is ignored.
func (r *Registry) Register(name string, priority int, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.entries = append(r.entries, entry{name: name, fn: fn, priority: priority})
}

func (r *Registry) sorted() []entry {
	out := slices.Clone(r.entries)
	slices.SortStableFunc(out, func(a, b entry) int {
		return cmp.Compare(a.priority, b.priority)
	})
	return out
}

// Shutdown runs every step once, even when earlier ones fail, and returns
// the failures wrapped with the step name.
func (r *Registry) Shutdown(ctx context.Context) []error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	steps := r.sorted()
	r.mu.Unlock()

	var errs []error
	for _, e := range steps {
		if err := e.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errs
}

// Names lists the steps in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	steps := r.sorted()
	names := make([]string, len(steps))
	for i, e := range steps {
		names[i] = e.name
	}
	return names
}

// Count returns the number of registered steps.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
