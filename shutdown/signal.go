package shutdown

import (
	"sync"
	"sync/atomic"
)

// SignalCounter counts interrupts. Once the count reaches forceAfter,
// onForce runs exactly once, however many more signals arrive.
type SignalCounter struct {
	count      atomic.Int32
	forceAfter int32
	force      sync.Once
	onForce    func()
}

// NewSignalCounter creates a counter. onForce may be nil.
func NewSignalCounter(forceAfter int, onForce func()) *SignalCounter {
	return &SignalCounter{forceAfter: int32(forceAfter), onForce: onForce}
}

// Increment records one signal and returns the new count.
func (s *SignalCounter) Increment() int {
	n := s.count.Add(1)
	if n >= s.forceAfter && s.onForce != nil {
		s.force.Do(s.onForce)
	}
	return int(n)
}

// Count returns the number of signals seen.
func (s *SignalCounter) Count() int {
	return int(s.count.Load())
}
