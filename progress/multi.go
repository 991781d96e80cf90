package progress

import "batchgen/orchestrator"

// Multi forwards every event to each sink in order. nil sinks are dropped.
type Multi []orchestrator.ProgressSink

// NewMulti builds a Multi from the non-nil sinks.
func NewMulti(sinks ...orchestrator.ProgressSink) Multi {
	m := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m Multi) TaskStarted(row int, label string) {
	for _, s := range m {
		s.TaskStarted(row, label)
	}
}

func (m Multi) TaskSucceeded(row, image int, location string) {
	for _, s := range m {
		s.TaskSucceeded(row, image, location)
	}
}

func (m Multi) TaskFailed(row, image int, reason string) {
	for _, s := range m {
		s.TaskFailed(row, image, reason)
	}
}

func (m Multi) RunCompleted() {
	for _, s := range m {
		s.RunCompleted()
	}
}

var _ orchestrator.ProgressSink = Multi(nil)
