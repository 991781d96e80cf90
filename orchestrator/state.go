// Package orchestrator turns a list of prompts into per-row, per-image
// generation tasks and drains them on a single worker under operator
// control (pause, resume, stop, retry), reporting progress to a
// ProgressSink.
//
// State machine:
//
//	Idle --Submit--> Running --Pause--> Paused --Resume--> Running
//	{Running, Paused} --Stop--> Stopping --(in-flight call done)--> Stopped
//
// Stopped ends the run; a new Submit starts a fresh run with an empty queue.
package orchestrator

// RunState is the lifecycle state of the current run.
type RunState int

const (
	StateIdle RunState = iota
	StateRunning
	StatePaused
	StateStopping
	StateStopped
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Active reports whether a run is in progress (Running, Paused or Stopping).
func (s RunState) Active() bool {
	return s == StateRunning || s == StatePaused || s == StateStopping
}

// RowStatus summarizes a row for display.
type RowStatus int

const (
	RowPending RowStatus = iota
	RowInProgress
	RowDone
	RowError
)

func (s RowStatus) String() string {
	switch s {
	case RowPending:
		return "pending"
	case RowInProgress:
		return "in_progress"
	case RowDone:
		return "done"
	case RowError:
		return "error"
	default:
		return "unknown"
	}
}

// RowProgress is the outcome of a row's latest attempt.
type RowProgress struct {
	Row       int
	Prompt    string
	Total     int
	Started   int
	Succeeded int
	Failed    int
	Attempts  int
	Locations []string
	LastError string
}

// Complete reports whether every image of the attempt succeeded or failed.
func (p RowProgress) Complete() bool {
	return p.Succeeded+p.Failed >= p.Total
}

// Status derives the display status of the row.
func (p RowProgress) Status() RowStatus {
	switch {
	case p.Complete() && p.Failed > 0:
		return RowError
	case p.Complete():
		return RowDone
	case p.Started > 0:
		return RowInProgress
	default:
		return RowPending
	}
}
