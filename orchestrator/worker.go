package orchestrator

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"batchgen/logging"
	"batchgen/reference"
)

// work drains the queue until the run stops, or until it is empty when
// exitWhenIdle is set.
func (o *Orchestrator) work(logger *logging.Logger) {
	defer o.finish()

	for {
		task, ok := o.next()
		if !ok {
			break
		}
		if !o.processRow(task, logger) {
			break
		}
		if !o.sleep(o.opts.rowDelay) {
			break
		}
	}
	logger.Info("run finished", zap.Int("failed_rows", len(o.FailedRows())))
}

// next blocks until a row is available and the run is not paused. It
// returns false once stopping, or when the queue is empty and the run ends
// on idle.
func (o *Orchestrator) next() (rowTask, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for {
		switch {
		case o.state == StateStopping:
			return rowTask{}, false
		case o.state == StatePaused:
			o.cond.Wait()
		case len(o.queue) > 0:
			task := o.queue[0]
			o.queue = o.queue[1:]
			return task, true
		case o.opts.exitWhenIdle:
			if !o.autoRetryLocked() {
				return rowTask{}, false
			}
		default:
			o.cond.Wait()
		}
	}
}

// autoRetryLocked re-queues failed rows while retry passes remain and
// reports whether it queued anything. o.mu must be held.
func (o *Orchestrator) autoRetryLocked() bool {
	if o.retryPasses >= o.opts.autoRetryPasses {
		return false
	}
	rows := o.failedRowsLocked()
	if len(rows) == 0 {
		return false
	}
	o.retryPasses++
	o.logger.Info("retrying failed rows",
		zap.String("run_id", o.runID),
		zap.Int("pass", o.retryPasses),
		zap.Int("of", o.opts.autoRetryPasses))
	o.retryLocked(rows)
	return true
}

// awaitRunnable blocks while paused and reports whether work may start.
func (o *Orchestrator) awaitRunnable() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for o.state == StatePaused {
		o.cond.Wait()
	}
	return o.state == StateRunning
}

func (o *Orchestrator) stopping() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateStopping
}

// sleep waits d unless the run is stopped first.
func (o *Orchestrator) sleep(d time.Duration) bool {
	o.mu.Lock()
	stopCh := o.stopCh
	o.mu.Unlock()

	if d <= 0 {
		select {
		case <-stopCh:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stopCh:
		return false
	}
}

// processRow runs every pending image of task in ascending order. It
// returns false when the run is stopping.
func (o *Orchestrator) processRow(task rowTask, runLogger *logging.Logger) bool {
	o.mu.Lock()
	refs := o.refs
	settings := o.settings
	total := o.imagesPerPrompt
	o.mu.Unlock()

	selected := reference.ResolvedOf(reference.Select(task.prompt, refs))
	logger := runLogger.With(zap.Int("row", task.row))
	logger.Debug("row dequeued",
		zap.Int("images", len(task.pending)),
		zap.Int("references", len(selected)))

	for _, idx := range task.pending {
		if !o.awaitRunnable() {
			return false
		}

		o.recordStarted(task)
		o.sink.TaskStarted(task.row, fmt.Sprintf("%d/%d", idx+1, total))

		data, err := o.generate(task.prompt, selected, settings)

		// the result of a call in flight when Stop arrived is dropped
		if o.stopping() {
			logger.Info("result discarded after stop", zap.Int("image", idx))
			return false
		}

		if err == nil {
			var location string
			location, err = o.files.Save(data, FileName(task.row, task.prompt, o.opts.now(), idx))
			if err == nil {
				o.recordSucceeded(task, location)
				o.sink.TaskSucceeded(task.row, idx, location)
				logger.Info("image saved", zap.Int("image", idx), zap.String("location", location))
			}
		}
		if err != nil {
			taskErr := &TaskError{Row: task.row, Image: idx, Reason: ReasonOf(err), Err: err}
			o.recordFailed(task, taskErr.Reason)
			o.sink.TaskFailed(task.row, idx, taskErr.Reason)
			logger.Warn("image failed", zap.Int("image", idx), zap.Error(taskErr))
		}

		if !o.sleep(o.opts.imageDelay) {
			return false
		}
	}
	return true
}

func (o *Orchestrator) generate(prompt string, refs []reference.ResolvedReference, s Settings) ([]byte, error) {
	o.mu.Lock()
	ctx := o.runCtx
	o.mu.Unlock()

	if len(refs) > 0 {
		return o.gen.GenerateConditioned(ctx, prompt, refs, s)
	}
	return o.gen.Generate(ctx, prompt, s)
}

// progressFor returns the progress record of task's attempt, or nil when a
// newer attempt of the row has been queued since. o.mu must be held.
func (o *Orchestrator) progressFor(task rowTask) *RowProgress {
	rp, ok := o.rows[task.row]
	if !ok || rp.Attempts != task.attempt {
		return nil
	}
	return rp
}

func (o *Orchestrator) recordStarted(task rowTask) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rp := o.progressFor(task); rp != nil {
		rp.Started++
	}
}

func (o *Orchestrator) recordSucceeded(task rowTask, location string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rp := o.progressFor(task); rp != nil {
		rp.Succeeded++
		rp.Locations = append(rp.Locations, location)
	}
}

func (o *Orchestrator) recordFailed(task rowTask, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rp := o.progressFor(task); rp != nil {
		rp.Failed++
		rp.LastError = reason
	}
}
