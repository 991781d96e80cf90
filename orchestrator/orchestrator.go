package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"batchgen/logging"
	"batchgen/reference"
)

// Default pacing between remote calls.
const (
	DefaultImageDelay = 2 * time.Second
	DefaultRowDelay   = 1 * time.Second
)

type options struct {
	exitWhenIdle      bool
	failAllOnDepError bool
	imageDelay        time.Duration
	rowDelay          time.Duration
	uploadConcurrency int
	autoRetryPasses   int
	now               func() time.Time
}

// Option configures an Orchestrator.
type Option func(*options)

// WithExitWhenIdle ends the run when the queue drains instead of waiting
// for Retry calls until Stop.
func WithExitWhenIdle() Option {
	return func(o *options) { o.exitWhenIdle = true }
}

// WithAutoRetry re-queues the failed rows up to passes times once the queue
// drains, as RetryFailed would. It only matters with WithExitWhenIdle.
func WithAutoRetry(passes int) Option {
	return func(o *options) { o.autoRetryPasses = passes }
}

// WithFailAllOnDependencyError marks every queued row failed when
// reference upload fails, rather than only the first one.
func WithFailAllOnDependencyError(enabled bool) Option {
	return func(o *options) { o.failAllOnDepError = enabled }
}

// WithImageDelay sets the pause after each image.
func WithImageDelay(d time.Duration) Option {
	return func(o *options) { o.imageDelay = d }
}

// WithRowDelay sets the pause after each row.
func WithRowDelay(d time.Duration) Option {
	return func(o *options) { o.rowDelay = d }
}

// WithUploadConcurrency bounds parallel reference uploads.
func WithUploadConcurrency(n int) Option {
	return func(o *options) { o.uploadConcurrency = n }
}

// WithClock overrides the time source used for file names.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// rowTask is one prompt's pending work. Once dequeued it belongs to the
// worker.
type rowTask struct {
	row     int
	attempt int
	prompt  string
	pending []int
}

// SubmitRequest describes a run.
type SubmitRequest struct {
	// RunID is generated when empty.
	RunID           string
	Prompts         []string
	ImagesPerPrompt int
	Settings        Settings
	// Catalog may be nil for unconditioned runs. Asset ids obtained during
	// the run are written back into it.
	Catalog *reference.Catalog
	// Only, when non-empty, limits the run to these row indices. Row
	// indices still count every non-blank prompt.
	Only []int
}

// Orchestrator owns one run at a time.
type Orchestrator struct {
	gen      GenerationCapability
	pipeline *reference.Pipeline
	files    FileSink
	sink     ProgressSink
	creds    CredentialSource
	logger   *logging.Logger
	opts     options

	mu              sync.Mutex
	cond            *sync.Cond
	state           RunState
	runID           string
	queue           []rowTask
	prompts         map[int]string
	rows            map[int]*RowProgress
	imagesPerPrompt int
	retryPasses     int
	settings        Settings
	refs            []reference.Entry
	runCtx          context.Context
	stopCh          chan struct{}
	done            chan struct{}
}

// New creates an idle Orchestrator. upload may be nil when runs never carry
// references; sink may be nil to discard events.
func New(gen GenerationCapability, upload reference.UploadCapability, files FileSink, sink ProgressSink,
	creds CredentialSource, logger *logging.Logger, opts ...Option) *Orchestrator {
	o := options{
		imageDelay:        DefaultImageDelay,
		rowDelay:          DefaultRowDelay,
		uploadConcurrency: 1,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if sink == nil {
		sink = NopSink{}
	}
	if upload == nil {
		upload = noUploader{}
	}

	done := make(chan struct{})
	close(done)

	orch := &Orchestrator{
		gen:      gen,
		pipeline: reference.NewPipeline(upload, logger, reference.WithConcurrency(o.uploadConcurrency)),
		files:    files,
		sink:     sink,
		creds:    creds,
		logger:   logger.Named("orchestrator"),
		opts:     o,
		state:    StateIdle,
		done:     done,
	}
	orch.cond = sync.NewCond(&orch.mu)
	return orch
}

type noUploader struct{}

func (noUploader) Upload(context.Context, string, reference.Category) (string, string, error) {
	return "", "", ErrUploadUnavailable
}

// Submit validates the request, resolves references and starts the worker.
// Reference upload happens before Submit returns; if it fails the run has
// already completed when Submit returns the *DependencyError. ctx bounds
// the uploads only; generation calls are not cancelled by it.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	rows := buildRows(req.Prompts)
	if len(rows) == 0 {
		return "", &ValidationError{Reason: ErrNoPrompts}
	}
	if o.creds == nil || strings.TrimSpace(o.creds.AccessToken()) == "" {
		return "", &ValidationError{Reason: ErrNotAuthenticated}
	}
	if req.ImagesPerPrompt < 1 {
		return "", &ValidationError{Reason: ErrInvalidImageCount}
	}

	o.mu.Lock()
	if o.state.Active() {
		o.mu.Unlock()
		return "", ErrRunInProgress
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	o.runID = runID
	o.imagesPerPrompt = req.ImagesPerPrompt
	o.retryPasses = 0
	o.settings = req.Settings
	o.refs = nil
	o.prompts = make(map[int]string, len(rows))
	o.rows = make(map[int]*RowProgress)
	o.queue = o.queue[:0]
	o.runCtx = context.WithoutCancel(ctx)
	o.stopCh = make(chan struct{})
	o.done = make(chan struct{})
	o.state = StateRunning

	only := make(map[int]bool, len(req.Only))
	for _, r := range req.Only {
		only[r] = true
	}
	for i, p := range rows {
		o.prompts[i] = p
		if len(only) > 0 && !only[i] {
			continue
		}
		o.enqueueLocked(i)
	}
	queued := len(o.queue)
	o.mu.Unlock()

	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("run submitted",
		zap.Int("rows", queued),
		zap.Int("images_per_prompt", req.ImagesPerPrompt))

	if req.Catalog != nil && req.Catalog.Len() > 0 {
		if _, err := o.pipeline.Resolve(ctx, req.Catalog); err != nil {
			depErr := &DependencyError{Err: err}
			var upErr *reference.UploadError
			if errors.As(err, &upErr) {
				depErr.LocalPath = upErr.LocalPath
			}
			logger.Error("reference resolution failed", zap.Error(err))
			o.failOnDependency(depErr)
			return runID, depErr
		}
		o.mu.Lock()
		o.refs = req.Catalog.Attached()
		o.mu.Unlock()
	}

	go o.work(logger)
	return runID, nil
}

func buildRows(prompts []string) []string {
	rows := make([]string, 0, len(prompts))
	for _, p := range prompts {
		if p = strings.TrimSpace(p); p != "" {
			rows = append(rows, p)
		}
	}
	return rows
}

// enqueueLocked appends a fresh attempt for row. o.mu must be held.
func (o *Orchestrator) enqueueLocked(row int) {
	pending := make([]int, o.imagesPerPrompt)
	for i := range pending {
		pending[i] = i
	}
	attempt := 1
	if prev, ok := o.rows[row]; ok {
		attempt = prev.Attempts + 1
	}
	o.rows[row] = &RowProgress{
		Row:      row,
		Prompt:   o.prompts[row],
		Total:    o.imagesPerPrompt,
		Attempts: attempt,
	}
	o.queue = append(o.queue, rowTask{row: row, attempt: attempt, prompt: o.prompts[row], pending: pending})
}

// failOnDependency reports the dependency failure and ends the run. Rows
// not marked failed stay queued and are dropped by the next Submit.
func (o *Orchestrator) failOnDependency(depErr *DependencyError) {
	reason := depErr.ShortReason()

	o.mu.Lock()
	var failed []int
	if len(o.queue) > 0 {
		failed = append(failed, o.queue[0].row)
		if o.opts.failAllOnDepError {
			for _, t := range o.queue[1:] {
				failed = append(failed, t.row)
			}
		}
	}
	for _, row := range failed {
		rp := o.rows[row]
		rp.Failed = rp.Total
		rp.LastError = reason
	}
	if o.opts.failAllOnDepError {
		o.queue = o.queue[:0]
	} else if len(o.queue) > 0 {
		o.queue = o.queue[1:]
	}
	o.mu.Unlock()

	for _, row := range failed {
		o.sink.TaskFailed(row, 0, reason)
	}
	o.finish()
}

// finish moves the run to Stopped and announces completion.
func (o *Orchestrator) finish() {
	o.mu.Lock()
	o.state = StateStopped
	done := o.done
	o.cond.Broadcast()
	o.mu.Unlock()

	o.sink.RunCompleted()
	close(done)
}

// Pause stops new calls from starting. An in-flight call completes.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case StateRunning:
		o.state = StatePaused
		o.logger.Info("run paused", zap.String("run_id", o.runID))
		return nil
	case StatePaused:
		return nil
	default:
		return ErrRunNotActive
	}
}

// Resume lets a paused run continue.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case StatePaused:
		o.state = StateRunning
		o.cond.Broadcast()
		o.logger.Info("run resumed", zap.String("run_id", o.runID))
		return nil
	case StateRunning:
		return nil
	default:
		return ErrRunNotActive
	}
}

// Stop requests the run to end. No new call starts; the result of an
// in-flight call is discarded.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case StateRunning, StatePaused:
		o.state = StateStopping
		close(o.stopCh)
		o.cond.Broadcast()
		o.logger.Info("run stopping", zap.String("run_id", o.runID))
		return nil
	case StateStopping:
		return nil
	default:
		return ErrRunNotActive
	}
}

// Retry appends a fresh attempt of each row, covering all of its images, to
// the back of the queue. Files saved by earlier attempts are kept.
func (o *Orchestrator) Retry(rows ...int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateRunning && o.state != StatePaused {
		return ErrRunNotActive
	}
	for _, row := range rows {
		if _, ok := o.prompts[row]; !ok {
			return fmt.Errorf("orchestrator: unknown row %d", row)
		}
	}
	o.retryLocked(rows)
	return nil
}

// retryLocked enqueues rows and wakes the worker. o.mu must be held.
func (o *Orchestrator) retryLocked(rows []int) {
	for _, row := range rows {
		o.enqueueLocked(row)
	}
	o.cond.Broadcast()
	o.logger.Info("rows re-queued", zap.String("run_id", o.runID), zap.Ints("rows", rows))
}

// RetryFailed re-queues every row whose latest attempt has a failed image
// and returns those rows.
func (o *Orchestrator) RetryFailed() ([]int, error) {
	rows := o.FailedRows()
	if len(rows) == 0 {
		return nil, nil
	}
	if err := o.Retry(rows...); err != nil {
		return nil, err
	}
	return rows, nil
}

// State returns the current run state.
func (o *Orchestrator) State() RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// RunID returns the id of the current or last run.
func (o *Orchestrator) RunID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runID
}

// Rows returns the progress of every queued or attempted row, by row index.
func (o *Orchestrator) Rows() []RowProgress {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]RowProgress, 0, len(o.rows))
	for _, rp := range o.rows {
		cp := *rp
		cp.Locations = append([]string(nil), rp.Locations...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out
}

// FailedRows returns rows whose latest attempt has at least one failed
// image, ascending.
func (o *Orchestrator) FailedRows() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failedRowsLocked()
}

func (o *Orchestrator) failedRowsLocked() []int {
	var rows []int
	for row, rp := range o.rows {
		if rp.Failed > 0 {
			rows = append(rows, row)
		}
	}
	sort.Ints(rows)
	return rows
}

// Wait blocks until the current run has completed or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
