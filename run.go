package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"batchgen/core"
	"batchgen/db"
	"batchgen/imagegen"
	"batchgen/metrics"
	"batchgen/orchestrator"
	"batchgen/preflight"
	"batchgen/progress"
	"batchgen/prompts"
	"batchgen/reference"
	"batchgen/shutdown"
)

// previewRows is how many prompts get their reference selection printed
// before a run.
const previewRows = 3

// runOptions are the flag overrides of run and retry.
type runOptions struct {
	PromptsFile string
	RefsFile    string
	Images      int
	Ratio       string
	OutDir      string
	Backend     string
	NoPreview   bool
	RetryFailed int // extra passes over failed rows before the run ends

	// set by retry
	prompts     []string
	only        []int
	parentRunID string
}

// applyTo returns a copy of cfg with the overrides applied.
func (o runOptions) applyTo(cfg *core.Config) *core.Config {
	c := *cfg
	if o.Backend != "" {
		c.Backend = strings.ToLower(o.Backend)
	}
	if o.Images != 0 {
		c.ImagesPerPrompt = o.Images
	}
	if o.Ratio != "" {
		if enum, ok := core.AspectRatioFor(o.Ratio); ok {
			c.AspectRatio = enum
		} else {
			c.AspectRatio = o.Ratio
		}
	}
	if o.OutDir != "" {
		c.OutputDir = o.OutDir
	}
	return &c
}

var errInterrupted = errors.New("run interrupted")

// runBatch drives one run from preflight to exit code.
func (a *app) runBatch(ctx context.Context, opts runOptions) error {
	cfg := opts.applyTo(a.cfg)
	logger := a.logger

	checks := preflight.Checks(preflight.Inputs{
		Config:       cfg,
		PromptsFile:  opts.PromptsFile,
		ManifestFile: opts.RefsFile,
	})
	result := preflight.NewSuite("batchgen preflight").
		WithOutput(a.stdout).
		WithQuick(true).
		WithFailFast(true).
		Run(ctx, checks)
	if !result.Success {
		errs := result.Errors()
		if _, ok := core.IsConfigError(errs[0]); ok {
			return errs[0]
		}
		return withExitCode(core.ExitCodeConfig, errs[0])
	}

	promptList := opts.prompts
	if promptList == nil {
		var err error
		if promptList, err = prompts.Load(opts.PromptsFile); err != nil {
			return err
		}
	}

	var catalog *reference.Catalog
	if opts.RefsFile != "" {
		if _, err := os.Stat(opts.RefsFile); err == nil {
			if catalog, err = reference.LoadManifest(opts.RefsFile); err != nil {
				return err
			}
		}
	}

	be, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}
	authMsg, err := be.authenticate(ctx)
	if err != nil {
		return withExitCode(core.ExitCodeAuth, fmt.Errorf("authentication failed: %w", err))
	}
	logger.Info("authenticated", zap.String("backend", be.name), zap.String("detail", authMsg))

	if catalog != nil && !opts.NoPreview {
		printPreview(a.stdout, reference.Preview(promptList, catalog.Snapshot(), previewRows))
	}

	files, err := imagegen.NewDiskSink(cfg.OutputDir)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	runLogger := logger.With(zap.String("run_id", runID))

	var cleanup []func(*shutdown.Manager)
	sinks := []orchestrator.ProgressSink{progress.NewConsole(a.stdout, promptList)}

	var history *db.HistorySink
	if cfg.HistoryDB != "" {
		database, err := db.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		repo := db.NewRepository(database, nil)
		writer := repo.StartAsyncWrites(db.DefaultAsyncWriterConfig(), logger)

		queued := make(map[int]bool, len(opts.only))
		for _, r := range opts.only {
			queued[r] = true
		}
		rows := make([]db.RowRecord, len(promptList))
		for i, p := range promptList {
			rows[i] = db.RowRecord{Row: i, Prompt: p, Skipped: len(queued) > 0 && !queued[i]}
		}
		run := db.Run{
			ID:              runID,
			ParentRunID:     opts.parentRunID,
			Backend:         be.name,
			PromptsFile:     opts.PromptsFile,
			ImagesPerPrompt: cfg.ImagesPerPrompt,
			AspectRatio:     cfg.AspectRatio,
		}
		if err := repo.CreateRun(ctx, run, rows); err != nil {
			writer.Close()
			database.Close()
			return err
		}

		history = db.NewHistorySink(repo, runID, logger)
		sinks = append(sinks, history)
		cleanup = append(cleanup, func(m *shutdown.Manager) {
			m.Register("history-writer", 10, func(context.Context) error {
				if !writer.Close() {
					return fmt.Errorf("%d history writes not flushed", writer.Pending())
				}
				return nil
			})
			m.Register("history-db", 20, func(context.Context) error { return database.Close() })
		})
	}

	store := metrics.NewStore(256)
	collector := metrics.NewCollector()
	sinks = append(sinks, metrics.NewSink(runID, store, collector))
	if cfg.MetricsAddr != "" {
		srv, err := metrics.Listen(cfg.MetricsAddr, collector, logger)
		if err != nil {
			runLogger.Warn("metrics endpoint disabled", zap.Error(err))
		} else {
			go func() {
				if err := srv.Serve(); err != nil {
					runLogger.Warn("metrics endpoint stopped", zap.Error(err))
				}
			}()
			cleanup = append(cleanup, func(m *shutdown.Manager) {
				m.Register("metrics-server", 20, srv.Shutdown)
			})
		}
	}

	orch := orchestrator.New(be.gen, be.upload, files, progress.NewMulti(sinks...), be.creds, logger,
		orchestrator.WithExitWhenIdle(),
		orchestrator.WithAutoRetry(opts.RetryFailed),
		orchestrator.WithFailAllOnDependencyError(cfg.FailAllOnDependencyError),
		orchestrator.WithImageDelay(cfg.ImageDelay),
		orchestrator.WithRowDelay(cfg.RowDelay),
		orchestrator.WithUploadConcurrency(cfg.UploadConcurrency))

	manager := shutdown.NewManager(logger,
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithOnInterrupt(func() {
			if history != nil {
				history.MarkStopped()
			}
			fmt.Fprintln(a.stdout, "\nStopping after the current image. Press Ctrl+C again to exit now.")
			if err := orch.Stop(); err != nil && !errors.Is(err, orchestrator.ErrRunNotActive) {
				runLogger.Warn("stop failed", zap.Error(err))
			}
		}))
	for _, register := range cleanup {
		register(manager)
	}
	if catalog != nil {
		manager.Register("manifest", 15, func(context.Context) error {
			return reference.SaveManifest(opts.RefsFile, catalog)
		})
	}
	manager.Register("partial-files", 30, shutdown.CleanupPartials(logger, cfg.OutputDir))
	manager.Start()
	defer func() {
		if err := manager.Shutdown(); err != nil {
			runLogger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	settings := orchestrator.Settings{
		AspectRatio:    cfg.AspectRatio,
		Model:          cfg.ImageModel,
		SingleRefModel: cfg.SingleRefModel,
		MultiRefModel:  cfg.MultiRefModel,
	}
	if _, err := orch.Submit(ctx, orchestrator.SubmitRequest{
		RunID:           runID,
		Prompts:         promptList,
		ImagesPerPrompt: cfg.ImagesPerPrompt,
		Settings:        settings,
		Catalog:         catalog,
		Only:            opts.only,
	}); err != nil {
		var depErr *orchestrator.DependencyError
		if errors.As(err, &depErr) {
			return withExitCode(core.ExitCodeRowsFailed, err)
		}
		return err
	}

	err = manager.WrapOperation(ctx, "batch-run", func(context.Context) error {
		// Stop drains the run, so Wait is not tied to the interrupt
		return orch.Wait(context.Background())
	})
	if err != nil {
		return err
	}

	tm := store.TaskMetrics()
	runLogger.Info("run finished",
		zap.Int64("images", tm.TotalProcessed),
		zap.Int64("succeeded", tm.TotalSuccess),
		zap.Int64("failed", tm.TotalErrors),
		zap.Float64("success_rate", tm.SuccessRate),
		zap.Duration("avg_duration", tm.AvgDuration))

	abs, _ := filepath.Abs(cfg.OutputDir)
	fmt.Fprintf(a.stdout, "Images saved to %s\n", abs)
	fmt.Fprintf(a.stdout, "Run id: %s\n", runID)

	if manager.Interrupted() {
		return withExitCode(core.ExitCodeSIGINT, errInterrupted)
	}
	if failed := orch.FailedRows(); len(failed) > 0 {
		return withExitCode(core.ExitCodeRowsFailed,
			fmt.Errorf("%d row(s) had failed images; retry with: batchgen retry --run %s", len(failed), runID))
	}
	return nil
}

// retryRun starts a new run holding only the unfinished rows of runID.
// Rows keep their indices so file names line up with the first run.
func (a *app) retryRun(ctx context.Context, runID string, opts runOptions) error {
	if a.cfg.HistoryDB == "" {
		return core.ErrMissingConfig("HISTORY_DB")
	}
	database, err := db.Open(a.cfg.HistoryDB)
	if err != nil {
		return err
	}
	repo := db.NewRepository(database, nil)

	prev, err := repo.GetRun(ctx, runID)
	if err != nil {
		database.Close()
		return err
	}
	rows, err := repo.Rows(ctx, runID)
	if err != nil {
		database.Close()
		return err
	}
	retryable, err := repo.RetryableRows(ctx, runID)
	database.Close()
	if err != nil {
		return err
	}

	if len(retryable) == 0 {
		fmt.Fprintf(a.stdout, "Run %s has no failed rows.\n", runID)
		return nil
	}

	opts.prompts = make([]string, len(rows))
	for _, r := range rows {
		if r.Row >= 0 && r.Row < len(opts.prompts) {
			opts.prompts[r.Row] = r.Prompt
		}
	}
	opts.only = make([]int, len(retryable))
	for i, r := range retryable {
		opts.only[i] = r.Row
	}
	opts.parentRunID = runID
	opts.PromptsFile = prev.PromptsFile
	if opts.Images == 0 {
		opts.Images = prev.ImagesPerPrompt
	}
	if opts.Backend == "" {
		opts.Backend = prev.Backend
	}
	if opts.Ratio == "" {
		opts.Ratio = prev.AspectRatio
	}

	fmt.Fprintf(a.stdout, "Retrying %d of %d row(s) from run %s\n", len(opts.only), len(rows), runID)
	a.logger.Info("retrying run",
		zap.String("parent_run_id", runID),
		zap.Ints("rows", opts.only))

	// the original prompt file may have changed or moved; rows come from history
	if preflight.CheckFileExists(opts.PromptsFile) != nil {
		opts.PromptsFile = ""
	}
	return a.runBatch(ctx, opts)
}

func printPreview(w io.Writer, rows []reference.PreviewRow) {
	if len(rows) == 0 {
		return
	}
	title := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)

	title.Fprintln(w, "Reference selection preview")
	for i, r := range rows {
		fmt.Fprintf(w, "  %d. %s\n", i+1, r.Prompt)
		if len(r.Selected) == 0 {
			dim.Fprintln(w, "     (no references)")
			continue
		}
		labels := make([]string, len(r.Selected))
		for j, e := range r.Selected {
			labels[j] = e.Label()
		}
		dim.Fprintf(w, "     → %s\n", strings.Join(labels, ", "))
	}
	fmt.Fprintln(w)
}
