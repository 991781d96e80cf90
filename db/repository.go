package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"batchgen/logging"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "completed_with_errors"
	RunStopped   = "stopped"
)

// Outcome statuses.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Run is a row of the runs table.
type Run struct {
	ID              string
	ParentRunID     string // run this one retries, if any
	Backend         string
	PromptsFile     string
	ImagesPerPrompt int
	AspectRatio     string
	Status          string
	CreatedAt       time.Time
	CompletedAt     time.Time // zero while running
}

// RunSummary is a Run with its image outcome counts.
type RunSummary struct {
	Run
	Rows      int
	Succeeded int
	Failed    int
}

// RowRecord is one prompt of a run, keyed by its row index. A retry run
// stores every prompt of its parent so row indices stay stable, but marks
// the rows it did not queue as Skipped.
type RowRecord struct {
	Row     int
	Prompt  string
	Skipped bool
}

// Outcome is the result of one image of one row.
type Outcome struct {
	RunID     string
	Row       int
	Image     int
	Status    string
	Location  string
	Reason    string
	CreatedAt time.Time
}

// Repository reads and writes run history. Outcome writes go through the
// AsyncWriter when one is running, so progress events never wait on disk.
type Repository struct {
	db     *Database
	writer *AsyncWriter
	now    func() time.Time
}

// NewRepository creates a Repository. writer may be nil for synchronous
// writes.
func NewRepository(db *Database, writer *AsyncWriter) *Repository {
	return &Repository{db: db, writer: writer, now: time.Now}
}

// StartAsyncWrites routes outcome writes through a started AsyncWriter and
// returns it. The caller closes the writer at shutdown.
func (r *Repository) StartAsyncWrites(config AsyncWriterConfig, logger *logging.Logger) *AsyncWriter {
	w := NewAsyncWriter(r.WriteHandler(), config, logger)
	w.Start()
	r.writer = w
	return w
}

// CreateRun records a new run and its prompts in one transaction.
func (r *Repository) CreateRun(ctx context.Context, run Run, rows []RowRecord) error {
	if run.ID == "" {
		return errors.New("db: run id is required")
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = r.now()
	}

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, parent_run_id, backend, prompts_file,
				images_per_prompt, aspect_ratio, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, nullString(run.ParentRunID), run.Backend, run.PromptsFile,
			run.ImagesPerPrompt, run.AspectRatio, run.Status, run.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("db: insert run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_rows (run_id, row_index, prompt, skipped) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("db: prepare row insert: %w", err)
		}
		defer stmt.Close()

		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, run.ID, row.Row, row.Prompt, row.Skipped); err != nil {
				return fmt.Errorf("db: insert row %d: %w", row.Row, err)
			}
		}
		return nil
	})
}

// CompleteRun sets the final status and completion time.
func (r *Repository) CompleteRun(ctx context.Context, runID, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ? WHERE id = ?`,
		status, r.now().UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("db: complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// RecordOutcome stores one image outcome, queued when the async writer is
// running and written directly otherwise.
func (r *Repository) RecordOutcome(ctx context.Context, o Outcome) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = r.now()
	}
	op := insertOp{
		query: `
			INSERT INTO image_outcomes (run_id, row_index, image_index, status, location, reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		args: []any{o.RunID, o.Row, o.Image, o.Status, nullString(o.Location), nullString(o.Reason), o.CreatedAt.UnixMilli()},
	}

	if r.writer != nil && r.writer.IsStarted() && r.writer.Write(op) {
		return nil
	}
	// channel full or no writer: write synchronously
	if _, err := r.db.ExecContext(ctx, op.query, op.args...); err != nil {
		return fmt.Errorf("db: insert outcome: %w", err)
	}
	return nil
}

// GetRun returns one run with its counts.
func (r *Repository) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	runs, err := r.querySummaries(ctx, `WHERE r.id = ?`, runID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return &runs[0], nil
}

// RecentRuns returns up to limit runs, newest first.
func (r *Repository) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.querySummaries(ctx, `ORDER BY r.created_at DESC, r.id LIMIT ?`, limit)
}

func (r *Repository) querySummaries(ctx context.Context, tail string, args ...any) ([]RunSummary, error) {
	query := `
		SELECT r.id, COALESCE(r.parent_run_id, ''), r.backend, r.prompts_file,
			r.images_per_prompt, r.aspect_ratio, r.status, r.created_at,
			COALESCE(r.completed_at, 0),
			(SELECT COUNT(*) FROM run_rows rr WHERE rr.run_id = r.id AND rr.skipped = 0),
			(SELECT COUNT(*) FROM image_outcomes o WHERE o.run_id = r.id AND o.status = 'success'),
			(SELECT COUNT(*) FROM image_outcomes o WHERE o.run_id = r.id AND o.status = 'error')
		FROM runs r ` + tail

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db: query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			s                  RunSummary
			created, completed int64
		)
		if err := rows.Scan(&s.ID, &s.ParentRunID, &s.Backend, &s.PromptsFile,
			&s.ImagesPerPrompt, &s.AspectRatio, &s.Status, &created, &completed,
			&s.Rows, &s.Succeeded, &s.Failed); err != nil {
			return nil, fmt.Errorf("db: scan run: %w", err)
		}
		s.CreatedAt = time.UnixMilli(created)
		if completed > 0 {
			s.CompletedAt = time.UnixMilli(completed)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: iterate runs: %w", err)
	}
	return out, nil
}

// Rows returns a run's prompts ordered by row index, skipped ones included.
func (r *Repository) Rows(ctx context.Context, runID string) ([]RowRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT row_index, prompt, skipped FROM run_rows WHERE run_id = ? ORDER BY row_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("db: query rows: %w", err)
	}
	defer rows.Close()

	var out []RowRecord
	for rows.Next() {
		var rec RowRecord
		if err := rows.Scan(&rec.Row, &rec.Prompt, &rec.Skipped); err != nil {
			return nil, fmt.Errorf("db: scan row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: iterate rows: %w", err)
	}
	return out, nil
}

// Outcomes returns every image outcome of a run in insertion order.
func (r *Repository) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, row_index, image_index, status, COALESCE(location, ''),
			COALESCE(reason, ''), created_at
		FROM image_outcomes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("db: query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o       Outcome
			created int64
		)
		if err := rows.Scan(&o.RunID, &o.Row, &o.Image, &o.Status, &o.Location, &o.Reason, &created); err != nil {
			return nil, fmt.Errorf("db: scan outcome: %w", err)
		}
		o.CreatedAt = time.UnixMilli(created)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: iterate outcomes: %w", err)
	}
	return out, nil
}

// RetryableRows returns the queued rows of a run that did not produce every
// image: rows with a failed image and rows the run never finished. An image
// slot counts as done once any attempt at it succeeded. Skipped rows are
// never retryable.
func (r *Repository) RetryableRows(ctx context.Context, runID string) ([]RowRecord, error) {
	run, err := r.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	all, err := r.Rows(ctx, runID)
	if err != nil {
		return nil, err
	}
	outcomes, err := r.Outcomes(ctx, runID)
	if err != nil {
		return nil, err
	}

	done := make(map[int]map[int]bool)
	for _, o := range outcomes {
		if o.Status != OutcomeSuccess {
			continue
		}
		if done[o.Row] == nil {
			done[o.Row] = make(map[int]bool)
		}
		done[o.Row][o.Image] = true
	}

	var out []RowRecord
	for _, row := range all {
		if !row.Skipped && len(done[row.Row]) < run.ImagesPerPrompt {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out, nil
}

// insertOp is a queued write for the AsyncWriter.
type insertOp struct {
	query string
	args  []any
}

// WriteHandler returns the AsyncWriter handler that applies queued writes.
func (r *Repository) WriteHandler() WriteHandler {
	return func(op WriteOperation) error {
		ins, ok := op.Data.(insertOp)
		if !ok {
			return fmt.Errorf("db: unexpected write operation %T", op.Data)
		}
		_, err := r.db.ExecContext(context.Background(), ins.query, ins.args...)
		return err
	}
}

// nullString stores an empty string as NULL.
func nullString(s string) any {
	if s == "" {
		return sql.NullString{}
	}
	return s
}
