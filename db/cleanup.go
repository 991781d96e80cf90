package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PruneResult reports what Prune removed.
type PruneResult struct {
	RunsDeleted int64
	Duration    time.Duration
}

// Prune deletes runs created before now minus olderThan. Their rows and
// outcomes go with them through ON DELETE CASCADE. Runs still marked
// running are kept.
//
// Example:
//
//	res, err := database.Prune(ctx, 30*24*time.Hour)
func (d *Database) Prune(ctx context.Context, olderThan time.Duration) (PruneResult, error) {
	start := time.Now()
	if olderThan <= 0 {
		return PruneResult{}, fmt.Errorf("db: prune age must be positive, got %s", olderThan)
	}
	cutoff := start.Add(-olderThan).UnixMilli()

	var result PruneResult
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM runs WHERE created_at < ? AND status <> ?`, cutoff, RunRunning)
		if err != nil {
			return fmt.Errorf("db: delete runs: %w", err)
		}
		result.RunsDeleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return PruneResult{}, err
	}

	result.Duration = time.Since(start)
	return result, nil
}
