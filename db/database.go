package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	// ErrNoPath is returned when no database path is configured.
	ErrNoPath = errors.New("db: database path is required")

	// ErrClosed is returned by calls on a closed Database.
	ErrClosed = errors.New("db: database is closed")

	// ErrRunNotFound is returned for an unknown run id.
	ErrRunNotFound = errors.New("db: run not found")
)

// Database owns the SQLite connection used for run history.
//
// Usage:
//
//	database, err := db.Open("batchgen.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
//	repo := db.NewRepository(database, nil)
type Database struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open creates path and its directory if needed, applies pending
// migrations, and returns the open database.
func Open(path string) (*Database, error) {
	return OpenWithConfig(DefaultConnectionConfig(path))
}

// OpenWithConfig is Open with explicit connection settings.
func OpenWithConfig(config ConnectionConfig) (*Database, error) {
	if config.Path == "" {
		return nil, ErrNoPath
	}

	if dir := filepath.Dir(config.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("db: create directory %s: %w", dir, err)
		}
	}

	// golang-migrate closes the connection it is given
	if err := MigrateUpFromPath(config.Path); err != nil {
		return nil, err
	}

	conn, err := NewSQLiteConnection(config)
	if err != nil {
		return nil, err
	}
	return &Database{db: conn, path: config.Path}, nil
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Close closes the connection. Further calls return ErrClosed.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	if err != nil {
		return fmt.Errorf("db: close: %w", err)
	}
	return nil
}

// Ping verifies the connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return ErrClosed
	}
	return d.db.PingContext(ctx)
}

// ExecContext runs a statement that returns no rows.
func (d *Database) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, ErrClosed
	}
	return d.db.ExecContext(ctx, query, args...)
}

// QueryContext runs a query that returns rows.
func (d *Database) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, ErrClosed
	}
	return d.db.QueryContext(ctx, query, args...)
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (d *Database) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return ErrClosed
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db: begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db: commit: %w", err)
	}
	return nil
}
