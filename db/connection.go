// Package db stores run history in SQLite: every run, its prompts, and the
// outcome of every image, so failed rows can be re-run later.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// ConnectionConfig holds configuration for SQLite connections.
type ConnectionConfig struct {
	Path string

	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration

	// MaxOpenConns limits the pool. History has a single writer, so 1.
	MaxOpenConns int
}

// DefaultConnectionConfig returns WAL-friendly defaults with a single writer.
func DefaultConnectionConfig(path string) ConnectionConfig {
	return ConnectionConfig{
		Path:         path,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
	}
}

// dsn carries the pragmas in the connection string so the driver applies
// them to every connection it opens.
func (c ConnectionConfig) dsn() string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	return "file:" + c.Path + "?" + q.Encode()
}

// NewSQLiteConnection opens path with WAL journaling and foreign keys on.
//
// Example:
//
//	conn, err := NewSQLiteConnection(DefaultConnectionConfig("batchgen.db"))
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
func NewSQLiteConnection(config ConnectionConfig) (*sql.DB, error) {
	if config.Path == "" {
		return nil, ErrNoPath
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 1
	}

	db, err := sql.Open("sqlite", config.dsn())
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", config.Path, err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("db: open %s: %w", config.Path, err)
	}
	if journalMode != "wal" {
		db.Close()
		return nil, fmt.Errorf("db: WAL mode not enabled, got %s", journalMode)
	}
	return db, nil
}
