package db

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConnectionConfig(t *testing.T) {
	config := DefaultConnectionConfig("/test/path.db")

	if config.Path != "/test/path.db" {
		t.Errorf("Path = %q, want /test/path.db", config.Path)
	}
	if config.BusyTimeout != 5*time.Second || config.MaxOpenConns != 1 {
		t.Errorf("config = %+v, want 5s busy timeout and one connection", config)
	}

	dsn := config.dsn()
	for _, want := range []string{"file:/test/path.db?", "busy_timeout%285000%29", "journal_mode%28WAL%29", "foreign_keys%28ON%29"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn() = %q, missing %q", dsn, want)
		}
	}
}

func TestNewSQLiteConnection(t *testing.T) {
	if _, err := NewSQLiteConnection(ConnectionConfig{}); !errors.Is(err, ErrNoPath) {
		t.Errorf("NewSQLiteConnection(empty) error = %v, want ErrNoPath", err)
	}

	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := NewSQLiteConnection(DefaultConnectionConfig(path))
	if err != nil {
		t.Fatalf("NewSQLiteConnection() error = %v", err)
	}
	defer conn.Close()

	var timeout int
	if err := conn.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil || timeout != 5000 {
		t.Errorf("busy_timeout = %d, %v, want 5000", timeout, err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}

	var fk int
	if err := conn.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil || fk != 1 {
		t.Errorf("foreign_keys = %d, %v, want 1", fk, err)
	}
}

func TestMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")

	if err := MigrateUpFromPath(path); err != nil {
		t.Fatalf("MigrateUpFromPath() error = %v", err)
	}
	// a second run has nothing to apply
	if err := MigrateUpFromPath(path); err != nil {
		t.Fatalf("MigrateUpFromPath() again error = %v", err)
	}

	conn, err := NewSQLiteConnection(DefaultConnectionConfig(path))
	if err != nil {
		t.Fatal(err)
	}
	version, dirty, err := MigrationVersion(conn)
	if err != nil || version != 2 || dirty {
		t.Errorf("MigrationVersion() = %d, %v, %v, want 2, false, nil", version, dirty, err)
	}

	conn, err = NewSQLiteConnection(DefaultConnectionConfig(path))
	if err != nil {
		t.Fatal(err)
	}
	if err := MigrateDown(conn, -1); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	conn, err = NewSQLiteConnection(DefaultConnectionConfig(path))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'runs'`).Scan(&n); err != nil || n != 0 {
		t.Errorf("runs table after down = %d, %v, want 0", n, err)
	}
}

func TestOpen(t *testing.T) {
	if _, err := Open(""); !errors.Is(err, ErrNoPath) {
		t.Errorf("Open(\"\") error = %v, want ErrNoPath", err)
	}

	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	database, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if database.Path() != path {
		t.Errorf("Path() = %q, want %q", database.Path(), path)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := database.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := database.QueryContext(t.Context(), "SELECT 1"); !errors.Is(err, ErrClosed) {
		t.Errorf("QueryContext() after Close error = %v, want ErrClosed", err)
	}
}
