package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store configuration constants.
const (
	// dirPermissions is the permission mode for the store directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// busyTimeoutMS is the maximum time to wait for a database lock.
	busyTimeoutMS = 5000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second
)

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errors.New("database: key not found")

// Store is a key/value persistence handle scoped to a single DIAL
// application. Each application that requests persistence gets its own
// SQLite database file (app_<name>.sqlite3) under the data directory.
//
// Thread Safety: all methods are safe for concurrent use; SQLite access is
// serialised through a single connection.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens (or creates) the persistence database for an application.
//
// It creates the data directory if needed, configures WAL mode and a busy
// timeout, and ensures the kv table exists. The schema is a single
// kv(key, value) table, so no migration framework is involved.
func OpenStore(ctx context.Context, dir, appName string) (*Store, error) {
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("app_%s.sqlite3", sanitizeName(appName)))
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL", path, busyTimeoutMS)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path}

	openCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := db.PingContext(openCtx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying store connection: %w", err)
	}

	if _, err := db.ExecContext(openCtx,
		`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("creating kv table: %w", err)
	}

	// Owner read/write only. Ignore error - the file may not exist until
	// the first write on some filesystems.
	_ = os.Chmod(path, filePermissions)

	return s, nil
}

// Get retrieves the value stored under key.
// Returns ErrKeyNotFound if the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading key %q: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("writing key %q: %w", key, err)
	}
	return nil
}

// Delete removes key from the store. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting key %q: %w", key, err)
	}
	return nil
}

// Path returns the filesystem path of the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}

// HealthCheck verifies the store is accessible.
func (s *Store) HealthCheck(ctx context.Context) error {
	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}

// sanitizeName maps an application name to a safe database filename stem.
// Application names come from configuration, but may contain characters that
// are unsafe in filenames.
func sanitizeName(name string) string {
	lower := strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, lower)
}
