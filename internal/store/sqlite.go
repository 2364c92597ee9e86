package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrQuotaExceeded is returned by Set when a value is larger than the
// configured per-value limit.
var ErrQuotaExceeded = errors.New("store: value exceeds quota")

// SQLite is a KV backed by a single SQLite table.
type SQLite struct {
	mu       sync.RWMutex
	db       *sql.DB
	maxValue int
}

// Option configures a SQLite store.
type Option func(*SQLite)

// WithMaxValueSize rejects values larger than n bytes with ErrQuotaExceeded.
// Zero disables the limit.
func WithMaxValueSize(n int) Option {
	return func(s *SQLite) { s.maxValue = n }
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string, opts ...Option) (*SQLite, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a distinct database.
		db.SetMaxOpenConns(1)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s := &SQLite{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection. Later calls return ErrClosed from
// every operation; closing twice is a no-op.
func (s *SQLite) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}

func (s *SQLite) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db, nil
}

// Get returns the value stored under key.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db, err := s.conn()
	if err != nil {
		return nil, false, err
	}
	var value []byte
	err = db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Set inserts or replaces the value stored under key.
func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if s.maxValue > 0 && len(value) > s.maxValue {
		return fmt.Errorf("set %q (%d bytes): %w", key, len(value), ErrQuotaExceeded)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *SQLite) Remove(ctx context.Context, key string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// List returns the entries whose key starts with prefix, sorted by key.
func (s *SQLite) List(ctx context.Context, prefix string) ([]Entry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT key, length(value), updated_at FROM kv
		WHERE substr(key, 1, length(?)) = ?
		ORDER BY key`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Size, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
