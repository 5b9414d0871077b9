// Package history persists enqueue requests in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"
)

const (
	// CurrentSchemaVersion is the current database schema version.
	CurrentSchemaVersion = "1"

	// DefaultLimit is used by Recent when no positive limit is given.
	DefaultLimit = 50
)

// Status is the outcome of an enqueue request.
type Status string

const (
	StatusQueued Status = "queued"
	StatusFailed Status = "failed"
)

// Entry is one enqueue request.
type Entry struct {
	ID          string    `json:"id"`
	Item        string    `json:"item"`
	Reference   string    `json:"reference,omitempty"`
	Resolved    bool      `json:"resolved"`
	Status      Status    `json:"status"`
	Output      string    `json:"output,omitempty"`
	Error       string    `json:"error,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Store is the SQLite-backed enqueue history.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// NewStore creates a store for the database at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Open opens the database and initializes the schema.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", s.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s.db = db

	if err := s.initSchema(); err != nil {
		s.db.Close()
		s.db = nil
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", s.path).Msg("History database opened")
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		item TEXT NOT NULL,
		reference TEXT,
		resolved INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		output TEXT,
		error TEXT,
		requested_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_requested_at ON requests(requested_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	var version string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.Exec(`INSERT INTO meta(key, value) VALUES ('schema_version', ?)`, CurrentSchemaVersion)
		return err
	case err != nil:
		return err
	case version != CurrentSchemaVersion:
		log.Info().
			Str("current", version).
			Str("target", CurrentSchemaVersion).
			Msg("Migrating history schema")
		_, err = s.db.Exec(`UPDATE meta SET value = ? WHERE key = 'schema_version'`, CurrentSchemaVersion)
		return err
	}
	return nil
}

// Record stores e, filling in ID and RequestedAt when empty.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.RequestedAt.IsZero() {
		e.RequestedAt = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return e, fmt.Errorf("history database not open")
	}

	resolved := 0
	if e.Resolved {
		resolved = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests(id, item, reference, resolved, status, output, error, requested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Item, e.Reference, resolved, string(e.Status), e.Output, e.Error, e.RequestedAt.UnixMilli(),
	)
	if err != nil {
		return e, fmt.Errorf("insert history entry: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, fmt.Errorf("history database not open")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item, COALESCE(reference, ''), resolved, status,
		       COALESCE(output, ''), COALESCE(error, ''), requested_at
		FROM requests
		ORDER BY requested_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var resolved int
		var status string
		var at int64
		if err := rows.Scan(&e.ID, &e.Item, &e.Reference, &resolved, &status, &e.Output, &e.Error, &at); err != nil {
			return nil, err
		}
		e.Resolved = resolved != 0
		e.Status = Status(status)
		e.RequestedAt = time.UnixMilli(at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
