// Package state persists query history in a SQLite database. The schema
// is managed by embedded goose migrations so upgrades across versions are
// automatic.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Status values recorded per query.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Record is one executed query.
type Record struct {
	ID        string
	SQL       string
	Dialect   string
	Status    string
	Error     string
	Rows      int64
	Duration  time.Duration
	StartedAt time.Time
}

// Store is a SQLite-backed history store.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// New creates an unopened store. A nil logger discards output.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{logger: logger}
}

// Open opens the history database, creating parent directories as needed.
// Use ":memory:" for an in-memory store.
func (s *Store) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("ping history database: %w", err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("history store opened", slog.String("path", path))
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.New().String()
}

// Record inserts one history entry. A zero ID or StartedAt is filled in.
func (s *Store) Record(ctx context.Context, rec *Record) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if rec.ID == "" {
		rec.ID = NewID()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}

	var errMsg *string
	if rec.Error != "" {
		errMsg = &rec.Error
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (id, sql_text, dialect, status, error, row_count, duration_ms, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SQL, rec.Dialect, rec.Status, errMsg,
		rec.Rows, rec.Duration.Milliseconds(), rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("record query: %w", err)
	}
	return nil
}

// Get retrieves one history entry by ID. A unique ID prefix also
// matches, so listings can show shortened identifiers.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, sql_text, dialect, status, error, row_count, duration_ms, started_at
		 FROM history WHERE id = ? OR id LIKE ? || '%'
		 ORDER BY started_at DESC LIMIT 1`, id, id)

	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history entry not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get history entry: %w", err)
	}
	return rec, nil
}

// List returns the most recent entries, newest first, up to limit.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sql_text, dialect, status, error, row_count, duration_ms, started_at
		 FROM history ORDER BY started_at DESC, id LIMIT ?`, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

func scanRecord(scan func(dest ...any) error) (*Record, error) {
	rec := &Record{}
	var errMsg sql.NullString
	var durationMS int64

	err := scan(&rec.ID, &rec.SQL, &rec.Dialect, &rec.Status, &errMsg,
		&rec.Rows, &durationMS, &rec.StartedAt)
	if err != nil {
		return nil, err
	}

	if errMsg.Valid {
		rec.Error = errMsg.String
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return rec, nil
}
