// Package tracestore persists rollout traces in SQLite.
package tracestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/samcharles93/rollout/internal/logger"
	"github.com/samcharles93/rollout/internal/rollout"
)

var ErrNotFound = errors.New("trace not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS traces (
		id          TEXT PRIMARY KEY,
		scheduler   TEXT NOT NULL DEFAULT '',
		stop_reason TEXT NOT NULL,
		turns       INTEGER NOT NULL,
		messages    TEXT NOT NULL,
		data        TEXT NOT NULL DEFAULT '{}',
		turn_log    TEXT NOT NULL DEFAULT '[]',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_traces_created_at ON traces(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_traces_scheduler ON traces(scheduler)`,
}

type Store struct {
	db  *sql.DB
	log logger.Logger
	now func() time.Time
}

// Open opens (or creates) the database at path. ":memory:" is accepted
// for tests.
func Open(path string, log logger.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{db: db, log: log.With("component", "tracestore"), now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Save inserts or replaces a trace.
func (s *Store) Save(ctx context.Context, t *rollout.Trace) error {
	return s.insert(ctx, s.db, t)
}

// SaveAll stores traces in one transaction.
func (s *Store) SaveAll(ctx context.Context, traces []*rollout.Trace) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, t := range traces {
		if err := s.insert(ctx, tx, t); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) insert(ctx context.Context, ex execer, t *rollout.Trace) error {
	messages, err := json.Marshal(t.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	data, err := json.Marshal(t.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	turns, err := json.Marshal(t.Turns)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}

	s.log.Debug("sql", "op", "insert", "table", "traces", "id", t.ID)
	_, err = ex.ExecContext(ctx,
		`INSERT OR REPLACE INTO traces (id, scheduler, stop_reason, turns, messages, data, turn_log, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Scheduler, t.StopReason, len(t.Turns), string(messages), string(data), string(turns),
		t.Duration.Milliseconds(), s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert trace %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*rollout.Trace, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, scheduler, stop_reason, messages, data, turn_log, duration_ms FROM traces WHERE id = ?`, id)
	t, err := scanTrace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, err
}

// List returns the most recent traces first. limit <= 0 means 100.
func (s *Store) List(ctx context.Context, limit int) ([]*rollout.Trace, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scheduler, stop_reason, messages, data, turn_log, duration_ms
		 FROM traces ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*rollout.Trace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrace(sc scanner) (*rollout.Trace, error) {
	var (
		t                     rollout.Trace
		messages, data, turns string
		durationMS            int64
	)
	if err := sc.Scan(&t.ID, &t.Scheduler, &t.StopReason, &messages, &data, &turns, &durationMS); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(messages), &t.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &t.Data); err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	if err := json.Unmarshal([]byte(turns), &t.Turns); err != nil {
		return nil, fmt.Errorf("unmarshal turns: %w", err)
	}
	t.Duration = time.Duration(durationMS) * time.Millisecond
	return &t, nil
}
