// Package history persists execution records in a SQLite database so past
// dispatches survive daemon restarts and journal rotation.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/overlaybridge/relay/internal/model"
)

const opTimeout = 5 * time.Second

// Store wraps the history database.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the history database at path and
// ensures the records table exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if _, err := db.ExecContext(pctx, `CREATE TABLE IF NOT EXISTS execution_records (
  id            TEXT PRIMARY KEY,
  cycle_id      TEXT NOT NULL,
  line          INTEGER NOT NULL,
  command       TEXT NOT NULL,
  dispatched_at TEXT NOT NULL,
  echo_ok       INTEGER NOT NULL,
  executed      INTEGER NOT NULL
);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap history db: %w", err)
	}
	if _, err := db.ExecContext(pctx,
		`CREATE INDEX IF NOT EXISTS execution_records_dispatched_at_idx ON execution_records(dispatched_at);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap history index: %w", err)
	}

	return &Store{db: db}, nil
}

// Append inserts one execution record. Satisfies the dispatcher's Recorder.
func (s *Store) Append(rec model.ExecutionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO execution_records(id, cycle_id, line, command, dispatched_at, echo_ok, executed)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, rec.ID, rec.CycleID, rec.Line, rec.Command,
		rec.DispatchedAt.UTC().Format(time.RFC3339Nano), boolInt(rec.EchoOK), boolInt(rec.Executed))
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]model.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, cycle_id, line, command, dispatched_at, echo_ok, executed
FROM execution_records
ORDER BY dispatched_at DESC, id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []model.ExecutionRecord
	for rows.Next() {
		var (
			rec          model.ExecutionRecord
			dispatchedAt string
			echoOK       int
			executed     int
		)
		if err := rows.Scan(&rec.ID, &rec.CycleID, &rec.Line, &rec.Command, &dispatchedAt, &echoOK, &executed); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, dispatchedAt); err == nil {
			rec.DispatchedAt = t
		}
		rec.EchoOK = echoOK != 0
		rec.Executed = executed != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Count returns the total number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM execution_records;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
