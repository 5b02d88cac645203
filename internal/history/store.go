// Package history is the durable audit log of admission-loop decisions
// (A1): an append-only record an operator can query to triage why a
// candidate was admitted or skipped. It supports both SQLite (default, no
// external dependencies) and PostgreSQL, mirroring the curation engine's
// tolerance for either deployment shape.
package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Entry is one row of the audit log: a single admission-loop decision for
// one candidate in one cycle. It is write-only from the engine's
// perspective — nothing in the decision engine ever reads it back.
type Entry struct {
	Timestamp string
	CycleID   string
	PostID    string
	Origin    string
	Reason    string
	Score     float64
}

// Store wraps a database connection holding the audit log table.
type Store struct {
	db     *sql.DB
	driver string
}

// Open opens a database connection. databaseURL can be a bare file path
// (SQLite), "sqlite://path" or a "postgres://" / "postgresql://" DSN.
func Open(databaseURL string) (*Store, error) {
	driver, dsn := detectDriver(databaseURL)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping history db: %w", err)
	}

	if driver == "sqlite" {
		const sqliteMaxConns = 4
		db.SetMaxOpenConns(sqliteMaxConns)
		db.SetMaxIdleConns(sqliteMaxConns)
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA synchronous=NORMAL",
		} {
			if _, err := db.Exec(pragma); err != nil {
				return nil, fmt.Errorf("sqlite pragma (%s): %w", pragma, err)
			}
		}
	}

	return &Store{db: db, driver: driver}, nil
}

// Migrate creates the history table if it does not already exist.
func (s *Store) Migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS history (
			ts       TEXT NOT NULL,
			cycle_id TEXT NOT NULL,
			post_id  TEXT NOT NULL,
			origin   TEXT NOT NULL,
			reason   TEXT NOT NULL,
			score    REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS history_ts ON history(ts)`,
		`CREATE INDEX IF NOT EXISTS history_cycle_id ON history(cycle_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			return fmt.Errorf("history migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record writes one audit row. It never returns an error to the engine:
// this is a best-effort sink, matching the audit-log's documented
// non-coupling with the decision engine — a failed write is only logged.
func (s *Store) Record(cycleID, postID, origin, reason string, score float64) {
	q := `INSERT INTO history (ts, cycle_id, post_id, origin, reason, score) VALUES (` +
		s.placeholders(6) + `)`
	if _, err := s.db.Exec(q, time.Now().UTC().Format(time.RFC3339Nano), cycleID, postID, origin, reason, score); err != nil {
		slog.Warn("history record failed", "cycle_id", cycleID, "post_id", postID, "err", err)
	}
}

// Recent returns up to limit audit entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	q := `SELECT ts, cycle_id, post_id, origin, reason, score FROM history ORDER BY ts DESC LIMIT ` + s.ph(1)
	rows, err := s.db.Query(q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Timestamp, &e.CycleID, &e.PostID, &e.Origin, &e.Reason, &e.Score); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) ph(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *Store) placeholders(n int) string {
	if s.driver != "postgres" {
		return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

func detectDriver(u string) (driver, dsn string) {
	if strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://") {
		return "postgres", u
	}
	if strings.HasPrefix(u, "sqlite://") {
		return "sqlite", strings.TrimPrefix(u, "sqlite://")
	}
	return "sqlite", u
}
