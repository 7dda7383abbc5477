// Package store is the relational sink described in SPEC_FULL.md §6.4:
// orders, trades and order_events, written with idempotent-monotonic
// rules by internal/handler. Two drivers are wired: lib/pq against a real
// Postgres DSN in production, and modernc.org/sqlite against a local file
// when the config's run_mode is "dry_run".
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Store wraps a *sql.DB plus the SQL dialect in use, since the two
// drivers disagree on placeholder syntax ($1 vs ?).
type Store struct {
	DB      *sql.DB
	Dialect Dialect
}

// Dialect selects placeholder/upsert syntax.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// Open connects to dsn using the "postgres" driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db, Dialect: DialectPostgres}, nil
}

// OpenDryRun opens a single-file sqlite database at path. The parent
// directory is not created.
func OpenDryRun(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return &Store{DB: db, Dialect: DialectSQLite}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.DB.Close() }

// Migrate applies the bridge's schema, idempotently.
func (s *Store) Migrate() error {
	stmt := schemaFor(s.Dialect)
	if _, err := s.DB.Exec(stmt); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// rebind rewrites "?" placeholders into "$1", "$2", ... for Postgres;
// sqlite is left untouched. Queries in this package are written with "?"
// and passed through rebind before use, so both dialects share one
// source of truth for the SQL text.
func (s *Store) rebind(query string) string {
	if s.Dialect != DialectPostgres {
		return query
	}
	var b []byte
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b = append(b, '$')
			b = append(b, []byte(fmt.Sprintf("%d", n))...)
			continue
		}
		b = append(b, query[i])
	}
	return string(b)
}

// ignoreConflictSQL appends a "do nothing on duplicate key" suffix; both
// lib/pq and modernc.org/sqlite support the same ON CONFLICT syntax.
func ignoreConflictSQL(insert, conflictCols string) string {
	return insert + " ON CONFLICT (" + conflictCols + ") DO NOTHING"
}
