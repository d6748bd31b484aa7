// Package store persists canonical records, bucket aggregates, correlation
// results, and ingest run reports in SQLite. The core packages never see
// SQL; they consume the narrow read/write methods here (insert-if-absent by
// natural key, bulk read by key and time range).
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS canonical_records (
	id            TEXT PRIMARY KEY,
	dataset       TEXT NOT NULL,
	category      TEXT NOT NULL,
	ts_utc        DATETIME NOT NULL,
	lat           REAL,
	lon           REAL,
	zone_id       TEXT NOT NULL DEFAULT '',
	zone_resolved INTEGER NOT NULL DEFAULT 0,
	measure       REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_dataset_ts ON canonical_records(dataset, ts_utc);
CREATE INDEX IF NOT EXISTS idx_records_zone ON canonical_records(dataset, zone_id, ts_utc);

CREATE TABLE IF NOT EXISTS buckets (
	dataset        TEXT NOT NULL,
	window_seconds INTEGER NOT NULL,
	key            TEXT NOT NULL,
	window_start   DATETIME NOT NULL,
	value          REAL NOT NULL,
	count          INTEGER NOT NULL,
	UNIQUE(dataset, window_seconds, key, window_start)
);

CREATE TABLE IF NOT EXISTS correlation_results (
	series_a       TEXT NOT NULL,
	series_b       TEXT NOT NULL,
	window_seconds INTEGER NOT NULL,
	range_start    DATETIME NOT NULL,
	range_end      DATETIME NOT NULL,
	lag            INTEGER NOT NULL,
	correlation    REAL NOT NULL,
	sample_size    INTEGER NOT NULL,
	computed_at    DATETIME NOT NULL,
	UNIQUE(series_a, series_b, window_seconds, range_start, range_end)
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id           TEXT PRIMARY KEY,
	dataset      TEXT NOT NULL,
	source_file  TEXT NOT NULL,
	started_at   DATETIME NOT NULL,
	finished_at  DATETIME NOT NULL,
	rows_in      INTEGER NOT NULL,
	rows_ok      INTEGER NOT NULL,
	rows_dropped INTEGER NOT NULL,
	unresolved   INTEGER NOT NULL,
	drop_reasons TEXT NOT NULL DEFAULT '{}'
);
`

// DB wraps a sql.DB with pipeline-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// WAL mode plus a busy timeout lets concurrent file ingesters share the
// handle safely; each insert is its own atomic write.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
