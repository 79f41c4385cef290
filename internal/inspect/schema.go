// Package inspect keeps a SQLite snapshot of linking runs: the alias table,
// the rewritten token streams and every candidate with its decision.
package inspect

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	started_at   DATETIME NOT NULL,
	finished_at  DATETIME NOT NULL,
	dry_run      INTEGER NOT NULL DEFAULT 0,
	max_distance INTEGER NOT NULL,
	documents    INTEGER NOT NULL DEFAULT 0,
	accepted     INTEGER NOT NULL DEFAULT 0,
	rejected     INTEGER NOT NULL DEFAULT 0,
	written      INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	edges        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS aliases (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	alias  TEXT NOT NULL,
	paths  TEXT NOT NULL DEFAULT '[]',
	UNIQUE(run_id, alias)
);

CREATE TABLE IF NOT EXISTS tokens (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	path   TEXT NOT NULL,
	idx    INTEGER NOT NULL,
	kind   TEXT NOT NULL,
	text   TEXT NOT NULL,
	UNIQUE(run_id, path, idx)
);

CREATE TABLE IF NOT EXISTS candidates (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	source    TEXT NOT NULL,
	target    TEXT NOT NULL,
	start_idx INTEGER NOT NULL,
	end_idx   INTEGER NOT NULL,
	phrase    TEXT NOT NULL,
	distance  INTEGER NOT NULL,
	reason    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_candidates_run_source ON candidates(run_id, source);
CREATE INDEX IF NOT EXISTS idx_tokens_run_path ON tokens(run_id, path);
`

// DB wraps a sql.DB with inspection operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("inspect: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("inspect: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("inspect: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
