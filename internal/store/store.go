package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS agents (
	agent_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	capabilities_json TEXT NOT NULL,
	protocols_json TEXT NOT NULL,
	endpoints_json TEXT NOT NULL,
	metadata_json TEXT,
	status TEXT NOT NULL,
	last_heartbeat TIMESTAMP,
	load_score REAL NOT NULL DEFAULT 0.0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_capabilities (
	agent_id TEXT NOT NULL,
	capability TEXT NOT NULL,
	PRIMARY KEY (agent_id, capability),
	FOREIGN KEY (agent_id) REFERENCES agents (agent_id)
);

CREATE INDEX IF NOT EXISTS idx_capabilities ON agent_capabilities (capability);

CREATE TABLE IF NOT EXISTS tasks (
	task_id TEXT PRIMARY KEY,
	task_type TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	requester_id TEXT NOT NULL,
	assigned_agent_id TEXT,
	priority INTEGER NOT NULL DEFAULT 5,
	timeout INTEGER NOT NULL DEFAULT 300,
	status TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	result_json TEXT,
	error TEXT,
	metadata_json TEXT
);

CREATE INDEX IF NOT EXISTS idx_task_status ON tasks (status);
CREATE INDEX IF NOT EXISTS idx_task_type ON tasks (task_type);
`

// Store is the durable table of agents, capability index, and task
// history. Writes are synchronous: callers see success only after the
// row is on disk.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the hub database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open hub db: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate hub db: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying handle for ops tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// withTx executes a function within a transaction.
func (s *Store) withTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nullString converts an empty string to sql.NullString
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
