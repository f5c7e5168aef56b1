// Package store provides the durable, single-writer event log and
// task/worker state store that backs the orchestration kernel.
//
// Realized as an embedded SQLite database opened in WAL mode: one writer,
// snapshot-isolated readers, fsync on commit. The event log is an
// append-only table with a strictly increasing, unique `seq` column;
// task and worker rows are mutated in place by ToolSurface, the
// OrchestratorLoop and the Heartbeat Reaper.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	seq INTEGER NOT NULL UNIQUE,
	created_at TEXT NOT NULL,
	type TEXT NOT NULL,
	task_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	processed INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	worker_id TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL,
	context TEXT NOT NULL DEFAULT '',
	worktree_path TEXT NOT NULL DEFAULT '',
	branch_name TEXT NOT NULL DEFAULT '',
	pr_url TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS workers (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	task_id TEXT NOT NULL DEFAULT '',
	pane_handle TEXT NOT NULL DEFAULT '',
	last_heartbeat TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS delivery_cursors (
	recipient TEXT PRIMARY KEY,
	seq INTEGER NOT NULL DEFAULT 0
);
`

// indexes for the query patterns the OrchestratorLoop and Reaper run on every tick.
const indexes = `
CREATE INDEX IF NOT EXISTS idx_events_processed_seq ON events(processed, seq);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_workers_task ON workers(task_id);
`

// Store is the durable event log plus the task/worker/cursor state store.
type Store struct {
	db         *sql.DB
	signalPath string
}

// Open opens (creating if necessary) the SQLite database at path with WAL
// journaling and a busy timeout so concurrent readers never block on the
// single writer for long. Parent directories are created as needed.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// A single writer connection keeps allocation of `seq` and task/worker
	// mutations serialized at the database/sql pool level, matching the
	// single-writer contract without hand-rolled locking.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	if _, err := db.Exec(indexes); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: indexes: %w", err)
	}
	return &Store{db: db, signalPath: path + ".signal"}, nil
}

// SignalPath returns the file AppendEvent touches on every successful
// write. The Notifier watches this path with fsnotify as a low-latency
// alternative to pure polling; its content is meaningless, only its mtime
// is observed.
func (s *Store) SignalPath() string {
	return s.signalPath
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// isNoRows reports whether err is the "no rows" sentinel from database/sql.
func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}
