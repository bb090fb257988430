// Package index provides the SQLite-backed metadata index: refs, commit
// graph, tree membership, locks, review records and texture linkage.
package index

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the index at the given path and ensures the schema
// exists. The database runs in WAL mode so readers see a consistent
// snapshot without blocking the single writer.
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting synchronous mode: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.ensureSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// BeginTx starts a new transaction. Every write-side operation is framed
// in exactly one transaction.
func (db *DB) BeginTx() (*sql.Tx, error) {
	return db.conn.Begin()
}

// Checkpoint forces a WAL journal checkpoint so subsequent connections see
// the latest committed state. Called after commit-creation and
// branch-switch transactions.
func (db *DB) Checkpoint() error {
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpointing database: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS commits (
  hash TEXT PRIMARY KEY,
  branch TEXT NOT NULL,
  parent_hash TEXT,
  timestamp INTEGER NOT NULL,
  message TEXT,
  tree_hash TEXT NOT NULL,
  author TEXT,
  commit_type TEXT NOT NULL DEFAULT 'project',
  screenshot_hash TEXT
);
CREATE INDEX IF NOT EXISTS idx_commits_branch ON commits(branch);
CREATE INDEX IF NOT EXISTS idx_commits_parent ON commits(parent_hash);

CREATE TABLE IF NOT EXISTS branches (
  name TEXT PRIMARY KEY,
  tip TEXT,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tree_entries (
  tree_hash TEXT NOT NULL,
  name TEXT NOT NULL,
  kind TEXT NOT NULL,
  child_hash TEXT NOT NULL,
  PRIMARY KEY (tree_hash, name)
);
CREATE INDEX IF NOT EXISTS idx_tree_entries_child ON tree_entries(child_hash);

CREATE TABLE IF NOT EXISTS commit_files (
  commit_hash TEXT NOT NULL,
  path TEXT NOT NULL,
  blob_hash TEXT NOT NULL,
  size INTEGER NOT NULL,
  PRIMARY KEY (commit_hash, path)
);

CREATE TABLE IF NOT EXISTS meshes (
  hash TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS textures (
  hash TEXT PRIMARY KEY,
  width INTEGER NOT NULL DEFAULT 0,
  height INTEGER NOT NULL DEFAULT 0,
  channels INTEGER NOT NULL DEFAULT 0,
  format TEXT,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS texture_commits (
  texture_hash TEXT NOT NULL,
  commit_hash TEXT NOT NULL,
  PRIMARY KEY (texture_hash, commit_hash)
);
CREATE INDEX IF NOT EXISTS idx_texture_commits_commit ON texture_commits(commit_hash);

CREATE TABLE IF NOT EXISTS stashes (
  hash TEXT PRIMARY KEY,
  timestamp INTEGER NOT NULL,
  message TEXT,
  tree_hash TEXT NOT NULL,
  branch TEXT
);
CREATE INDEX IF NOT EXISTS idx_stashes_timestamp ON stashes(timestamp);

CREATE TABLE IF NOT EXISTS locks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  file_path TEXT NOT NULL,
  branch TEXT NOT NULL,
  locked_by TEXT NOT NULL,
  lock_type TEXT NOT NULL,
  locked_at INTEGER NOT NULL,
  expires_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_locks_key ON locks(file_path, branch);
CREATE INDEX IF NOT EXISTS idx_locks_expires ON locks(expires_at);

CREATE TABLE IF NOT EXISTS comments (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  asset_hash TEXT NOT NULL,
  asset_type TEXT NOT NULL,
  author TEXT NOT NULL,
  text TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  x REAL,
  y REAL,
  resolved INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_comments_asset ON comments(asset_hash, asset_type);

CREATE TABLE IF NOT EXISTS approvals (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  asset_hash TEXT NOT NULL,
  asset_type TEXT NOT NULL,
  approver TEXT NOT NULL,
  status TEXT NOT NULL,
  comment TEXT,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_approvals_asset ON approvals(asset_hash, asset_type);

CREATE TABLE IF NOT EXISTS repo_meta (
  key TEXT PRIMARY KEY,
  value TEXT
);
`

func (db *DB) ensureSchema() error {
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// GetMeta reads a repo_meta value. Missing keys return "".
func (db *DB) GetMeta(key string) (string, error) {
	var value sql.NullString
	err := db.conn.QueryRow(`SELECT value FROM repo_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading repo_meta %q: %w", key, err)
	}
	return value.String, nil
}

// SetMeta writes a repo_meta value.
func (db *DB) SetMeta(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO repo_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("writing repo_meta %q: %w", key, err)
	}
	return nil
}

// SetMetaTx writes a repo_meta value inside a transaction.
func (db *DB) SetMetaTx(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`
		INSERT INTO repo_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("writing repo_meta %q: %w", key, err)
	}
	return nil
}
