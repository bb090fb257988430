package index

import (
	"database/sql"
	"fmt"
)

// CommitRow is a commit's metadata row.
type CommitRow struct {
	Hash           string
	Branch         string
	Parent         string
	Timestamp      int64
	Message        string
	TreeHash       string
	Author         string
	Type           string
	ScreenshotHash string
}

// InsertCommit inserts a commit row inside a transaction.
func (db *DB) InsertCommit(tx *sql.Tx, c CommitRow) error {
	_, err := tx.Exec(`
		INSERT INTO commits (hash, branch, parent_hash, timestamp, message, tree_hash, author, commit_type, screenshot_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.Hash, c.Branch, nullable(c.Parent), c.Timestamp, c.Message, c.TreeHash, c.Author, c.Type, nullable(c.ScreenshotHash))
	if err != nil {
		return fmt.Errorf("inserting commit: %w", err)
	}
	return nil
}

// SetCommitScreenshot links a screenshot blob hash into a commit row.
func (db *DB) SetCommitScreenshot(commitHash, screenshotHash string) error {
	_, err := db.conn.Exec(`UPDATE commits SET screenshot_hash = ? WHERE hash = ?`, screenshotHash, commitHash)
	if err != nil {
		return fmt.Errorf("updating commit screenshot: %w", err)
	}
	return nil
}

// GetCommit retrieves a commit row by hash. Returns nil if absent.
func (db *DB) GetCommit(hash string) (*CommitRow, error) {
	row := db.conn.QueryRow(`
		SELECT hash, branch, parent_hash, timestamp, message, tree_hash, author, commit_type, screenshot_hash
		FROM commits WHERE hash = ?
	`, hash)
	return scanCommit(row)
}

// ResolveCommitPrefix resolves a (possibly abbreviated) commit hash. It
// returns the full hashes of all matching commits.
func (db *DB) ResolveCommitPrefix(prefix string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT hash FROM commits WHERE hash LIKE ? || '%' LIMIT 11`, prefix)
	if err != nil {
		return nil, fmt.Errorf("resolving commit prefix: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// CommitsByBranch returns every commit row tagged with a branch, oldest
// timestamp first. This is the flat row set, not the parent chain;
// history order comes from walking Parent pointers from the tip.
func (db *DB) CommitsByBranch(branch string) ([]*CommitRow, error) {
	rows, err := db.conn.Query(`
		SELECT hash, branch, parent_hash, timestamp, message, tree_hash, author, commit_type, screenshot_hash
		FROM commits WHERE branch = ? ORDER BY timestamp ASC, hash ASC
	`, branch)
	if err != nil {
		return nil, fmt.Errorf("querying commits: %w", err)
	}
	defer rows.Close()
	return scanCommits(rows)
}

// AllCommits returns every commit row.
func (db *DB) AllCommits() ([]*CommitRow, error) {
	rows, err := db.conn.Query(`
		SELECT hash, branch, parent_hash, timestamp, message, tree_hash, author, commit_type, screenshot_hash
		FROM commits ORDER BY timestamp ASC, hash ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying commits: %w", err)
	}
	defer rows.Close()
	return scanCommits(rows)
}

// CommitCount returns the number of commits on a branch.
func (db *DB) CommitCount(branch string) (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM commits WHERE branch = ?`, branch).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting commits: %w", err)
	}
	return n, nil
}

// DeleteCommit removes a commit row and its link-table rows inside a
// transaction. Object files are the GC's to delete, not ours.
func (db *DB) DeleteCommit(tx *sql.Tx, hash string) error {
	for _, stmt := range []string{
		`DELETE FROM commits WHERE hash = ?`,
		`DELETE FROM commit_files WHERE commit_hash = ?`,
		`DELETE FROM texture_commits WHERE commit_hash = ?`,
	} {
		if _, err := tx.Exec(stmt, hash); err != nil {
			return fmt.Errorf("deleting commit rows: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCommit(row rowScanner) (*CommitRow, error) {
	var c CommitRow
	var parent, screenshot sql.NullString
	err := row.Scan(&c.Hash, &c.Branch, &parent, &c.Timestamp, &c.Message, &c.TreeHash, &c.Author, &c.Type, &screenshot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning commit: %w", err)
	}
	c.Parent = parent.String
	c.ScreenshotHash = screenshot.String
	return &c, nil
}

func scanCommits(rows *sql.Rows) ([]*CommitRow, error) {
	var commits []*CommitRow
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
