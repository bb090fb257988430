package index

import (
	"database/sql"
	"fmt"
)

// StashRow is a saved-but-unreferenced snapshot record.
type StashRow struct {
	Hash      string
	Timestamp int64
	Message   string
	TreeHash  string
	Branch    string
}

// InsertStash records a stash inside a transaction.
func (db *DB) InsertStash(tx *sql.Tx, s StashRow) error {
	_, err := tx.Exec(`
		INSERT INTO stashes (hash, timestamp, message, tree_hash, branch)
		VALUES (?, ?, ?, ?, ?)
	`, s.Hash, s.Timestamp, nullable(s.Message), s.TreeHash, nullable(s.Branch))
	if err != nil {
		return fmt.Errorf("inserting stash: %w", err)
	}
	return nil
}

// GetStash retrieves a stash row by hash. Returns nil if absent.
func (db *DB) GetStash(hash string) (*StashRow, error) {
	var s StashRow
	var message, branch sql.NullString
	err := db.conn.QueryRow(`
		SELECT hash, timestamp, message, tree_hash, branch FROM stashes WHERE hash = ?
	`, hash).Scan(&s.Hash, &s.Timestamp, &message, &s.TreeHash, &branch)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying stash: %w", err)
	}
	s.Message = message.String
	s.Branch = branch.String
	return &s, nil
}

// ListStashes returns all stashes newest first.
func (db *DB) ListStashes() ([]*StashRow, error) {
	rows, err := db.conn.Query(`
		SELECT hash, timestamp, message, tree_hash, branch FROM stashes
		ORDER BY timestamp DESC, hash ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying stashes: %w", err)
	}
	defer rows.Close()

	var stashes []*StashRow
	for rows.Next() {
		var s StashRow
		var message, branch sql.NullString
		if err := rows.Scan(&s.Hash, &s.Timestamp, &message, &s.TreeHash, &branch); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		s.Message = message.String
		s.Branch = branch.String
		stashes = append(stashes, &s)
	}
	return stashes, rows.Err()
}

// DeleteStash removes a stash record inside a transaction. The objects it
// referenced become GC-eligible once nothing else reaches them.
func (db *DB) DeleteStash(tx *sql.Tx, hash string) error {
	if _, err := tx.Exec(`DELETE FROM stashes WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("deleting stash: %w", err)
	}
	return nil
}
