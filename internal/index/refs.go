package index

import (
	"database/sql"
	"fmt"
	"time"
)

// BranchRow is a named pointer to a commit hash.
type BranchRow struct {
	Name      string
	Tip       string
	CreatedAt int64
}

// CreateBranch inserts a branch row inside a transaction.
func (db *DB) CreateBranch(tx *sql.Tx, name, tip string) error {
	_, err := tx.Exec(`
		INSERT INTO branches (name, tip, created_at) VALUES (?, ?, ?)
	`, name, nullable(tip), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("inserting branch: %w", err)
	}
	return nil
}

// SetBranchTip advances a branch ref inside a transaction.
func (db *DB) SetBranchTip(tx *sql.Tx, name, tip string) error {
	res, err := tx.Exec(`UPDATE branches SET tip = ? WHERE name = ?`, nullable(tip), name)
	if err != nil {
		return fmt.Errorf("updating branch tip: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		_, err = tx.Exec(`INSERT INTO branches (name, tip, created_at) VALUES (?, ?, ?)`,
			name, nullable(tip), time.Now().Unix())
		if err != nil {
			return fmt.Errorf("inserting branch: %w", err)
		}
	}
	return nil
}

// GetBranch retrieves a branch row. Returns nil if absent.
func (db *DB) GetBranch(name string) (*BranchRow, error) {
	var b BranchRow
	var tip sql.NullString
	err := db.conn.QueryRow(`SELECT name, tip, created_at FROM branches WHERE name = ?`, name).
		Scan(&b.Name, &tip, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying branch: %w", err)
	}
	b.Tip = tip.String
	return &b, nil
}

// ListBranches returns all branches ordered by name.
func (db *DB) ListBranches() ([]*BranchRow, error) {
	rows, err := db.conn.Query(`SELECT name, tip, created_at FROM branches ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying branches: %w", err)
	}
	defer rows.Close()

	var branches []*BranchRow
	for rows.Next() {
		var b BranchRow
		var tip sql.NullString
		if err := rows.Scan(&b.Name, &tip, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		b.Tip = tip.String
		branches = append(branches, &b)
	}
	return branches, rows.Err()
}

// BranchCount returns the number of branches.
func (db *DB) BranchCount() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM branches`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting branches: %w", err)
	}
	return n, nil
}

// DeleteBranch removes a branch row inside a transaction.
func (db *DB) DeleteBranch(tx *sql.Tx, name string) error {
	if _, err := tx.Exec(`DELETE FROM branches WHERE name = ?`, name); err != nil {
		return fmt.Errorf("deleting branch: %w", err)
	}
	return nil
}

// RenameBranch renames a branch and rewrites its commits' branch column
// inside a transaction.
func (db *DB) RenameBranch(tx *sql.Tx, oldName, newName string) error {
	if _, err := tx.Exec(`UPDATE branches SET name = ? WHERE name = ?`, newName, oldName); err != nil {
		return fmt.Errorf("renaming branch: %w", err)
	}
	if _, err := tx.Exec(`UPDATE commits SET branch = ? WHERE branch = ?`, newName, oldName); err != nil {
		return fmt.Errorf("rewriting commit branches: %w", err)
	}
	return nil
}
