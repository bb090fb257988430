package index

import (
	"database/sql"
	"fmt"
	"time"
)

// Approval statuses.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// CommentRow is a review note pinned to an asset, optionally at a 2D
// position on its preview.
type CommentRow struct {
	ID        int64
	AssetHash string
	AssetType string
	Author    string
	Text      string
	CreatedAt int64
	X         float64
	Y         float64
	HasPos    bool
	Resolved  bool
}

// ApprovalRow is one review verdict. The current status of an asset per
// approver is the newest row.
type ApprovalRow struct {
	ID        int64
	AssetHash string
	AssetType string
	Approver  string
	Status    string
	Comment   string
	CreatedAt int64
}

// AddComment inserts a comment and returns its id. Asset hashes are not
// checked against the store: comments may outlive their assets.
func (db *DB) AddComment(c CommentRow) (int64, error) {
	var x, y interface{}
	if c.HasPos {
		x, y = c.X, c.Y
	}
	createdAt := c.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}
	res, err := db.conn.Exec(`
		INSERT INTO comments (asset_hash, asset_type, author, text, created_at, x, y, resolved)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, c.AssetHash, c.AssetType, c.Author, c.Text, createdAt, x, y)
	if err != nil {
		return 0, fmt.Errorf("inserting comment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading comment id: %w", err)
	}
	return id, nil
}

// Comments returns an asset's comments oldest first.
func (db *DB) Comments(assetHash, assetType string) ([]*CommentRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, asset_hash, asset_type, author, text, created_at, x, y, resolved
		FROM comments WHERE asset_hash = ? AND asset_type = ?
		ORDER BY created_at ASC, id ASC
	`, assetHash, assetType)
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	var comments []*CommentRow
	for rows.Next() {
		var c CommentRow
		var x, y sql.NullFloat64
		var resolved int
		if err := rows.Scan(&c.ID, &c.AssetHash, &c.AssetType, &c.Author, &c.Text, &c.CreatedAt, &x, &y, &resolved); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if x.Valid && y.Valid {
			c.X, c.Y, c.HasPos = x.Float64, y.Float64, true
		}
		c.Resolved = resolved != 0
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

// ResolveComment marks a comment resolved. Returns false if no such
// comment exists.
func (db *DB) ResolveComment(id int64) (bool, error) {
	res, err := db.conn.Exec(`UPDATE comments SET resolved = 1 WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("resolving comment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolving comment: %w", err)
	}
	return n > 0, nil
}

// DeleteComment removes a comment. Returns false if no such comment
// exists.
func (db *DB) DeleteComment(id int64) (bool, error) {
	res, err := db.conn.Exec(`DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting comment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting comment: %w", err)
	}
	return n > 0, nil
}

// AddApproval appends an approval row. Earlier rows for the same
// (asset, approver) stay in place; reads pick the newest.
func (db *DB) AddApproval(a ApprovalRow) (int64, error) {
	createdAt := a.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}
	res, err := db.conn.Exec(`
		INSERT INTO approvals (asset_hash, asset_type, approver, status, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.AssetHash, a.AssetType, a.Approver, a.Status, nullable(a.Comment), createdAt)
	if err != nil {
		return 0, fmt.Errorf("inserting approval: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading approval id: %w", err)
	}
	return id, nil
}

// Approvals returns the current approval per approver for an asset: the
// newest row wins.
func (db *DB) Approvals(assetHash, assetType string) ([]*ApprovalRow, error) {
	rows, err := db.conn.Query(`
		SELECT a.id, a.asset_hash, a.asset_type, a.approver, a.status, a.comment, a.created_at
		FROM approvals a
		WHERE a.asset_hash = ? AND a.asset_type = ?
		AND a.id = (
			SELECT MAX(b.id) FROM approvals b
			WHERE b.asset_hash = a.asset_hash AND b.asset_type = a.asset_type AND b.approver = a.approver
		)
		ORDER BY a.approver
	`, assetHash, assetType)
	if err != nil {
		return nil, fmt.Errorf("querying approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*ApprovalRow
	for rows.Next() {
		var a ApprovalRow
		var comment sql.NullString
		if err := rows.Scan(&a.ID, &a.AssetHash, &a.AssetType, &a.Approver, &a.Status, &comment, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		a.Comment = comment.String
		approvals = append(approvals, &a)
	}
	return approvals, rows.Err()
}
