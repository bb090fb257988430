package index

import (
	"database/sql"
	"fmt"
	"time"
)

// Lock types.
const (
	LockExclusive = "exclusive"
	LockShared    = "shared"
)

// LockRow is one held file lock. Expiry is evaluated lazily: reads treat
// a lock whose expires_at has passed as absent.
type LockRow struct {
	ID        int64
	FilePath  string
	Branch    string
	LockedBy  string
	LockType  string
	LockedAt  int64
	ExpiresAt int64
}

// AcquireLock attempts to take a lock on (filePath, branch). It returns
// false without error when the lock state forbids the acquisition: an
// exclusive request on any held file, or a shared request on an
// exclusively held file. ttl of zero means no expiry.
func (db *DB) AcquireLock(filePath, branch, lockedBy, lockType string, ttl time.Duration) (bool, error) {
	now := time.Now().Unix()
	tx, err := db.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("beginning lock transaction: %w", err)
	}
	defer tx.Rollback()

	if err := expireLocksTx(tx, filePath, branch, now); err != nil {
		return false, err
	}

	rows, err := tx.Query(`
		SELECT lock_type FROM locks WHERE file_path = ? AND branch = ?
	`, filePath, branch)
	if err != nil {
		return false, fmt.Errorf("querying held locks: %w", err)
	}
	var held []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return false, fmt.Errorf("scanning row: %w", err)
		}
		held = append(held, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}

	if lockType == LockExclusive && len(held) > 0 {
		return false, nil
	}
	for _, t := range held {
		if t == LockExclusive {
			return false, nil
		}
	}

	// A negative ttl must land as an already-expired row, never as a
	// lock without expiry.
	var expiresAt interface{}
	if ttl != 0 {
		expiresAt = now + int64(ttl.Seconds())
	}
	_, err = tx.Exec(`
		INSERT INTO locks (file_path, branch, locked_by, lock_type, locked_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, filePath, branch, lockedBy, lockType, now, expiresAt)
	if err != nil {
		return false, fmt.Errorf("inserting lock: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing lock: %w", err)
	}
	return true, nil
}

// ReleaseLock drops the caller's lock on (filePath, branch). Unlocking a
// file the caller does not hold returns false and changes nothing.
func (db *DB) ReleaseLock(filePath, branch, lockedBy string) (bool, error) {
	res, err := db.conn.Exec(`
		DELETE FROM locks WHERE file_path = ? AND branch = ? AND locked_by = ?
	`, filePath, branch, lockedBy)
	if err != nil {
		return false, fmt.Errorf("releasing lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("releasing lock: %w", err)
	}
	return n > 0, nil
}

// Locks returns the live locks on a branch. An empty branch returns live
// locks across all branches.
func (db *DB) Locks(branch string) ([]*LockRow, error) {
	now := time.Now().Unix()
	query := `
		SELECT id, file_path, branch, locked_by, lock_type, locked_at, expires_at
		FROM locks WHERE (expires_at IS NULL OR expires_at > ?)
	`
	args := []interface{}{now}
	if branch != "" {
		query += ` AND branch = ?`
		args = append(args, branch)
	}
	query += ` ORDER BY file_path, locked_at`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying locks: %w", err)
	}
	defer rows.Close()
	return scanLocks(rows)
}

// CheckConflicts returns every live lock on any of the given files that is
// not owned by user.
func (db *DB) CheckConflicts(files []string, branch, user string) ([]*LockRow, error) {
	if len(files) == 0 {
		return nil, nil
	}
	now := time.Now().Unix()

	query := `
		SELECT id, file_path, branch, locked_by, lock_type, locked_at, expires_at
		FROM locks
		WHERE branch = ? AND locked_by != ? AND (expires_at IS NULL OR expires_at > ?)
		AND file_path IN (?` + repeatPlaceholder(len(files)-1) + `)
		ORDER BY file_path
	`
	args := []interface{}{branch, user, now}
	for _, f := range files {
		args = append(args, f)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying lock conflicts: %w", err)
	}
	defer rows.Close()
	return scanLocks(rows)
}

// PurgeExpiredLocks deletes every lock whose expiry has passed. Callers
// are not required to run it; reads already skip expired rows.
func (db *DB) PurgeExpiredLocks() error {
	now := time.Now().Unix()
	_, err := db.conn.Exec(`DELETE FROM locks WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return fmt.Errorf("purging expired locks: %w", err)
	}
	return nil
}

func expireLocksTx(tx *sql.Tx, filePath, branch string, now int64) error {
	_, err := tx.Exec(`
		DELETE FROM locks
		WHERE file_path = ? AND branch = ? AND expires_at IS NOT NULL AND expires_at <= ?
	`, filePath, branch, now)
	if err != nil {
		return fmt.Errorf("expiring locks: %w", err)
	}
	return nil
}

func scanLocks(rows *sql.Rows) ([]*LockRow, error) {
	var locks []*LockRow
	for rows.Next() {
		var l LockRow
		var expires sql.NullInt64
		if err := rows.Scan(&l.ID, &l.FilePath, &l.Branch, &l.LockedBy, &l.LockType, &l.LockedAt, &expires); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		l.ExpiresAt = expires.Int64
		locks = append(locks, &l)
	}
	return locks, rows.Err()
}

func repeatPlaceholder(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}
