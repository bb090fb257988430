package repo

import (
	"time"

	"forester/internal/index"
)

// LockFile takes a lock on a working-tree path for the given branch
// (current branch when empty). It reports whether the lock was granted.
func (r *Repository) LockFile(path, branch, lockedBy, lockType string, ttl time.Duration) (bool, error) {
	branch, err := r.defaultBranch(branch)
	if err != nil {
		return false, err
	}
	if lockType == "" {
		lockType = index.LockExclusive
	}
	if lockType != index.LockExclusive && lockType != index.LockShared {
		return false, Errf(KindInvalidState, "unknown lock type %q", lockType)
	}
	if ttl == 0 {
		ttl = r.Config.LockTTL()
	}
	ok, err := r.DB.AcquireLock(path, branch, lockedBy, lockType, ttl)
	if err != nil {
		return false, Wrap(KindIOError, err, "acquiring lock on %s", path)
	}
	return ok, nil
}

// UnlockFile drops the caller's lock. Unlocking a path the caller does
// not hold returns false.
func (r *Repository) UnlockFile(path, branch, lockedBy string) (bool, error) {
	branch, err := r.defaultBranch(branch)
	if err != nil {
		return false, err
	}
	ok, err := r.DB.ReleaseLock(path, branch, lockedBy)
	if err != nil {
		return false, Wrap(KindIOError, err, "releasing lock on %s", path)
	}
	return ok, nil
}

// Locks lists live locks on a branch (current branch when empty, every
// branch for "*").
func (r *Repository) Locks(branch string) ([]*index.LockRow, error) {
	if branch == "*" {
		branch = ""
	} else {
		var err error
		branch, err = r.defaultBranch(branch)
		if err != nil {
			return nil, err
		}
	}
	locks, err := r.DB.Locks(branch)
	if err != nil {
		return nil, Wrap(KindIOError, err, "listing locks")
	}
	return locks, nil
}

func (r *Repository) defaultBranch(branch string) (string, error) {
	if branch != "" {
		return branch, nil
	}
	current, err := r.CurrentBranch()
	if err != nil {
		return "", err
	}
	if current == "" {
		return "", Errf(KindInvalidState, "HEAD is detached; name a branch explicitly")
	}
	return current, nil
}
