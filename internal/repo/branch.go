package repo

import (
	"strings"
	"unicode"

	"forester/internal/index"
)

// ValidateBranchName enforces the naming rules shared by branches and
// tags.
func ValidateBranchName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Errf(KindInvalidState, "branch name is empty")
	}
	if trimmed != name {
		return Errf(KindInvalidState, "branch name %q has surrounding whitespace", name)
	}
	if strings.HasPrefix(name, "/") {
		return Errf(KindInvalidState, "branch name %q starts with a slash", name)
	}
	for _, c := range name {
		if unicode.IsControl(c) {
			return Errf(KindInvalidState, "branch name contains control characters")
		}
		if unicode.IsSpace(c) {
			return Errf(KindInvalidState, "branch name %q contains whitespace", name)
		}
	}
	return nil
}

// CreateBranch creates a branch pointing at from's tip, or the current
// tip when from is empty.
func (r *Repository) CreateBranch(name, from string) error {
	if err := ValidateBranchName(name); err != nil {
		return err
	}
	release, err := r.lockRepo()
	if err != nil {
		return err
	}
	defer release()

	existing, err := r.DB.GetBranch(name)
	if err != nil {
		return Wrap(KindIOError, err, "reading branch %s", name)
	}
	if existing != nil {
		return Errf(KindAlreadyExists, "branch %s already exists", name)
	}

	var tip string
	if from != "" {
		src, err := r.DB.GetBranch(from)
		if err != nil {
			return Wrap(KindIOError, err, "reading branch %s", from)
		}
		if src == nil {
			return Errf(KindUnknownRef, "no branch named %s", from)
		}
		tip = src.Tip
	} else {
		tip, err = r.HeadCommit()
		if err != nil {
			return err
		}
	}

	tx, err := r.DB.BeginTx()
	if err != nil {
		return Wrap(KindIOError, err, "starting transaction")
	}
	if err := r.DB.CreateBranch(tx, name, tip); err != nil {
		tx.Rollback()
		return Wrap(KindIOError, err, "creating branch %s", name)
	}
	if err := tx.Commit(); err != nil {
		return Wrap(KindIOError, err, "committing transaction")
	}
	return r.writeBranchRef(name, tip)
}

// SwitchBranch updates HEAD only; the working directory is untouched.
// Callers combine it with Checkout for the Git-style effect.
func (r *Repository) SwitchBranch(name string) error {
	release, err := r.lockRepo()
	if err != nil {
		return err
	}
	defer release()

	b, err := r.DB.GetBranch(name)
	if err != nil {
		return Wrap(KindIOError, err, "reading branch %s", name)
	}
	if b == nil {
		return Errf(KindUnknownRef, "no branch named %s", name)
	}
	if err := r.writeHeadBranch(name); err != nil {
		return err
	}
	if err := r.DB.SetMeta("head_branch", name); err != nil {
		return Wrap(KindIOError, err, "recording head")
	}
	return r.DB.Checkpoint()
}

// DeleteBranch removes a branch ref. The current branch needs force; the
// last remaining branch can never be deleted. Objects stay put — GC is
// the only deleter of objects.
func (r *Repository) DeleteBranch(name string, force bool) error {
	release, err := r.lockRepo()
	if err != nil {
		return err
	}
	defer release()

	b, err := r.DB.GetBranch(name)
	if err != nil {
		return Wrap(KindIOError, err, "reading branch %s", name)
	}
	if b == nil {
		return Errf(KindUnknownRef, "no branch named %s", name)
	}

	count, err := r.DB.BranchCount()
	if err != nil {
		return Wrap(KindIOError, err, "counting branches")
	}
	if count <= 1 {
		return Errf(KindInvalidState, "cannot delete the only branch %s", name)
	}

	current, err := r.CurrentBranch()
	if err != nil {
		return err
	}
	if current == name {
		if !force {
			return Errf(KindInvalidState, "%s is the current branch; use force to delete it", name)
		}
		// Fall back to any surviving branch.
		branches, err := r.DB.ListBranches()
		if err != nil {
			return Wrap(KindIOError, err, "listing branches")
		}
		for _, other := range branches {
			if other.Name != name {
				if err := r.writeHeadBranch(other.Name); err != nil {
					return err
				}
				if err := r.DB.SetMeta("head_branch", other.Name); err != nil {
					return Wrap(KindIOError, err, "recording head")
				}
				break
			}
		}
	}

	tx, err := r.DB.BeginTx()
	if err != nil {
		return Wrap(KindIOError, err, "starting transaction")
	}
	if err := r.DB.DeleteBranch(tx, name); err != nil {
		tx.Rollback()
		return Wrap(KindIOError, err, "deleting branch %s", name)
	}
	if err := tx.Commit(); err != nil {
		return Wrap(KindIOError, err, "committing transaction")
	}
	return r.removeBranchRef(name)
}

// RenameBranch renames a branch and keeps HEAD pointing at it when it is
// current.
func (r *Repository) RenameBranch(oldName, newName string) error {
	if err := ValidateBranchName(newName); err != nil {
		return err
	}
	release, err := r.lockRepo()
	if err != nil {
		return err
	}
	defer release()

	b, err := r.DB.GetBranch(oldName)
	if err != nil {
		return Wrap(KindIOError, err, "reading branch %s", oldName)
	}
	if b == nil {
		return Errf(KindUnknownRef, "no branch named %s", oldName)
	}
	if dup, err := r.DB.GetBranch(newName); err != nil {
		return Wrap(KindIOError, err, "reading branch %s", newName)
	} else if dup != nil {
		return Errf(KindAlreadyExists, "branch %s already exists", newName)
	}

	tx, err := r.DB.BeginTx()
	if err != nil {
		return Wrap(KindIOError, err, "starting transaction")
	}
	if err := r.DB.RenameBranch(tx, oldName, newName); err != nil {
		tx.Rollback()
		return Wrap(KindIOError, err, "renaming branch")
	}
	if err := tx.Commit(); err != nil {
		return Wrap(KindIOError, err, "committing transaction")
	}

	if err := r.writeBranchRef(newName, b.Tip); err != nil {
		return err
	}
	if err := r.removeBranchRef(oldName); err != nil {
		return err
	}

	current, err := r.CurrentBranch()
	if err != nil {
		return err
	}
	if current == oldName {
		if err := r.writeHeadBranch(newName); err != nil {
			return err
		}
		if err := r.DB.SetMeta("head_branch", newName); err != nil {
			return Wrap(KindIOError, err, "recording head")
		}
	}
	return nil
}

// Branches lists every branch ordered by name.
func (r *Repository) Branches() ([]*index.BranchRow, error) {
	branches, err := r.DB.ListBranches()
	if err != nil {
		return nil, Wrap(KindIOError, err, "listing branches")
	}
	return branches, nil
}
