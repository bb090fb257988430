package repo

import (
	"time"

	"forester/internal/index"
	"forester/internal/object"
)

// Stash saves the dirty working set as a commit-shaped record outside
// any branch and restores the HEAD state. It returns the stash hash, or
// no_changes when the working set is clean.
func (r *Repository) Stash(message string) (string, error) {
	release, err := r.lockRepo()
	if err != nil {
		return "", err
	}
	defer release()

	branch, _, err := r.Head()
	if err != nil {
		return "", err
	}
	head, err := r.HeadCommit()
	if err != nil {
		return "", err
	}

	snap, err := r.snapshotWorktree(true)
	if err != nil {
		return "", err
	}
	dirty, err := r.isDirty(snap, head)
	if err != nil {
		return "", err
	}
	if !dirty {
		return "", Errf(KindNoChanges, "working tree is clean, nothing to stash")
	}

	record := &object.Commit{
		TreeHash:  snap.RootTree,
		Message:   message,
		Author:    r.Config.Author,
		Timestamp: time.Now().Unix(),
		Branch:    branch,
		Type:      object.CommitProject,
	}
	hash, err := record.Hash()
	if err != nil {
		return "", Wrap(KindIOError, err, "hashing stash")
	}
	canonical, err := record.Canonical()
	if err != nil {
		return "", Wrap(KindIOError, err, "serializing stash")
	}
	if err := r.Store.PutAs(object.KindCommit, hash, canonical); err != nil {
		return "", Wrap(KindIOError, err, "storing stash")
	}

	tx, err := r.DB.BeginTx()
	if err != nil {
		return "", Wrap(KindIOError, err, "starting transaction")
	}
	err = r.DB.InsertStash(tx, index.StashRow{
		Hash:      hash,
		Timestamp: record.Timestamp,
		Message:   message,
		TreeHash:  snap.RootTree,
		Branch:    branch,
	})
	if err != nil {
		tx.Rollback()
		return "", Wrap(KindIOError, err, "recording stash")
	}
	for treeHash, tree := range snap.Trees {
		rows := make([]index.TreeEntryRow, 0, len(tree.Entries))
		for _, e := range tree.Entries {
			rows = append(rows, index.TreeEntryRow{
				TreeHash: treeHash, Name: e.Name, Kind: string(e.Kind), ChildHash: e.Hash,
			})
		}
		if err := r.DB.InsertTreeEntries(tx, treeHash, rows); err != nil {
			tx.Rollback()
			return "", Wrap(KindIOError, err, "recording tree entries")
		}
	}
	if err := tx.Commit(); err != nil {
		return "", Wrap(KindIOError, err, "committing transaction")
	}

	// Restore the pre-dirty state so the stash behaves like Git's.
	if head != "" {
		headCommit, err := r.loadCommit(head)
		if err != nil {
			return "", err
		}
		materialized := map[string]bool{}
		if err := r.materializeTree(headCommit.TreeHash, "", CheckoutOptions{}, materialized); err != nil {
			return "", err
		}
		if err := r.pruneUntracked(materialized); err != nil {
			return "", err
		}
	}
	return hash, nil
}

// ApplyStash checks out a stash's tree into the working directory. The
// stash record stays in place until deleted.
func (r *Repository) ApplyStash(hash string, force bool) error {
	release, err := r.lockRepo()
	if err != nil {
		return err
	}
	defer release()

	stash, err := r.DB.GetStash(hash)
	if err != nil {
		return Wrap(KindIOError, err, "reading stash")
	}
	if stash == nil {
		return Errf(KindUnknownRef, "no stash %s", hash)
	}

	if !force {
		dirty, err := r.HasUncommittedChanges()
		if err != nil {
			return err
		}
		if dirty {
			return Errf(KindUncommittedChanges, "working tree has uncommitted changes; use force to overwrite")
		}
	}

	materialized := map[string]bool{}
	return r.materializeTree(stash.TreeHash, "", CheckoutOptions{}, materialized)
}

// DeleteStash removes a stash record. Its objects become GC-eligible
// once nothing else reaches them.
func (r *Repository) DeleteStash(hash string) error {
	stash, err := r.DB.GetStash(hash)
	if err != nil {
		return Wrap(KindIOError, err, "reading stash")
	}
	if stash == nil {
		return Errf(KindUnknownRef, "no stash %s", hash)
	}
	tx, err := r.DB.BeginTx()
	if err != nil {
		return Wrap(KindIOError, err, "starting transaction")
	}
	if err := r.DB.DeleteStash(tx, hash); err != nil {
		tx.Rollback()
		return Wrap(KindIOError, err, "deleting stash")
	}
	if err := tx.Commit(); err != nil {
		return Wrap(KindIOError, err, "committing transaction")
	}
	return nil
}

// Stashes lists every stash newest first.
func (r *Repository) Stashes() ([]*index.StashRow, error) {
	stashes, err := r.DB.ListStashes()
	if err != nil {
		return nil, Wrap(KindIOError, err, "listing stashes")
	}
	return stashes, nil
}
